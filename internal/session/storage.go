// Package session hosts per-terminal machine snapshots and drives the pure
// transition engine: it serializes actions within a terminal, persists the
// resulting snapshot, and classifies what happened for callers that need
// user-facing feedback.
package session

import (
	"context"
	"time"

	"github.com/cashpoint-io/atmd/internal/atm"
)

// Session binds one terminal to its current machine snapshot.
type Session struct {
	TerminalID string      `json:"terminal_id"`
	Machine    atm.Machine `json:"machine"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Storage defines the persistence contract for terminal sessions.
type Storage interface {
	// Get returns the session for the terminal, or ErrSessionNotFound.
	Get(ctx context.Context, terminalID string) (*Session, error)
	// Set saves the session for the terminal.
	Set(ctx context.Context, terminalID string, s *Session) error
	// Delete removes the session for the terminal.
	Delete(ctx context.Context, terminalID string) error
	// All returns every stored session.
	All(ctx context.Context) ([]*Session, error)
}
