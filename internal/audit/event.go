// Package audit persists the append-only journal of applied terminal
// actions and reconstructs snapshots from it. The engine's pure-snapshot
// transitions make the journal a complete event-sourced record: folding it
// back through the engine yields the terminal's current state.
package audit

import (
	"time"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

// Event is one journal row. Keys are stored in cleartext because replay
// needs the exact action stream; log output masks them instead.
type Event struct {
	ID            int64
	TerminalID    string
	ActionKind    string
	KeyLabel      string
	PINDigest     atm.Digest
	Outcome       string
	PhaseBefore   string
	PhaseAfter    string
	CashBefore    uint64
	CashAfter     uint64
	CorrelationID string
	OccurredAt    time.Time
}

// FromEntry converts a session journal entry into its persisted form.
func FromEntry(entry session.JournalEntry) Event {
	ev := Event{
		TerminalID:    entry.TerminalID,
		ActionKind:    entry.Action.Kind.String(),
		Outcome:       string(entry.Outcome),
		PhaseBefore:   entry.Before.Phase.Kind.String(),
		PhaseAfter:    entry.After.Phase.Kind.String(),
		CashBefore:    entry.Before.CashInside,
		CashAfter:     entry.After.CashInside,
		CorrelationID: entry.CorrelationID,
		OccurredAt:    entry.OccurredAt,
	}

	switch entry.Action.Kind {
	case atm.ActionSwipeCard:
		ev.PINDigest = entry.Action.Digest
	case atm.ActionPressKey:
		ev.KeyLabel = entry.Action.Key.String()
	}

	return ev
}
