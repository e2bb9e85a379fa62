package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/ratelimit"
	"github.com/cashpoint-io/atmd/pkg/logger"
)

const (
	terminalLockKeyPattern = "terminal:lock:%s"
	lockTTL                = 5 * time.Second

	pinAttemptKeyPattern = "pin:%s"
)

var (
	// ErrSessionNotFound indicates that a terminal session record does not exist.
	ErrSessionNotFound = errors.New("terminal session not found")
	// ErrSessionLocked indicates that a concurrent action already holds the lock.
	ErrSessionLocked = errors.New("session is locked, try again later")
	// ErrTooManyPINAttempts indicates the PIN-attempt limit was hit; the
	// session has been reset to waiting.
	ErrTooManyPINAttempts = errors.New("too many pin attempts")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe phase
// transitions without importing this package's dependents.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// JournalEntry is one applied action as recorded for replay and audit.
type JournalEntry struct {
	TerminalID    string
	Action        atm.Action
	Outcome       Outcome
	Before        atm.Machine
	After         atm.Machine
	CorrelationID string
	OccurredAt    time.Time
}

// Journal is the append-only sink for applied actions.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
}

// Result reports one applied action: the resulting session and the derived
// outcome.
type Result struct {
	Session *Session
	Outcome Outcome
	Before  atm.Machine
}

// Manager describes the operations the drivers (HTTP, jobs) perform against
// terminal sessions.
type Manager interface {
	Apply(ctx context.Context, terminalID string, act atm.Action) (*Result, error)
	Get(ctx context.Context, terminalID string) (*Session, error)
	Reset(ctx context.Context, terminalID string) (*Session, error)
	SweepIdle(ctx context.Context, ttl time.Duration) (int, error)
	All(ctx context.Context) ([]*Session, error)
}

// Config tunes the manager.
type Config struct {
	// InitialCash seeds the reserve of a terminal seen for the first time.
	InitialCash uint64
	// PINAttemptLimit caps Enter presses while authenticating, per terminal
	// per window. Zero disables the limit.
	PINAttemptLimit int
	// PINAttemptWindow is the sliding window for PINAttemptLimit.
	PINAttemptWindow time.Duration
}

// manager applies actions through the pure engine under a per-terminal
// Redis lock, so at most one transition is in flight per session.
type manager struct {
	storage     Storage
	hasher      atm.Hasher
	limiter     ratelimit.Limiter
	journal     Journal
	log         *slog.Logger
	redisClient *redis.Client
	cfg         Config
}

// NewManager creates the session manager. limiter, journal and redisClient
// are optional; without redisClient no cross-process lock is taken.
func NewManager(storage Storage, hasher atm.Hasher, limiter ratelimit.Limiter, journal Journal, log *slog.Logger, redisClient *redis.Client, cfg Config) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		storage:     storage,
		hasher:      hasher,
		limiter:     limiter,
		journal:     journal,
		log:         log,
		redisClient: redisClient,
		cfg:         cfg,
	}
}

// Apply feeds one action through the engine and persists the successor
// snapshot. The returned Result carries the before-snapshot so callers can
// diff phases for user feedback.
func (m *manager) Apply(ctx context.Context, terminalID string, act atm.Action) (*Result, error) {
	if err := m.lock(ctx, terminalID); err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID)

	sess, err := m.loadOrCreate(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	before := cloneMachine(sess.Machine)

	if m.isPINAttempt(sess.Machine, act) {
		if err := m.checkPINAttempts(ctx, terminalID); err != nil {
			if !errors.Is(err, ratelimit.ErrLimitExceeded) {
				return nil, err
			}

			// Abort the session back to waiting, same family as a wrong
			// PIN: card returned, main menu.
			sess.Machine = atm.New(sess.Machine.CashInside)
			if err := m.storage.Set(ctx, terminalID, sess); err != nil {
				return nil, err
			}
			m.record(ctx, terminalID, act, OutcomeThrottled, before, sess.Machine)
			m.log.Warn("pin attempt limit reached, session reset",
				slog.String("terminal_id", terminalID))

			return &Result{Session: sess, Outcome: OutcomeThrottled, Before: before}, ErrTooManyPINAttempts
		}
	}

	sess.Machine = atm.NextState(m.hasher, sess.Machine, act)
	outcome := classify(before, sess.Machine, act)

	if err := m.storage.Set(ctx, terminalID, sess); err != nil {
		return nil, err
	}

	if before.Phase.Kind != sess.Machine.Phase.Kind {
		transitionRecorder(before.Phase.Kind.String(), sess.Machine.Phase.Kind.String())
	}
	m.record(ctx, terminalID, act, outcome, before, sess.Machine)

	return &Result{Session: sess, Outcome: outcome, Before: before}, nil
}

// Get returns the current session for the terminal.
func (m *manager) Get(ctx context.Context, terminalID string) (*Session, error) {
	return m.storage.Get(ctx, terminalID)
}

// All returns every persisted session.
func (m *manager) All(ctx context.Context) ([]*Session, error) {
	return m.storage.All(ctx)
}

// Reset ends the terminal's session: fresh waiting snapshot, register
// cleared, cash reserve preserved. This is the synthetic reset the engine
// itself does not model.
func (m *manager) Reset(ctx context.Context, terminalID string) (*Session, error) {
	if err := m.lock(ctx, terminalID); err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID)

	sess, err := m.loadOrCreate(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	before := cloneMachine(sess.Machine)
	sess.Machine = atm.New(sess.Machine.CashInside)

	if err := m.storage.Set(ctx, terminalID, sess); err != nil {
		return nil, err
	}

	if before.Phase.Kind != atm.PhaseWaiting {
		transitionRecorder(before.Phase.Kind.String(), atm.PhaseWaiting.String())
	}
	m.record(ctx, terminalID, atm.Action{}, OutcomeReset, before, sess.Machine)

	return sess, nil
}

// SweepIdle resets every session that has been stuck mid-authentication or
// mid-withdrawal longer than ttl. Returns the number of sessions reset.
func (m *manager) SweepIdle(ctx context.Context, ttl time.Duration) (int, error) {
	sessions, err := m.storage.All(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, sess := range sessions {
		if sess.Machine.Phase.Kind == atm.PhaseWaiting {
			continue
		}
		if time.Since(sess.UpdatedAt) <= ttl {
			continue
		}

		if _, err := m.Reset(ctx, sess.TerminalID); err != nil {
			m.log.Error("failed to reset idle session",
				slog.String("terminal_id", sess.TerminalID), slog.Any("error", err))
			continue
		}

		m.log.Info("idle session reset", slog.String("terminal_id", sess.TerminalID))
		swept++
	}

	return swept, nil
}

func (m *manager) loadOrCreate(ctx context.Context, terminalID string) (*Session, error) {
	sess, err := m.storage.Get(ctx, terminalID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}

		return &Session{
			TerminalID: terminalID,
			Machine:    atm.New(m.cfg.InitialCash),
		}, nil
	}

	return sess, nil
}

// isPINAttempt reports whether the action is an Enter press while the
// terminal is collecting a PIN, which is the only action the attempt limit
// counts.
func (m *manager) isPINAttempt(cur atm.Machine, act atm.Action) bool {
	return act.Kind == atm.ActionPressKey &&
		act.Key == atm.KeyEnter &&
		cur.Phase.Kind == atm.PhaseAuthenticating
}

func (m *manager) checkPINAttempts(ctx context.Context, terminalID string) error {
	if m.limiter == nil || m.cfg.PINAttemptLimit <= 0 {
		return nil
	}

	key := fmt.Sprintf(pinAttemptKeyPattern, terminalID)
	res, err := m.limiter.Check(ctx, key, m.cfg.PINAttemptLimit, m.cfg.PINAttemptWindow)
	if err != nil {
		return err
	}
	if res != nil && !res.Allowed {
		return ratelimit.ErrLimitExceeded
	}

	return nil
}

func (m *manager) record(ctx context.Context, terminalID string, act atm.Action, outcome Outcome, before, after atm.Machine) {
	if m.journal == nil {
		return
	}

	entry := JournalEntry{
		TerminalID:    terminalID,
		Action:        act,
		Outcome:       outcome,
		Before:        before,
		After:         after,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		OccurredAt:    time.Now().UTC(),
	}

	if err := m.journal.Append(ctx, entry); err != nil {
		m.log.Error("failed to append journal entry",
			slog.String("terminal_id", terminalID), slog.Any("error", err))
	}
}

func (m *manager) lock(ctx context.Context, terminalID string) error {
	if m.redisClient == nil {
		return nil
	}

	key := fmt.Sprintf(terminalLockKeyPattern, terminalID)
	acquired, err := m.redisClient.SetNX(ctx, key, 1, lockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire terminal lock", slog.String("terminal_id", terminalID), slog.Any("error", err))
		return err
	}

	if !acquired {
		m.log.Warn("terminal lock already held", slog.String("terminal_id", terminalID))
		return ErrSessionLocked
	}

	return nil
}

func (m *manager) unlock(ctx context.Context, terminalID string) {
	if m.redisClient == nil {
		return
	}

	key := fmt.Sprintf(terminalLockKeyPattern, terminalID)
	if err := m.redisClient.Del(ctx, key).Err(); err != nil {
		m.log.Error("failed to release terminal lock", slog.String("terminal_id", terminalID), slog.Any("error", err))
	}
}
