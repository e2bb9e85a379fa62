package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/cashpoint-io/atmd/internal/errors"
	"github.com/cashpoint-io/atmd/internal/session"
)

// Repository is the SQL-backed journal. It implements session.Journal.
// Writes go through a circuit breaker so a struggling database does not
// stall every keypress on the hot path.
type Repository struct {
	db      *sql.DB
	log     *slog.Logger
	breaker *apperrors.CircuitBreaker
}

// NewRepository creates a Postgres-backed journal repository.
func NewRepository(db *sql.DB, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}

	return &Repository{
		db:      db,
		log:     log,
		breaker: apperrors.NewCircuitBreaker(),
	}
}

// Append persists one applied action.
func (r *Repository) Append(ctx context.Context, entry session.JournalEntry) error {
	const query = `
		INSERT INTO atm_events
			(terminal_id, action_kind, key_label, pin_digest, outcome,
			 phase_before, phase_after, cash_before, cash_after,
			 correlation_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	ev := FromEntry(entry)

	err := r.breaker.Call(func() error {
		_, execErr := r.db.ExecContext(
			ctx,
			query,
			ev.TerminalID,
			ev.ActionKind,
			ev.KeyLabel,
			int64(ev.PINDigest),
			ev.Outcome,
			ev.PhaseBefore,
			ev.PhaseAfter,
			int64(ev.CashBefore),
			int64(ev.CashAfter),
			ev.CorrelationID,
			ev.OccurredAt,
		)
		return execErr
	})
	if err != nil {
		r.log.Error("failed to append audit event",
			slog.String("terminal_id", ev.TerminalID), slog.Any("error", err))
		return apperrors.NewDatabaseError(fmt.Errorf("insert atm event: %w", err))
	}

	return nil
}

// EventsForTerminal returns the terminal's journal in application order.
func (r *Repository) EventsForTerminal(ctx context.Context, terminalID string) ([]Event, error) {
	const query = `
		SELECT id, terminal_id, action_kind, key_label, pin_digest, outcome,
		       phase_before, phase_after, cash_before, cash_after,
		       correlation_id, occurred_at
		FROM atm_events
		WHERE terminal_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, terminalID)
	if err != nil {
		r.log.Error("failed to query audit events",
			slog.String("terminal_id", terminalID), slog.Any("error", err))
		return nil, fmt.Errorf("select atm events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			digest     int64
			cashBefore int64
			cashAfter  int64
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.TerminalID,
			&ev.ActionKind,
			&ev.KeyLabel,
			&digest,
			&ev.Outcome,
			&ev.PhaseBefore,
			&ev.PhaseAfter,
			&cashBefore,
			&cashAfter,
			&ev.CorrelationID,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan atm event: %w", err)
		}

		// Digests and amounts round-trip through BIGINT by bit pattern.
		ev.PINDigest = toDigest(digest)
		ev.CashBefore = uint64(cashBefore)
		ev.CashAfter = uint64(cashAfter)
		events = append(events, ev)
	}

	return events, rows.Err()
}

// DeleteOlderThan prunes journal rows before the cutoff and returns the
// number of rows removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM atm_events WHERE occurred_at < $1`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		r.log.Error("failed to prune audit events", slog.Any("error", err))
		return 0, fmt.Errorf("delete atm events: %w", err)
	}

	return res.RowsAffected()
}
