// Package handlers contains the asynq task handlers for fleet maintenance.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	apperrors "github.com/cashpoint-io/atmd/internal/errors"
	"github.com/cashpoint-io/atmd/internal/jobs"
	"github.com/cashpoint-io/atmd/internal/session"
)

// SessionSweepHandler resets sessions stuck outside the waiting phase.
type SessionSweepHandler struct {
	manager session.Manager
	log     *slog.Logger
}

func NewSessionSweepHandler(manager session.Manager, log *slog.Logger) *SessionSweepHandler {
	if log == nil {
		log = slog.Default()
	}

	return &SessionSweepHandler{manager: manager, log: log}
}

func (h *SessionSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "session sweep: failed to decode payload",
			slog.String("task_type", t.Type()), slog.Any("error", err))
		return err
	}

	var swept int
	err := apperrors.WithRetry(ctx, func() error {
		var sweepErr error
		swept, sweepErr = h.manager.SweepIdle(ctx, payload.IdleFor)
		if sweepErr != nil {
			return apperrors.NewStorageError(sweepErr)
		}
		return nil
	})
	if err != nil {
		h.log.ErrorContext(ctx, "session sweep failed", slog.Any("error", err))
		return err
	}

	h.log.InfoContext(ctx, "session sweep completed",
		slog.Int("swept", swept),
		slog.Duration("idle_for", payload.IdleFor))

	return nil
}
