package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/cashpoint-io/atmd/internal/errors"
	"github.com/cashpoint-io/atmd/internal/jobs"
)

// JournalPruner is the slice of the audit repository the prune task needs.
type JournalPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPruneHandler removes journal rows past their retention window.
type AuditPruneHandler struct {
	pruner JournalPruner
	log    *slog.Logger
}

func NewAuditPruneHandler(pruner JournalPruner, log *slog.Logger) *AuditPruneHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuditPruneHandler{pruner: pruner, log: log}
}

func (h *AuditPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "audit prune: failed to decode payload",
			slog.String("task_type", t.Type()), slog.Any("error", err))
		return err
	}

	cutoff := time.Now().UTC().Add(-payload.RetainFor)

	var removed int64
	err := apperrors.WithRetry(ctx, func() error {
		var pruneErr error
		removed, pruneErr = h.pruner.DeleteOlderThan(ctx, cutoff)
		if pruneErr != nil {
			return apperrors.NewDatabaseError(pruneErr)
		}
		return nil
	})
	if err != nil {
		h.log.ErrorContext(ctx, "audit prune failed", slog.Any("error", err))
		return err
	}

	h.log.InfoContext(ctx, "audit prune completed",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))

	return nil
}
