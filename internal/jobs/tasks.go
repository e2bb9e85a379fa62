// Package jobs runs background maintenance over the terminal fleet:
// sweeping sessions stuck mid-authentication and pruning old journal rows.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeSessionSweep = "session:sweep"
	TaskTypeAuditPrune   = "audit:prune"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// SessionSweepPayload resets sessions that have sat outside the waiting
// phase for longer than IdleFor.
type SessionSweepPayload struct {
	IdleFor time.Duration `json:"idle_for"`
}

// AuditPrunePayload removes journal rows older than RetainFor.
type AuditPrunePayload struct {
	RetainFor time.Duration `json:"retain_for"`
}

func NewSessionSweepTask(idleFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionSweepPayload{IdleFor: idleFor})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeSessionSweep, payload, asynq.Queue(QueueDefault)), nil
}

func NewAuditPruneTask(retainFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(AuditPrunePayload{RetainFor: retainFor})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeAuditPrune, payload, asynq.Queue(QueueLow)), nil
}
