package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

// SchedulerConfig names the cron entries and the retention windows their
// tasks carry.
type SchedulerConfig struct {
	SweepSchedule  string
	PruneSchedule  string
	SessionTTL     time.Duration
	AuditRetention time.Duration
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	cfg            SchedulerConfig
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, cfg SchedulerConfig, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		cfg:            cfg,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	sweep, err := NewSessionSweepTask(s.cfg.SessionTTL)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.cfg.SweepSchedule, sweep); err != nil {
		return err
	}

	prune, err := NewAuditPruneTask(s.cfg.AuditRetention)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.cfg.PruneSchedule, prune); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered sweep and prune tasks")
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
