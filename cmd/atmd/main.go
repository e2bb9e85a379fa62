package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/audit"
	"github.com/cashpoint-io/atmd/internal/database"
	"github.com/cashpoint-io/atmd/internal/health"
	"github.com/cashpoint-io/atmd/internal/idempotency"
	"github.com/cashpoint-io/atmd/internal/jobs"
	"github.com/cashpoint-io/atmd/internal/jobs/handlers"
	"github.com/cashpoint-io/atmd/internal/middleware"
	"github.com/cashpoint-io/atmd/internal/ratelimit"
	"github.com/cashpoint-io/atmd/internal/server"
	"github.com/cashpoint-io/atmd/internal/session"
	"github.com/cashpoint-io/atmd/pkg/config"
	"github.com/cashpoint-io/atmd/pkg/graceful"
	"github.com/cashpoint-io/atmd/pkg/logger"
	"github.com/cashpoint-io/atmd/pkg/metrics"
	redispkg "github.com/cashpoint-io/atmd/pkg/redis"

	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, viperInstance, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting cashpoint daemon",
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.Server.Port))

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Error("failed to init sentry", slog.Any("error", err))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	config.Watch(viperInstance, cfg.AppEnv, log, func(fresh *config.Config) {
		// Only log level-style knobs matter at runtime; a port change still
		// needs a restart.
		log.Info("configuration updated", slog.String("env", fresh.AppEnv))
	})

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		log.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := redispkg.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			log.Error("error closing redis", slog.Any("error", cerr))
		}
	}()

	// Sliding-window limits with an in-memory fallback when Redis degrades.
	limiter := ratelimit.NewAdaptiveLimiter(
		ratelimit.NewRedisLimiter(redisClient.Client, log),
		ratelimit.NewMemoryLimiter(log),
		log,
	)
	rules := ratelimit.NewRules(cfg.RateLimit)

	journal := audit.NewRepository(db, log)

	pinLimit, pinWindow, err := rules.PINAttemptLimit()
	if err != nil {
		log.Error("invalid pin attempt rule", slog.Any("error", err))
		os.Exit(1)
	}

	manager := session.NewManager(
		session.NewRedisStorage(redisClient.Client, log),
		atm.NewHasher(),
		limiter,
		journal,
		log,
		redisClient.Client,
		session.Config{
			InitialCash:      cfg.ATM.InitialCash,
			PINAttemptLimit:  pinLimit,
			PINAttemptWindow: pinWindow,
		},
	)

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))

	idemStore := idempotency.NewRedisStore(redisClient.Client, log)
	idemManager := idempotency.NewManager(idemStore, log)

	idemCleaner := idempotency.NewCleaner(redisClient.Client, log, time.Hour)
	go idemCleaner.Run(ctx)

	limiterCleaner := ratelimit.NewCleaner(redisClient.Client, log, 10*time.Minute)
	go limiterCleaner.Run(ctx)

	fleet := metrics.NewFleetCollector(manager, log)
	go fleet.Run(ctx)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, map[string]int{
		jobs.QueueCritical: 6,
		jobs.QueueDefault:  3,
		jobs.QueueLow:      1,
	}, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeSessionSweep, handlers.NewSessionSweepHandler(manager, log))
	worker.RegisterHandler(jobs.TaskTypeAuditPrune, handlers.NewAuditPruneHandler(journal, log))

	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
			stop()
		}
	}()
	defer worker.Shutdown()

	scheduler := jobs.NewScheduler(redisOpt, jobs.SchedulerConfig{
		SweepSchedule:  cfg.Jobs.SweepSchedule,
		PruneSchedule:  cfg.Jobs.PruneSchedule,
		SessionTTL:     cfg.ATM.SessionTTL,
		AuditRetention: cfg.ATM.AuditRetention,
	}, log)
	if err := scheduler.RegisterTasks(); err != nil {
		log.Error("failed to register scheduled tasks", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Run()
	defer scheduler.Shutdown()

	// Sweep immediately on boot so sessions stranded by a crash don't wait
	// for the next cron tick.
	queue := jobs.NewManager(redisOpt, log)
	defer func() {
		if cerr := queue.Close(); cerr != nil {
			log.Error("error closing jobs client", slog.Any("error", cerr))
		}
	}()

	if sweep, terr := jobs.NewSessionSweepTask(cfg.ATM.SessionTTL); terr == nil {
		if _, qerr := queue.Enqueue(ctx, sweep); qerr != nil {
			log.Warn("failed to enqueue boot sweep", slog.Any("error", qerr))
		}
	}

	router := server.NewRouter(server.Options{
		Manager:        manager,
		Events:         journal,
		Checker:        checker,
		RateLimit:      middleware.NewRateLimitMiddleware(limiter, rules, log),
		Idempotency:    idemManager,
		IdempotencyTTL: cfg.ATM.IdempotencyTTL,
		SentryEnabled:  cfg.Sentry.Enabled,
		Log:            log,
	})

	srv := graceful.NewServer(log, &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("cashpoint daemon shut down")
}
