package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/circleup-app/circleup-backend/internal/dispatch"
	"github.com/circleup-app/circleup-backend/internal/dispatch/inapp"
	"github.com/circleup-app/circleup-backend/internal/dispatch/push"
	"github.com/circleup-app/circleup-backend/internal/inbox"
	"github.com/circleup-app/circleup-backend/internal/scheduler"
	"github.com/circleup-app/circleup-backend/pkg/config"
	"github.com/circleup-app/circleup-backend/pkg/db"
	"github.com/circleup-app/circleup-backend/pkg/enums"
	"github.com/circleup-app/circleup-backend/pkg/logger"
	"github.com/circleup-app/circleup-backend/pkg/metrics"
	"github.com/circleup-app/circleup-backend/pkg/migrate"
	"github.com/circleup-app/circleup-backend/pkg/pubsub"
	"github.com/circleup-app/circleup-backend/pkg/redis"
)

const lockScopeFormat = "dispatch:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	scheduleRepo := scheduler.NewRepository(dbClient.DB())
	inboxRepo := inbox.NewRepository(dbClient.DB())

	pushSender, err := push.NewSender(pubsubClient.PushPublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create push sender", err)
		os.Exit(1)
	}
	inappSender, err := inapp.NewSender(inboxRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create in-app sender", err)
		os.Exit(1)
	}

	processor, err := dispatch.NewProcessor(dispatch.ProcessorParams{
		Config: cfg.Dispatch,
		Logger: logg,
		Repo:   scheduleRepo,
		Senders: map[enums.DeliveryChannel]dispatch.Sender{
			enums.DeliveryChannelPush:  pushSender,
			enums.DeliveryChannelInApp: inappSender,
		},
		Metrics: metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch processor", err)
		os.Exit(1)
	}

	lock, err := dispatch.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch lock", err)
		os.Exit(1)
	}

	worker, err := dispatch.NewWorker(dispatch.WorkerParams{
		Logger:        logg,
		Processor:     processor,
		Lock:          lock,
		Interval:      cfg.Dispatch.WorkerInterval,
		Retention:     inboxRepo,
		RetentionDays: cfg.Inbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting dispatch worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockScopeFormat, env)
}
