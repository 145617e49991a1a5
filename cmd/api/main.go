package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/circleup-app/circleup-backend/api/controllers"
	"github.com/circleup-app/circleup-backend/api/routes"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	schedulerService, err := scheduler.NewService(scheduleRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler service", err)
		os.Exit(1)
	}

	inboxRepo := inbox.NewRepository(dbClient.DB())
	inboxService, err := inbox.NewService(inboxRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create inbox service", err)
		os.Exit(1)
	}

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

	registry := prometheus.NewRegistry()
	processor, err := dispatch.NewProcessor(dispatch.ProcessorParams{
		Config: cfg.Dispatch,
		Logger: logg,
		Repo:   scheduleRepo,
		Senders: map[enums.DeliveryChannel]dispatch.Sender{
			enums.DeliveryChannelPush:  pushSender,
			enums.DeliveryChannelInApp: inappSender,
		},
		Metrics: metrics.NewDispatchMetrics(registry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch processor", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
				"pubsub":   pubsubClient,
			},
			Scheduler:  schedulerService,
			Inbox:      inboxService,
			Dispatcher: processor,
			Registry:   registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
