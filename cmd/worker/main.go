package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/application/outbox"
	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
	"github.com/swiftlogix/order-pipeline/internal/config"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/adapters/cms"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/adapters/ros"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/adapters/wms"
	redisCache "github.com/swiftlogix/order-pipeline/internal/infrastructure/caching/redis"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/db/postgres"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/messaging/rabbitmq"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/metrics"
	"github.com/swiftlogix/order-pipeline/internal/infrastructure/notify"
	"github.com/swiftlogix/order-pipeline/internal/logger"
	"github.com/swiftlogix/order-pipeline/internal/transport/http/handlers"
	"github.com/swiftlogix/order-pipeline/internal/transport/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Init()
	zlog.Info().Str("app_env", cfg.AppEnv).Msg("starting order-pipeline worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()

	{
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			zlog.Fatal().Err(err).Msg("db ping failed")
		}
	}

	orderStore := postgres.NewOrderStore(db)
	eventLog := postgres.NewEventLog(db)
	outboxRepo := postgres.NewOutbox(db)

	var idemCache pipeline.IdempotencyCache
	var redisClient *redisCache.Client
	if cfg.RedisURL != "" {
		c, err := redisCache.New(cfg.RedisURL)
		if err != nil {
			zlog.Warn().Err(err).Msg("redis connect failed, continuing without idempotency cache")
		} else {
			redisClient = c
			idemCache = redisCache.NewIdempotencyCache(c)
			zlog.Info().Msg("redis idempotency cache ready")
		}
	}

	topology := rabbitmq.Topology{
		MainQueue:  cfg.RabbitQueue,
		RetryQueue: cfg.RabbitRetryQueue,
		DLQQueue:   cfg.RabbitDLQQueue,
	}

	var rabbitPub *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbitPub = rabbitmq.NewPublisher(cfg.RabbitURL, topology)
		if err := rabbitPub.ConnectWithRetry(ctx); err != nil {
			zlog.Fatal().Err(err).Msg("rabbitmq publisher connect failed")
		}
		defer rabbitPub.Close()

		outboxPub := outbox.NewPublisher(db, outboxRepo, rabbitPub, cfg.OutboxBatchSize, cfg.OutboxPollInterval).
			WithStatusSink(orderStore, eventLog)
		go outboxPub.Run(ctx)
	}

	notifier := notify.NewClient(cfg.FacadeStatusURL, cfg.FacadeNotifyURL, 3*time.Second)
	metricsSink := metrics.NewSink()

	terminator := pipeline.NewTerminator(orderStore, eventLog, orderStore, notifier)

	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		Orders: orderStore,
		Events: eventLog,
		Cache:  idemCache,
		Adapters: map[pipeline.Stage]pipeline.Adapter{
			pipeline.StageCMS: cms.NewAdapter(cfg.CMSURL, cfg.CMSTimeout),
			pipeline.StageROS: ros.NewAdapter(cfg.ROSURL, cfg.ROSTimeout),
			pipeline.StageWMS: wms.NewAdapter(cfg.WMSHost, cfg.WMSPort, cfg.WMSTimeout),
		},
		Notifier:       notifier,
		Terminator:     terminator,
		Metrics:        metricsSink,
		DemoDelays:     cfg.DemoDelays,
		MaxRetries:     cfg.MaxRetries,
		BaseRetryTTL:   cfg.BaseRetryTTL,
		MaxRetryTTL:    cfg.MaxRetryTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	if cfg.RabbitURL != "" {
		consumer := rabbitmq.NewConsumer(cfg.RabbitURL, topology, worker, rabbitPub)
		go consumer.Run(ctx)
	}

	health := handlers.NewHealthHandler()
	var brokerConn router.BrokerConn
	if rabbitPub != nil {
		brokerConn = rabbitPub
	}
	httpHandler := router.New(health, db, brokerConn, cfg)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpHandler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		zlog.Info().Str("addr", cfg.HTTPAddr).Msg("operational http surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info().Msg("shutting down order-pipeline worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if redisClient != nil {
		_ = redisClient.Close()
	}
}
