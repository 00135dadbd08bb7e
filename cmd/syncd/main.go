package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/config"
	"feedsync/internal/publisher"
	"feedsync/internal/registry"
	"feedsync/internal/scheduler"
	"feedsync/internal/server"
	"feedsync/internal/service"
	"feedsync/internal/source/dummy"
	"feedsync/internal/source/rss"
	"feedsync/internal/storage"
	"feedsync/internal/storage/memory"
	"feedsync/internal/storage/postgres"
	"feedsync/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	st, err := openStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	specs := make([]registry.FeedSpec, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		specs = append(specs, registry.FeedSpec{SourceName: f.Source, FeedURL: f.URL})
	}
	regCfg := registry.Config{
		NewFeedInterval:    cfg.Scheduler.NewFeedInterval,
		ReactivateInterval: cfg.Scheduler.ReactivateInterval,
	}
	if err := registry.Reconcile(ctx, st, specs, regCfg, logger); err != nil {
		logger.Error("failed to reconcile feed specs", "error", err)
		os.Exit(1)
	}

	sources := []service.Source{
		rss.New(rss.Config{
			Timeout:         cfg.RSS.Timeout,
			DefaultInterval: cfg.RSS.DefaultInterval,
			UserAgent:       cfg.RSS.UserAgent,
		}, logger),
		dummy.New(),
	}

	refresher := service.NewRefreshService(sources, st, pub, logger)
	sched := scheduler.New(st, refresher, logger,
		scheduler.WithMaxIterations(cfg.Scheduler.MaxIterations))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(st, logger).Handler(),
	}
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting feedsync",
		"driver", cfg.Database.Driver,
		"feeds", len(cfg.Feeds),
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func openStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.Database.Path)
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		st := postgres.New(db)
		if err := st.Ensure(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to database")
		return st, nil
	default:
		return nil, errors.New("unknown database driver " + cfg.Database.Driver)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
