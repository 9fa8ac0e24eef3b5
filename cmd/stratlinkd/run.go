package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stratlink/internal/config"
	"stratlink/internal/events"
	"stratlink/internal/journal"
	"stratlink/internal/server"
	"stratlink/internal/status"
	"stratlink/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// run wires every component from cfg and blocks until ctx is cancelled or
// a listener fails. The optional Redis, Postgres and status components are
// only started when their settings are present.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)

	var sinks events.Fanout

	if cfg.RedisURL != "" {
		publisher, err := events.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("redis_events_enabled", "channel", publisher.Channel())
	}

	var history status.HistoryReader
	if cfg.DatabaseURL != "" {
		store, err := journal.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		j := journal.New(store, journal.Options{
			BatchSize:     cfg.JournalBatchSize,
			FlushInterval: cfg.JournalFlushInterval,
			Logger:        logger,
		})
		j.Start()
		// runs before store.Close so the last batch still has a pool
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("journal_close_failed", "error", err)
			}
		}()
		sinks = append(sinks, j)
		history = store
		logger.Info("journal_enabled",
			"batch_size", cfg.JournalBatchSize,
			"flush_interval", cfg.JournalFlushInterval.String(),
		)
	}

	registry := strategy.NewRegistry()
	opts := []strategy.Option{strategy.WithLogger(logger)}
	if len(sinks) > 0 {
		opts = append(opts, strategy.WithSink(sinks))
	}
	svc := strategy.NewService(registry, opts...)

	dispatcher := server.NewDispatcher(logger)
	server.RegisterStrategyHandlers(dispatcher, svc)

	srv := server.New(dispatcher, server.Options{
		IdleTimeout:    cfg.IdleTimeout,
		MaxConnections: int64(cfg.MaxConnections),
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Logger:         logger,
	})
	if err := srv.Listen(cfg.Host, cfg.Port); err != nil {
		return err
	}

	errChan := make(chan error, 2)
	go func() {
		if err := srv.Serve(); !errors.Is(err, server.ErrServerClosed) {
			errChan <- err
		}
	}()

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.NewServer(cfg.StatusAddr, status.NewHandler(srv, registry, history), logger)
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil {
				errChan <- fmt.Errorf("status server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case runErr = <-errChan:
		logger.Error("server_error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status_server_shutdown_failed", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_incomplete", "error", err)
	}
	logger.Info("server_stopped_gracefully",
		"requests_total", srv.Stats().RequestsTotal,
		"active_strategies", registry.Len(),
	)
	return runErr
}
