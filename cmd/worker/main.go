// Package main runs the outbox projection worker: it listens for new outbox
// rows, translates IAM domain events into relationship-tuple operations, and
// applies them to the policy engine.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kartograph-backend/internal/authz"
	"kartograph-backend/internal/config"
	"kartograph-backend/internal/observability"
	"kartograph-backend/internal/outbox"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger, err := observability.NewLogger(string(cfg.Environment))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.Strings("sources", cfg.LoadedFrom))

	metrics := observability.NewCollector(cfg.Metrics.Namespace)

	var tracer *observability.TracerProvider
	if cfg.Tracing.Enabled {
		tracer, err = observability.InitTracing(ctx, observability.TracingConfig{
			Environment: string(cfg.Environment),
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			logger.Fatal("failed to initialize tracing", zap.Error(err))
		}
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := outbox.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("failed to ensure outbox schema", zap.Error(err))
	}

	engine, err := authz.NewSpiceDBEngine(authz.SpiceDBConfig{
		Endpoint:    cfg.PolicyEngine.Endpoint,
		Token:       cfg.PolicyEngine.Token,
		Insecure:    cfg.PolicyEngine.Insecure,
		CallTimeout: cfg.PolicyEngine.CallTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to policy engine", zap.Error(err))
	}

	translator, err := authz.NewIAMTranslator()
	if err != nil {
		logger.Fatal("failed to build translator", zap.Error(err))
	}

	registry := outbox.NewIAMRegistry()
	repo := outbox.NewRepository(pool, registry, logger)

	var source outbox.EventSource
	if cfg.Worker.Push {
		source = outbox.NewNotifyListener(pool, outbox.NotificationChannel, metrics, logger)
	} else {
		source = outbox.NewPollSource(cfg.Worker.PollInterval)
	}

	worker := outbox.NewWorker(repo, registry, translator, engine, source, outbox.WorkerConfig{
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval,
		MaxRetries:   cfg.Worker.MaxRetries,
	}, metrics, logger)

	watcher, err := config.NewWatcher(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start config watcher", zap.Error(err))
	}
	defer watcher.Stop()
	watcher.OnChange(func(next *config.Config) {
		worker.UpdateConfig(outbox.WorkerConfig{
			BatchSize:    next.Worker.BatchSize,
			PollInterval: next.Worker.PollInterval,
			MaxRetries:   next.Worker.MaxRetries,
		})
	})

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	metricsServer := startMetricsServer(cfg, metrics, logger)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Error("worker stopped uncleanly", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("trace exporter shutdown failed", zap.Error(err))
		}
	}
	logger.Info("worker stopped")
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func startMetricsServer(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: router}

	go func() {
		logger.Info("metrics endpoint listening",
			zap.String("addr", cfg.Metrics.Addr),
			zap.String("path", cfg.Metrics.Path),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return server
}
