package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Chichichkin/RedisLoggingAgent/internal/config"
	"github.com/Chichichkin/RedisLoggingAgent/internal/daemon"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/sink"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "redis-logging-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("redis-logging-agent", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a yaml config file")
	endpoints := flags.String("endpoints", "", "comma separated host:port list of Redis endpoints")
	key := flags.String("key", "", "Redis list the records are pushed to")
	logPath := flags.String("log-path", "", "root directory scanned for *.log files")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	metricsAddr := flags.String("metrics-addr", "", "listen address of the /metrics endpoint")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("endpoints") {
		cfg.Sink.Endpoints = *endpoints
	}
	if flags.Changed("key") {
		cfg.Sink.Key = *key
	}
	if flags.Changed("log-path") {
		cfg.Daemon.LogRootPath = *logPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisSink, err := sink.New(cfg.Sink, sink.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := redisSink.Start(); err != nil {
		return err
	}

	logDaemonService := daemon.NewLogDaemonService(ctx, cfg.Daemon, redisSink, redisSink, logger)
	logDaemonService.Start()

	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if cfg.Sink.ExposeMetrics {
		server = newMetricsServer(cfg, redisSink)
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		logDaemonService.Stop()
		redisSink.Stop()

		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newMetricsServer(cfg config.Config, source metrics.Source) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(source, prometheus.Labels{"key": cfg.Sink.Key}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
