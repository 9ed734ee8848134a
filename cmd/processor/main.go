package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/internal/processor"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// processor folds settlement events from the stream into per-vehicle daily stats.
func main() {
	if err := config.Load(bootstrap.EnvPath(os.Args)); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if err := logger.Setup(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting processor", "version", version, "commit", commit, "date", date)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		os.Exit(1)
	}
	go prom.ListenAndServer(cfg.ProcessorPromListenAddr, "/metrics")

	redisAdap, err := bootstrap.Redis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		os.Exit(1)
	}

	service, err := processor.NewProcessorService(redisAdap, processor.ServiceConfigFrom(cfg))
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		os.Exit(1)
	}
	idempotency := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())
	service.RegisterProcessor(processor.NewStatsProcessor(redisAdap, idempotency, cfg.StatsRetention))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		os.Exit(1)
	}

	<-ctx.Done()
	service.Stop()
}
