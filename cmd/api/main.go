package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/internal/handlers"
	"github.com/nimasrn/matatu-pay/internal/processor"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/services"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(bootstrap.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err := logger.Setup(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	s := xhttp.NewServer(xhttp.DefaultServerOption.WithOverrides(
		time.Duration(cfg.HttpServerReadTimeout)*time.Millisecond,
		time.Duration(cfg.HttpServerWriteTimeout)*time.Millisecond,
		cfg.HttpServerReadBufferSize,
		cfg.HttpServerWriteBufferSize,
	))
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	// the STK push round trip can take the full gateway timeout
	s.Use(xhttp.TimeoutMiddleware(cfg.MpesaTimeout + 5*time.Second))

	db, err := bootstrap.Postgres(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := bootstrap.Redis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	settledQ, err := bootstrap.SettledQueue(redisAdap, cfg)
	if err != nil {
		logger.Error("failed creating settled queue", "error", err)
		return
	}

	gw, err := bootstrap.Gateway(cfg)
	if err != nil {
		logger.Error("failed to create payment gateway client", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	// repositories
	transactionRepo := repository.NewTransactionRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	notificationRepo := repository.NewGatewayNotificationRepository(db)

	// services
	locker := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())
	settingsService := services.NewSettingsService(settingRepo)
	reconciliationService := services.NewReconciliationService(transactionRepo, notificationRepo, gw, locker, settledQ)
	paymentService := services.NewPaymentService(transactionRepo, vehicleRepo, accountRepo, gw, settingsService, reconciliationService)
	statsService := services.NewStatsService(redisAdap)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	// v1 handlers
	g := s.Router.Group("/api/v1")
	handlers.RegisterPaymentRoutes(g, handlers.NewPaymentHandler(paymentService, reconciliationService))
	handlers.RegisterVehicleRoutes(g, handlers.NewVehicleHandler(paymentService, statsService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go prom.ListenAndServer(cfg.PromListenAddr, "/metrics")

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	s.Shutdown()
	if err := settledQ.Stop(5 * time.Second); err != nil {
		logger.Warn("failed to stop settled queue", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close postgres", "error", err)
	}
}
