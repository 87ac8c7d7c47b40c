package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/auth"
	"github.com/voltgrid/ocpp-csms/internal/httpapi"
	"github.com/voltgrid/ocpp-csms/internal/logstore"
	"github.com/voltgrid/ocpp-csms/internal/ocppws"
	"github.com/voltgrid/ocpp-csms/internal/router"
	"github.com/voltgrid/ocpp-csms/internal/session"
	"github.com/voltgrid/ocpp-csms/pkg/config"
)

const (
	serviceName    = "ocpp-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting OCPP central system",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	store, err := logstore.Open(cfg.Logs.Database, cfg.Logs.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to open log store", zap.Error(err))
	}

	rt := router.New(store, logger)

	sessions := auth.NewSessions(cfg.Auth.Secret, cfg.Auth.Users)

	var eventLog session.EventLog = store
	ocppServer := ocppws.NewServer(rt, eventLog, logger, ocppws.Options{
		AuthPassword: cfg.OCPP.AuthPassword,
		Subprotocols: cfg.OCPP.Subprotocols,
		BootInterval: cfg.OCPP.HeartbeatInterval,
		TimeOffset:   time.Duration(cfg.OCPP.TimeOffset) * time.Hour,
		UseTLS:       cfg.Server.UseTLS,
		CertFile:     config.TLSCertFile,
		KeyFile:      config.TLSKeyFile,
	})
	go func() {
		logger.Info("Starting OCPP WebSocket listener", zap.String("addr", cfg.OCPPAddr()))
		if err := ocppServer.Start(cfg.OCPPAddr()); err != nil {
			logger.Fatal("OCPP listener failed", zap.Error(err))
		}
	}()

	api := httpapi.New(rt, store, sessions, cfg.BaseURL(), cfg.Server.UseTLS, logger)
	app := api.App()
	go func() {
		logger.Info("Starting operator HTTP server", zap.String("addr", cfg.HTTPAddr()))
		var err error
		if cfg.Server.UseTLS {
			err = app.ListenTLS(cfg.HTTPAddr(), config.TLSCertFile, config.TLSKeyFile)
		} else {
			err = app.Listen(cfg.HTTPAddr())
		}
		if err != nil {
			logger.Fatal("Operator HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Operator HTTP server forced to shutdown", zap.Error(err))
	}
	if err := ocppServer.Stop(ctx); err != nil {
		logger.Error("OCPP listener forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}
