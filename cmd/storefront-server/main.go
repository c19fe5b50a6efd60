package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/app"
	"github.com/newmedica/storefront/internal/version"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		app.SetupLogger("info")
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	app.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.String(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"events":       cfg.EventTransport,
	}).Info("запускаем storefront-server")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront-server остановлен")
}
