package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/app"
	"github.com/rs-labo46/ec-fulfillment/internal/config"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
)

func main() {
	//.envはあれば読む（リポジトリ直下 or 1つ上）
	config.LoadEnvFile(".env", "../.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	serveErr := a.Serve(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
	}
	if serveErr != nil {
		logger.Error("server stopped", slog.String("error", serveErr.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
