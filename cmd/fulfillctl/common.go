package main

import (
	"log/slog"
	"os"

	"github.com/rs-labo46/ec-fulfillment/internal/config"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
)

// loadConfig は .env を読んでから環境変数で設定を作る
func loadConfig() (config.Config, *slog.Logger, error) {
	config.LoadEnvFile(".env", "../.env")
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stderr, cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
