package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"signalbots/config"
	"signalbots/internal/app"
	"signalbots/logger"

	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// viper config
	cfg, err := config.Load(*path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("signalbots started", zap.String("provider", cfg.Exchange.Provider), zap.String("environment", cfg.Environment))
	if err := a.Run(ctx); err != nil {
		log.Error("shutdown with errors", zap.Error(err))
		os.Exit(1)
	}
	log.Info("signalbots stopped")
}
