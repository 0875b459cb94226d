package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"newsoverlay/internal/config"
	"newsoverlay/internal/store"
	"newsoverlay/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	if err := cfg.ValidateWarehouse(); err != nil {
		log.Fatalf("invalid warehouse config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wh, err := store.Open(ctx, store.Options{
		Driver:          cfg.Warehouse.Driver,
		SQLitePath:      cfg.Storage.SQLitePath,
		Project:         cfg.Warehouse.Project,
		Dataset:         cfg.Warehouse.Dataset,
		Location:        cfg.Warehouse.Location,
		CredentialsFile: cfg.Warehouse.CredentialsFile,
	})
	if err != nil {
		log.Fatalf("opening warehouse: %v", err)
	}
	defer wh.Close()

	if err := wh.Provision(ctx); err != nil {
		log.Fatalf("provisioning warehouse: %v", err)
	}
	slog.Info("warehouse ready", "driver", cfg.Warehouse.Driver, "dataset", cfg.Warehouse.Dataset)
}
