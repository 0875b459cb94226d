package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"newsoverlay/internal/api"
	"newsoverlay/internal/config"
	"newsoverlay/internal/httpapi"
	"newsoverlay/internal/store"
	"newsoverlay/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

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
		Log:             logger,
	})
	if err != nil {
		log.Fatalf("opening warehouse: %v", err)
	}
	defer wh.Close()

	if cfg.Warehouse.Driver == config.DriverSQLite {
		// An empty local database still needs its tables to be readable.
		if err := wh.Provision(ctx); err != nil {
			log.Fatalf("provisioning warehouse: %v", err)
		}
	}

	cache := httpapi.NewCache(httpapi.WarehouseLoader(wh), cfg.Server.CacheTTL)
	dash := httpapi.NewDashboardServer(cache, logger)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	grpcAddr := ""
	if cfg.Server.GRPCPort != 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}
	srv := api.NewServer(httpAddr, grpcAddr, dash.Handler(), logger)
	srv.TrackCache(cache)

	if res, err := cache.Get(ctx); err != nil {
		slog.Warn("initial load failed", "error", err)
	} else {
		slog.Info("initial load", "tickers", len(res.Tickers()), "rows", len(res.Merged), "insights", len(res.Insights))
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
