package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/config"
	"newsoverlay/internal/gather"
	"newsoverlay/internal/gather/alpaca"
	"newsoverlay/internal/gather/polygon"
	"newsoverlay/internal/store"
	"newsoverlay/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: fetch.symbols)")
	startFlag := flag.String("start", "", "first day YYYY-MM-DD (default: fetch.start_date, then resume)")
	endFlag := flag.String("end", "", "last day YYYY-MM-DD (default: fetch.end_date, then last completed day)")
	sourceFlag := flag.String("source", "", "bar source: polygon or alpaca (default: fetch.bar_source)")
	noNews := flag.Bool("no-news", false, "fetch bars only")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbolsFlag != "" {
		cfg.Fetch.Symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				cfg.Fetch.Symbols = append(cfg.Fetch.Symbols, s)
			}
		}
	}
	if *startFlag != "" {
		cfg.Fetch.StartDate = *startFlag
	}
	if *endFlag != "" {
		cfg.Fetch.EndDate = *endFlag
	}
	if *sourceFlag != "" {
		cfg.Fetch.BarSource = *sourceFlag
	}
	if err := cfg.ValidateFetch(); err != nil {
		log.Fatalf("invalid fetch config: %v", err)
	}
	if err := cfg.ValidateWarehouse(); err != nil {
		log.Fatalf("invalid warehouse config: %v", err)
	}

	var dates gather.DateRange
	if dates.Start, err = parseOptionalDate(cfg.Fetch.StartDate); err != nil {
		log.Fatalf("start date: %v", err)
	}
	if dates.End, err = parseOptionalDate(cfg.Fetch.EndDate); err != nil {
		log.Fatalf("end date: %v", err)
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
	if err := wh.Provision(ctx); err != nil {
		log.Fatalf("provisioning warehouse: %v", err)
	}

	poly := polygon.NewClient(polygon.Config{
		APIKey:          cfg.Polygon.APIKey,
		BaseURL:         cfg.Polygon.BaseURL,
		RateLimitPerMin: cfg.Polygon.RateLimitPerMin,
		Timeout:         cfg.Polygon.Timeout,
		MaxRetries:      cfg.Polygon.MaxRetries,
		NewsLimit:       cfg.Polygon.NewsLimit,
	}, logger)

	progress, err := gather.NewProgress(filepath.Join(cfg.Storage.DataDir, "us", "progress"))
	if err != nil {
		log.Fatalf("progress: %v", err)
	}

	runner := &gather.Runner{
		Bars:       poly,
		News:       poly,
		BarSinks:   []store.BarStore{wh},
		NewsSinks:  []store.NewsStore{wh},
		Progress:   progress,
		MaxWorkers: cfg.Fetch.MaxWorkers,
		Log:        logger,
	}
	if cfg.Fetch.BarSource == config.SourceAlpaca {
		runner.Bars = alpaca.NewBarSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, logger)
	}
	if *noNews {
		runner.News = nil
	}
	if cfg.Fetch.Archive {
		archive := store.NewParquetStore(cfg.Storage.DataDir)
		runner.BarSinks = append(runner.BarSinks, archive)
		runner.NewsSinks = append(runner.NewsSinks, archive)
	}

	slog.Info("starting fetch",
		"symbols", cfg.Fetch.Symbols,
		"source", runner.Bars.Name(),
		"start", cfg.Fetch.StartDate,
		"end", cfg.Fetch.EndDate,
		"news", runner.News != nil,
	)
	results, err := runner.Run(ctx, cfg.Fetch.Symbols, dates)
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}

	var bars, articles int
	for _, r := range results {
		bars += r.Bars
		articles += r.Articles
	}
	slog.Info("fetch complete", "symbols", len(results), "bars", bars, "articles", articles)
}

func parseOptionalDate(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	return util.ParseDate(s)
}
