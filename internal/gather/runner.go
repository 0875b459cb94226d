package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"newsoverlay/internal/store"
	"newsoverlay/internal/util"
)

// ErrNoStartDate is returned when a symbol has no recorded progress and the
// request does not name a start date.
var ErrNoStartDate = errors.New("no start date and no recorded progress")

// Runner fetches bars and news for a set of symbols and writes them to every
// sink. Symbols are processed concurrently, bounded by MaxWorkers.
type Runner struct {
	Bars BarSource
	// News is optional; a nil source skips news.
	News NewsSource

	BarSinks  []store.BarStore
	NewsSinks []store.NewsStore

	// Progress is optional; without it every request needs a start date.
	Progress   *Progress
	MaxWorkers int
	Log        *slog.Logger

	now func() time.Time
}

// SymbolResult summarizes the fetch for one symbol.
type SymbolResult struct {
	Symbol   string
	Start    civil.Date
	End      civil.Date
	Bars     int
	Articles int
	Skipped  bool
}

// Run fetches every symbol over r. Results are returned in symbol order. The
// first failing symbol cancels the rest.
func (rn *Runner) Run(ctx context.Context, symbols []string, r DateRange) ([]SymbolResult, error) {
	if rn.Bars == nil {
		return nil, errors.New("gather: no bar source")
	}
	log := rn.Log
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if rn.now != nil {
		now = rn.now
	}
	end := r.End
	if end == (civil.Date{}) {
		end = util.LastCompletedDay(now())
	}
	workers := rn.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	results := make([]SymbolResult, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		g.Go(func() error {
			res, err := rn.fetchSymbol(gctx, log, sym, r.Start, end)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (rn *Runner) fetchSymbol(ctx context.Context, log *slog.Logger, symbol string, start, end civil.Date) (SymbolResult, error) {
	res := SymbolResult{Symbol: symbol, Start: start, End: end}

	if start == (civil.Date{}) {
		if rn.Progress == nil {
			return res, ErrNoStartDate
		}
		last, ok := rn.Progress.LastFetched(symbol)
		if !ok {
			return res, ErrNoStartDate
		}
		start = last.AddDays(1)
		res.Start = start
	}
	if start.After(end) {
		log.Info("symbol up to date", "symbol", symbol, "end", end)
		res.Skipped = true
		return res, nil
	}

	bars, err := rn.Bars.DailyBars(ctx, symbol, start, end)
	if err != nil {
		return res, fmt.Errorf("fetching bars from %s: %w", rn.Bars.Name(), err)
	}
	for _, sink := range rn.BarSinks {
		if err := sink.WriteBars(ctx, bars); err != nil {
			return res, fmt.Errorf("writing bars: %w", err)
		}
	}
	res.Bars = len(bars)

	if rn.News != nil {
		articles, err := rn.News.News(ctx, symbol, start, end)
		if err != nil {
			return res, fmt.Errorf("fetching news: %w", err)
		}
		for _, sink := range rn.NewsSinks {
			if err := sink.WriteNews(ctx, articles); err != nil {
				return res, fmt.Errorf("writing news: %w", err)
			}
		}
		res.Articles = len(articles)
	}

	if rn.Progress != nil {
		if err := rn.Progress.MarkFetched(symbol, end); err != nil {
			return res, fmt.Errorf("recording progress: %w", err)
		}
	}

	log.Info("fetched symbol",
		"symbol", symbol,
		"start", start.String(),
		"end", end.String(),
		"bars", res.Bars,
		"articles", res.Articles,
	)
	return res, nil
}
