package gather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
	"newsoverlay/internal/store"
)

type fakeBars struct {
	mu    sync.Mutex
	calls map[string][2]civil.Date
	err   error
}

func (f *fakeBars) Name() string { return "fake" }

func (f *fakeBars) DailyBars(_ context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string][2]civil.Date)
	}
	f.calls[symbol] = [2]civil.Date{start, end}
	if f.err != nil {
		return nil, f.err
	}

	var bars []domain.Bar
	for d := start; !d.After(end); d = d.AddDays(1) {
		bars = append(bars, domain.Bar{Symbol: symbol, Timestamp: d.In(time.UTC).Add(4 * time.Hour), Close: 100})
	}
	return bars, nil
}

type fakeNews struct{}

func (fakeNews) News(_ context.Context, symbol string, start, _ civil.Date) ([]domain.NewsArticle, error) {
	return []domain.NewsArticle{{ID: symbol + "-1", PublishedAt: start.In(time.UTC), Tickers: []string{symbol}}}, nil
}

type memSink struct {
	mu       sync.Mutex
	bars     []domain.Bar
	articles []domain.NewsArticle
}

func (m *memSink) WriteBars(_ context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = append(m.bars, bars...)
	return nil
}

func (m *memSink) ReadBars(context.Context, string, civil.Date, civil.Date) ([]domain.Bar, error) {
	return nil, nil
}

func (m *memSink) ListSymbols(context.Context) ([]string, error) { return nil, nil }

func (m *memSink) WriteNews(_ context.Context, articles []domain.NewsArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = append(m.articles, articles...)
	return nil
}

func (m *memSink) ReadNews(context.Context, civil.Date, civil.Date) ([]domain.NewsArticle, error) {
	return nil, nil
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestRunnerFetchesAllSymbols(t *testing.T) {
	bars := &fakeBars{}
	sink := &memSink{}
	archive := &memSink{}
	rn := &Runner{
		Bars:       bars,
		News:       fakeNews{},
		BarSinks:   []store.BarStore{sink, archive},
		NewsSinks:  []store.NewsStore{sink},
		MaxWorkers: 2,
	}

	results, err := rn.Run(context.Background(), []string{"nflx", "DIS", "AAPL"},
		DateRange{Start: day(2025, time.July, 28), End: day(2025, time.July, 30)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 || results[0].Symbol != "NFLX" || results[2].Symbol != "AAPL" {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.Bars != 3 || r.Articles != 1 {
			t.Errorf("%s: bars=%d articles=%d, want 3 and 1", r.Symbol, r.Bars, r.Articles)
		}
	}
	if len(sink.bars) != 9 || len(archive.bars) != 9 {
		t.Errorf("sink bars = %d, archive bars = %d, want 9 each", len(sink.bars), len(archive.bars))
	}
	if len(sink.articles) != 3 || len(archive.articles) != 0 {
		t.Errorf("sink articles = %d, archive articles = %d, want 3 and 0", len(sink.articles), len(archive.articles))
	}
}

func TestRunnerResumesFromProgress(t *testing.T) {
	progress, err := NewProgress(t.TempDir())
	if err != nil {
		t.Fatalf("NewProgress: %v", err)
	}
	if err := progress.MarkFetched("NFLX", day(2025, time.July, 29)); err != nil {
		t.Fatalf("MarkFetched: %v", err)
	}

	bars := &fakeBars{}
	rn := &Runner{Bars: bars, Progress: progress, now: func() time.Time {
		// Saturday; the last completed weekday is Friday 2025-08-01.
		return time.Date(2025, 8, 2, 15, 0, 0, 0, time.UTC)
	}}

	results, err := rn.Run(context.Background(), []string{"NFLX"}, DateRange{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := bars.calls["NFLX"]
	if got[0] != day(2025, time.July, 30) || got[1] != day(2025, time.August, 1) {
		t.Errorf("DailyBars range = %v..%v, want 2025-07-30..2025-08-01", got[0], got[1])
	}
	if results[0].Bars != 3 {
		t.Errorf("bars = %d, want 3", results[0].Bars)
	}
	if last, ok := progress.LastFetched("NFLX"); !ok || last != day(2025, time.August, 1) {
		t.Errorf("LastFetched = %v, %v, want 2025-08-01", last, ok)
	}

	// A second run has nothing left to fetch.
	results, err = rn.Run(context.Background(), []string{"NFLX"}, DateRange{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !results[0].Skipped {
		t.Errorf("second run result = %+v, want skipped", results[0])
	}
}

func TestRunnerNoStartDate(t *testing.T) {
	rn := &Runner{Bars: &fakeBars{}}
	_, err := rn.Run(context.Background(), []string{"NFLX"}, DateRange{End: day(2025, time.July, 30)})
	if !errors.Is(err, ErrNoStartDate) {
		t.Errorf("Run error = %v, want ErrNoStartDate", err)
	}
}

func TestRunnerSourceError(t *testing.T) {
	boom := errors.New("boom")
	progress, err := NewProgress(t.TempDir())
	if err != nil {
		t.Fatalf("NewProgress: %v", err)
	}
	rn := &Runner{Bars: &fakeBars{err: boom}, Progress: progress}

	_, err = rn.Run(context.Background(), []string{"NFLX"},
		DateRange{Start: day(2025, time.July, 28), End: day(2025, time.July, 30)})
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if _, ok := progress.LastFetched("NFLX"); ok {
		t.Error("progress should not advance after a failed fetch")
	}
}

func TestProgressNeverMovesBackwards(t *testing.T) {
	p, err := NewProgress(t.TempDir())
	if err != nil {
		t.Fatalf("NewProgress: %v", err)
	}
	if _, ok := p.LastFetched("NFLX"); ok {
		t.Fatal("LastFetched on empty progress should be absent")
	}

	if err := p.MarkFetched("NFLX", day(2025, time.September, 29)); err != nil {
		t.Fatalf("MarkFetched: %v", err)
	}
	if err := p.MarkFetched("nflx", day(2025, time.July, 1)); err != nil {
		t.Fatalf("MarkFetched: %v", err)
	}
	if last, _ := p.LastFetched("NFLX"); last != day(2025, time.September, 29) {
		t.Errorf("LastFetched = %v, want 2025-09-29", last)
	}

	if err := p.Reset("NFLX"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := p.LastFetched("NFLX"); ok {
		t.Error("LastFetched after Reset should be absent")
	}
}
