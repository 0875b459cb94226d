package polygon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, MaxRetries: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryDelay = 0
	c.now = func() time.Time { return time.Date(2025, 9, 30, 12, 0, 0, 0, time.UTC) }
	return c
}

var (
	jul25 = civil.Date{Year: 2025, Month: time.July, Day: 25}
	sep29 = civil.Date{Year: 2025, Month: time.September, Day: 29}
)

func TestDailyBars(t *testing.T) {
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apiKey"); got != "test-key" {
			t.Errorf("apiKey = %q, want %q", got, "test-key")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			if r.URL.Path != "/v2/aggs/ticker/NFLX/range/1/day/2025-07-25/2025-09-29" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if r.URL.Query().Get("adjusted") != "true" || r.URL.Query().Get("sort") != "asc" {
				t.Errorf("query = %q, want adjusted=true&sort=asc", r.URL.RawQuery)
			}
			fmt.Fprintf(w, `{"ticker":"NFLX","status":"OK","resultsCount":1,
				"results":[{"v":3.5e6,"vw":1172.3,"o":1165,"c":1175.5,"h":1180,"l":1160,"t":1753675200000,"n":91234}],
				"next_url":"%s/v2/aggs/ticker/NFLX/range/1/day/2025-07-25/2025-09-29?cursor=p2"}`, srvURL)
		case "p2":
			fmt.Fprint(w, `{"ticker":"NFLX","status":"OK","resultsCount":1,
				"results":[{"v":2.1e6,"vw":1181,"o":1176,"c":1183,"h":1190,"l":1170,"t":1753761600000,"n":80000}]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})
	srvURL = c.cfg.BaseURL

	bars, err := c.DailyBars(context.Background(), "nflx", jul25, sep29)
	if err != nil {
		t.Fatalf("DailyBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("DailyBars returned %d bars, want 2", len(bars))
	}

	b := bars[0]
	if b.Symbol != "NFLX" {
		t.Errorf("Symbol = %q, want NFLX", b.Symbol)
	}
	wantTS := time.Date(2025, 7, 28, 4, 0, 0, 0, time.UTC)
	if !b.Timestamp.Equal(wantTS) || b.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v in UTC", b.Timestamp, wantTS)
	}
	if b.Open != 1165 || b.High != 1180 || b.Low != 1160 || b.Close != 1175.5 {
		t.Errorf("OHLC = %v/%v/%v/%v", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume != 3.5e6 || b.VWAP != 1172.3 || b.TradeCount != 91234 {
		t.Errorf("Volume/VWAP/TradeCount = %v/%v/%v", b.Volume, b.VWAP, b.TradeCount)
	}
	if bars[1].Close != 1183 {
		t.Errorf("second page Close = %v, want 1183", bars[1].Close)
	}
}

func TestDailyBarsNoResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ticker":"ZZZZ","status":"OK","resultsCount":0}`)
	})
	bars, err := c.DailyBars(context.Background(), "ZZZZ", jul25, sep29)
	if err != nil {
		t.Fatalf("DailyBars: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("DailyBars returned %d bars, want 0", len(bars))
	}
}

func TestNews(t *testing.T) {
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("cursor") == "" {
			if r.URL.Path != "/v2/reference/news" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if q.Get("ticker") != "NFLX" || q.Get("published_utc.gte") != "2025-07-25" || q.Get("published_utc.lt") != "2025-09-30" {
				t.Errorf("query = %q", r.URL.RawQuery)
			}
			if q.Get("limit") != "1000" {
				t.Errorf("limit = %q, want 1000", q.Get("limit"))
			}
			fmt.Fprintf(w, `{"status":"OK","count":2,"next_url":"%s/v2/reference/news?cursor=abc","results":[
				{"id":"a1","title":"Netflix beats","author":"Jane","published_utc":"2025-07-28T14:05:00Z",
				 "article_url":"https://example.com/a1","tickers":["NFLX"],"keywords":["earnings"],
				 "publisher":{"name":"Benzinga","homepage_url":"https://benzinga.com"},
				 "insights":[
				   {"ticker":"NFLX","sentiment":"positive","sentiment_reasoning":"strong subs"},
				   {"ticker":"NFLX","sentiment":null},
				   "not-a-record",
				   {"ticker":42,"sentiment":"negative"}
				 ]},
				{"id":"bad","title":"Broken","published_utc":"yesterday"}
			]}`, srvURL)
		} else {
			fmt.Fprint(w, `{"status":"OK","count":1,"results":[
				{"id":"a2","title":"Second page","published_utc":"2025-07-29T09:00:00Z","insights":[]}
			]}`)
		}
	})
	srvURL = c.cfg.BaseURL

	articles, err := c.News(context.Background(), "NFLX", jul25, sep29)
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("News returned %d articles, want 2 (unparseable one dropped)", len(articles))
	}

	a := articles[0]
	if a.ID != "a1" || a.Title != "Netflix beats" || a.Author != "Jane" {
		t.Errorf("article = %+v", a)
	}
	if a.Publisher.Name != "Benzinga" || a.Publisher.HomepageURL != "https://benzinga.com" {
		t.Errorf("Publisher = %+v", a.Publisher)
	}
	if !a.PublishedAt.Equal(time.Date(2025, 7, 28, 14, 5, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", a.PublishedAt)
	}
	if !a.IngestedAt.Equal(time.Date(2025, 9, 30, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("IngestedAt = %v", a.IngestedAt)
	}
	if len(a.Insights) != 4 {
		t.Fatalf("Insights = %d entries, want 4 (malformed ones coerced, not dropped)", len(a.Insights))
	}

	if ticker, ok := a.Insights[0].TickerValue(); !ok || ticker != "NFLX" {
		t.Errorf("insight 0 ticker = (%q, %v)", ticker, ok)
	}
	if a.Insights[0].Reasoning.ValueOrZero() != "strong subs" {
		t.Errorf("insight 0 reasoning = %q", a.Insights[0].Reasoning.ValueOrZero())
	}
	if _, ok := a.Insights[1].SentimentValue(); ok {
		t.Error("insight 1 should have null sentiment")
	}
	for _, i := range []int{2, 3} {
		if _, ok := a.Insights[i].TickerValue(); ok {
			t.Errorf("insight %d should be coerced to null", i)
		}
	}

	if articles[1].ID != "a2" || len(articles[1].Insights) != 0 {
		t.Errorf("second page article = %+v", articles[1])
	}
}

func TestClientErrorStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"NOT_AUTHORIZED","message":"bad key"}`)
	})

	_, err := c.News(context.Background(), "NFLX", jul25, sep29)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("News error = %v, want ErrStatus", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1 (4xx is not retried)", calls.Load())
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"status":"OK","results":[]}`)
	})

	if _, err := c.DailyBars(context.Background(), "NFLX", jul25, sep29); err != nil {
		t.Fatalf("DailyBars: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
}

func TestClientStatusField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ERROR","error":"Unknown API Key"}`)
	})
	_, err := c.DailyBars(context.Background(), "NFLX", jul25, sep29)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("DailyBars error = %v, want ErrStatus", err)
	}
}
