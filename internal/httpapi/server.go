// Package httpapi provides the HTTP REST API behind the price and sentiment
// dashboard: the ticker list, candlestick data with sentiment markers, and
// the news behind each marker.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
	"newsoverlay/internal/sentiment"
	"newsoverlay/pkg/overlay"
)

// markerOffset lifts sentiment markers above the candle close.
const markerOffset = 2.0

// DashboardServer serves the dashboard HTTP API from a Cache.
type DashboardServer struct {
	cache *Cache
	log   *slog.Logger
}

// NewDashboardServer creates a new dashboard HTTP server.
func NewDashboardServer(cache *Cache, log *slog.Logger) *DashboardServer {
	if log == nil {
		log = slog.Default()
	}
	return &DashboardServer{cache: cache, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *DashboardServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/chart/{symbol}", s.handleChart)
	mux.HandleFunc("GET /api/news/{symbol}", s.handleNews)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// result fetches the cached pipeline result, writing a 503 on failure.
func (s *DashboardServer) result(w http.ResponseWriter, r *http.Request) (*sentiment.Result, bool) {
	res, err := s.cache.Get(r.Context())
	if err != nil {
		s.log.Error("loading pipeline result", "error", err)
		writeError(w, http.StatusServiceUnavailable, "data unavailable")
		return nil, false
	}
	return res, true
}

func (s *DashboardServer) handleTickers(w http.ResponseWriter, r *http.Request) {
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	tickers := res.Tickers()
	resp := overlay.TickersResponse{Tickers: tickers}
	if tickers == nil {
		resp.Tickers = []string{}
	} else {
		resp.Default = tickers[0]
	}
	writeJSON(w, resp)
}

func (s *DashboardServer) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	res, ok := s.result(w, r)
	if !ok {
		return
	}

	rows := res.Chart(symbol)
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no price data for %s", symbol))
		return
	}
	writeJSON(w, buildChart(symbol, rows))
}

func buildChart(symbol string, rows []domain.MergedRow) overlay.ChartResponse {
	resp := overlay.ChartResponse{
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s Daily Price with Sentiment", symbol),
		Candles: make([]overlay.CandleJSON, 0, len(rows)),
		Markers: make([]overlay.MarkerJSON, 0, len(rows)),
	}
	for _, m := range rows {
		date := m.Date.String()
		resp.Candles = append(resp.Candles, overlay.CandleJSON{
			Date:           date,
			Timestamp:      m.Timestamp.UnixMilli(),
			Open:           m.Open,
			High:           m.High,
			Low:            m.Low,
			Close:          m.Close,
			Volume:         m.Volume,
			SentimentScore: m.SentimentScore,
			NewsCount:      m.NewsCount,
		})

		tone := sentiment.ToneOf(m.SentimentScore)
		resp.Markers = append(resp.Markers, overlay.MarkerJSON{
			Date:      date,
			Y:         m.Close + markerOffset,
			Score:     m.SentimentScore,
			NewsCount: m.NewsCount,
			Tone:      string(tone),
			Color:     tone.Color(),
			Hover:     fmt.Sprintf("Sentiment Score: %d<br>News Count: %d", m.SentimentScore, m.NewsCount),
		})
	}
	return resp
}

func (s *DashboardServer) handleNews(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		writeJSON(w, overlay.NewsResponse{
			Symbol:  symbol,
			Rows:    []overlay.NewsRowJSON{},
			Message: "Click on a marker to see news details for that day.",
		})
		return
	}
	date, err := civil.ParseDate(dateParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	res, ok := s.result(w, r)
	if !ok {
		return
	}

	resp := overlay.NewsResponse{Symbol: symbol, Date: date.String(), Rows: []overlay.NewsRowJSON{}}
	for _, row := range res.DayNews(symbol, date) {
		resp.Rows = append(resp.Rows, overlay.NewsRowJSON{
			Ticker:     row.Ticker,
			Title:      row.Title,
			Sentiment:  string(row.Sentiment),
			Color:      sentiment.LabelTone(row.Sentiment).Color(),
			Reasoning:  row.Reasoning,
			Publisher:  row.PublisherName,
			ArticleURL: row.ArticleURL,
			Published:  row.PublishedAt.UnixMilli(),
		})
	}
	if len(resp.Rows) == 0 {
		resp.Message = fmt.Sprintf("No news found for %s on %s", symbol, date)
	}
	writeJSON(w, resp)
}

func (s *DashboardServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.cache.Refresh(r.Context())
	if err != nil {
		s.log.Error("refreshing pipeline result", "error", err)
		writeError(w, http.StatusServiceUnavailable, "refresh failed")
		return
	}
	s.log.Info("refreshed", "rows", len(res.Merged), "insights", len(res.Insights))
	writeJSON(w, overlay.RefreshResponse{
		LoadedAt: s.cache.LoadedAt().UnixMilli(),
		Tickers:  len(res.Tickers()),
		Rows:     len(res.Merged),
		Insights: len(res.Insights),
	})
}

func (s *DashboardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
