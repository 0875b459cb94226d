package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Warehouse = (*SQLiteStore)(nil)

// SQLiteStore implements Warehouse backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath. Call
// Provision before the first write.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if log == nil {
		log = slog.Default()
	}
	return &SQLiteStore{db: db, log: log.With("warehouse", "sqlite")}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

var sqliteTables = []struct {
	name string
	ddl  []string
}{
	{
		name: BarsTable,
		ddl: []string{`CREATE TABLE stock_daily (
			symbol      TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL,
			high        REAL,
			low         REAL,
			close       REAL,
			volume      REAL,
			vwap        REAL,
			trade_count INTEGER,
			PRIMARY KEY (symbol, ts)
		)`},
	},
	{
		name: NewsTable,
		ddl: []string{
			`CREATE TABLE stock_news (
				seq                   INTEGER PRIMARY KEY AUTOINCREMENT,
				id                    TEXT    NOT NULL UNIQUE,
				title                 TEXT,
				author                TEXT,
				description           TEXT,
				article_url           TEXT,
				amp_url               TEXT,
				image_url             TEXT,
				published_utc         INTEGER NOT NULL,
				publisher_name        TEXT,
				publisher_homepage_url TEXT,
				publisher_logo_url    TEXT,
				publisher_favicon_url TEXT,
				ingested_at           INTEGER NOT NULL
			)`,
			`CREATE INDEX stock_news_published ON stock_news (published_utc)`,
			`CREATE TABLE stock_news_tickers (
				news_id TEXT    NOT NULL,
				pos     INTEGER NOT NULL,
				ticker  TEXT    NOT NULL,
				PRIMARY KEY (news_id, pos)
			)`,
			`CREATE TABLE stock_news_keywords (
				news_id TEXT    NOT NULL,
				pos     INTEGER NOT NULL,
				keyword TEXT    NOT NULL,
				PRIMARY KEY (news_id, pos)
			)`,
			`CREATE TABLE stock_news_insights (
				news_id             TEXT    NOT NULL,
				pos                 INTEGER NOT NULL,
				ticker              TEXT,
				sentiment           TEXT,
				sentiment_reasoning TEXT,
				PRIMARY KEY (news_id, pos)
			)`,
		},
	},
}

// Provision creates the bar and news tables. Tables that already exist are
// left untouched.
func (s *SQLiteStore) Provision(ctx context.Context) error {
	for _, t := range sqliteTables {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, t.name).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking table %s: %w", t.name, err)
		}
		if n > 0 {
			s.log.Info("table already exists", "table", t.name)
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range t.ddl {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("creating table %s: %w", t.name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("creating table %s: %w", t.name, err)
		}
		s.log.Info("created table", "table", t.name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars upserts bars keyed on (symbol, ts).
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_daily (symbol, ts, open, high, low, close, volume, vwap, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, vwap = excluded.vwap,
			trade_count = excluded.trade_count`)
	if err != nil {
		return fmt.Errorf("preparing bar insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, b.Timestamp.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP, b.TradeCount)
		if err != nil {
			return fmt.Errorf("inserting bar %s %s: %w", b.Symbol, b.Date(), err)
		}
	}
	return tx.Commit()
}

// ReadBars returns bars ordered by symbol then timestamp.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	var (
		where []string
		args  []any
	)
	if symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(symbol))
	}
	lo, hi := timeBounds(start, end)
	if !lo.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, lo.UnixMilli())
	}
	if !hi.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, hi.UnixMilli())
	}

	query := `SELECT symbol, ts, open, high, low, close, volume, vwap, trade_count FROM stock_daily`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY symbol, ts"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b  domain.Bar
			ts int64
		)
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.VWAP, &b.TradeCount); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns the distinct symbols in stock_daily, sorted.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM stock_daily ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// WriteNews inserts articles that are not yet stored. The first stored copy
// of an article ID wins, along with its tickers, keywords and insights.
func (s *SQLiteStore) WriteNews(ctx context.Context, articles []domain.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inserted := 0
	for _, a := range articles {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO stock_news (
				id, title, author, description, article_url, amp_url, image_url,
				published_utc, publisher_name, publisher_homepage_url,
				publisher_logo_url, publisher_favicon_url, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Title, a.Author, a.Description, a.ArticleURL, a.AMPURL, a.ImageURL,
			a.PublishedAt.UnixMilli(), a.Publisher.Name, a.Publisher.HomepageURL,
			a.Publisher.LogoURL, a.Publisher.FaviconURL, a.IngestedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("inserting article %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		inserted++

		for i, t := range a.Tickers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stock_news_tickers (news_id, pos, ticker) VALUES (?, ?, ?)`,
				a.ID, i, t); err != nil {
				return fmt.Errorf("inserting ticker for %s: %w", a.ID, err)
			}
		}
		for i, k := range a.Keywords {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stock_news_keywords (news_id, pos, keyword) VALUES (?, ?, ?)`,
				a.ID, i, k); err != nil {
				return fmt.Errorf("inserting keyword for %s: %w", a.ID, err)
			}
		}
		for i, in := range a.Insights {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stock_news_insights (news_id, pos, ticker, sentiment, sentiment_reasoning)
				 VALUES (?, ?, ?, ?, ?)`,
				a.ID, i, in.Ticker, in.Sentiment, in.Reasoning); err != nil {
				return fmt.Errorf("inserting insight for %s: %w", a.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("wrote news", "articles", len(articles), "inserted", inserted)
	return nil
}

// ReadNews returns articles ordered by insertion sequence.
func (s *SQLiteStore) ReadNews(ctx context.Context, start, end civil.Date) ([]domain.NewsArticle, error) {
	var (
		where []string
		args  []any
	)
	lo, hi := timeBounds(start, end)
	if !lo.IsZero() {
		where = append(where, "published_utc >= ?")
		args = append(args, lo.UnixMilli())
	}
	if !hi.IsZero() {
		where = append(where, "published_utc <= ?")
		args = append(args, hi.UnixMilli())
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, description, article_url, amp_url, image_url,
			published_utc, publisher_name, publisher_homepage_url,
			publisher_logo_url, publisher_favicon_url, ingested_at
		FROM stock_news`+filter+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying news: %w", err)
	}

	var articles []domain.NewsArticle
	index := make(map[string]int)
	for rows.Next() {
		var (
			a                   domain.NewsArticle
			published, ingested int64
			text                [10]sql.NullString
		)
		if err := rows.Scan(&a.ID, &text[0], &text[1], &text[2], &text[3], &text[4], &text[5],
			&published, &text[6], &text[7], &text[8], &text[9], &ingested); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		a.Title, a.Author, a.Description = text[0].String, text[1].String, text[2].String
		a.ArticleURL, a.AMPURL, a.ImageURL = text[3].String, text[4].String, text[5].String
		a.Publisher = domain.Publisher{
			Name:        text[6].String,
			HomepageURL: text[7].String,
			LogoURL:     text[8].String,
			FaviconURL:  text[9].String,
		}
		a.PublishedAt = time.UnixMilli(published).UTC()
		a.IngestedAt = time.UnixMilli(ingested).UTC()
		index[a.ID] = len(articles)
		articles = append(articles, a)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("reading news: %w", err)
	}
	if len(articles) == 0 {
		return nil, nil
	}

	sub := `SELECT id FROM stock_news` + filter

	if err := s.eachChild(ctx, `SELECT news_id, ticker FROM stock_news_tickers WHERE news_id IN (`+sub+`) ORDER BY news_id, pos`, args,
		func(rows *sql.Rows) error {
			var id, ticker string
			if err := rows.Scan(&id, &ticker); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				articles[i].Tickers = append(articles[i].Tickers, ticker)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("reading tickers: %w", err)
	}

	if err := s.eachChild(ctx, `SELECT news_id, keyword FROM stock_news_keywords WHERE news_id IN (`+sub+`) ORDER BY news_id, pos`, args,
		func(rows *sql.Rows) error {
			var id, keyword string
			if err := rows.Scan(&id, &keyword); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				articles[i].Keywords = append(articles[i].Keywords, keyword)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("reading keywords: %w", err)
	}

	if err := s.eachChild(ctx, `SELECT news_id, ticker, sentiment, sentiment_reasoning FROM stock_news_insights WHERE news_id IN (`+sub+`) ORDER BY news_id, pos`, args,
		func(rows *sql.Rows) error {
			var (
				id string
				in domain.Insight
			)
			if err := rows.Scan(&id, &in.Ticker, &in.Sentiment, &in.Reasoning); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				articles[i].Insights = append(articles[i].Insights, in)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("reading insights: %w", err)
	}

	return articles, nil
}

func (s *SQLiteStore) eachChild(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
