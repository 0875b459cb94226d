package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/guregu/null/v6"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"newsoverlay/internal/domain"
)

// Compile-time interface check.
var _ Warehouse = (*BigQueryStore)(nil)

// BigQueryStore implements Warehouse on a BigQuery dataset.
type BigQueryStore struct {
	client   *bigquery.Client
	dataset  string
	location string
	log      *slog.Logger
}

// NewBigQueryStore connects to BigQuery. credentialsFile may be empty to use
// application default credentials.
func NewBigQueryStore(ctx context.Context, project, dataset, location, credentialsFile string, log *slog.Logger) (*BigQueryStore, error) {
	if project == "" {
		return nil, errors.New("bigquery: project is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if location != "" {
		client.Location = location
	}

	if log == nil {
		log = slog.Default()
	}
	return &BigQueryStore{
		client:   client,
		dataset:  dataset,
		location: location,
		log:      log.With("warehouse", "bigquery", "dataset", dataset),
	}, nil
}

// Close releases the client.
func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

// ---------------------------------------------------------------------------
// Row types
// ---------------------------------------------------------------------------

type bqBar struct {
	Symbol     string               `bigquery:"symbol"`
	Ts         time.Time            `bigquery:"ts"`
	Open       bigquery.NullFloat64 `bigquery:"open"`
	High       bigquery.NullFloat64 `bigquery:"high"`
	Low        bigquery.NullFloat64 `bigquery:"low"`
	Close      bigquery.NullFloat64 `bigquery:"close"`
	Volume     bigquery.NullFloat64 `bigquery:"volume"`
	VWAP       bigquery.NullFloat64 `bigquery:"vwap"`
	TradeCount bigquery.NullInt64   `bigquery:"trade_count"`
}

type bqPublisher struct {
	Name        bigquery.NullString `bigquery:"name"`
	HomepageURL bigquery.NullString `bigquery:"homepage_url"`
	LogoURL     bigquery.NullString `bigquery:"logo_url"`
	FaviconURL  bigquery.NullString `bigquery:"favicon_url"`
}

type bqInsight struct {
	Ticker    bigquery.NullString `bigquery:"ticker"`
	Sentiment bigquery.NullString `bigquery:"sentiment"`
	Reasoning bigquery.NullString `bigquery:"sentiment_reasoning"`
}

type bqNews struct {
	ID           string                 `bigquery:"id"`
	Publisher    *bqPublisher           `bigquery:"publisher,nullable"`
	Title        bigquery.NullString    `bigquery:"title"`
	Author       bigquery.NullString    `bigquery:"author"`
	PublishedUTC time.Time              `bigquery:"published_utc"`
	ArticleURL   bigquery.NullString    `bigquery:"article_url"`
	Tickers      []string               `bigquery:"tickers"`
	AMPURL       bigquery.NullString    `bigquery:"amp_url"`
	ImageURL     bigquery.NullString    `bigquery:"image_url"`
	Description  bigquery.NullString    `bigquery:"description"`
	Keywords     []string               `bigquery:"keywords"`
	Insights     []bqInsight            `bigquery:"insights"`
	IngestedAt   bigquery.NullTimestamp `bigquery:"ingested_at"`
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullFromBQ(s bigquery.NullString) null.String {
	return null.NewString(s.StringVal, s.Valid)
}

func bqFromNull(s null.String) bigquery.NullString {
	return bigquery.NullString{StringVal: s.String, Valid: s.Valid}
}

func toBQBar(b domain.Bar) bqBar {
	return bqBar{
		Symbol:     b.Symbol,
		Ts:         b.Timestamp.UTC(),
		Open:       bigquery.NullFloat64{Float64: b.Open, Valid: true},
		High:       bigquery.NullFloat64{Float64: b.High, Valid: true},
		Low:        bigquery.NullFloat64{Float64: b.Low, Valid: true},
		Close:      bigquery.NullFloat64{Float64: b.Close, Valid: true},
		Volume:     bigquery.NullFloat64{Float64: b.Volume, Valid: true},
		VWAP:       bigquery.NullFloat64{Float64: b.VWAP, Valid: true},
		TradeCount: bigquery.NullInt64{Int64: b.TradeCount, Valid: true},
	}
}

func fromBQBar(r bqBar) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  r.Ts.UTC(),
		Open:       r.Open.Float64,
		High:       r.High.Float64,
		Low:        r.Low.Float64,
		Close:      r.Close.Float64,
		Volume:     r.Volume.Float64,
		VWAP:       r.VWAP.Float64,
		TradeCount: r.TradeCount.Int64,
	}
}

func toBQNews(a domain.NewsArticle) bqNews {
	r := bqNews{
		ID: a.ID,
		Publisher: &bqPublisher{
			Name:        nullString(a.Publisher.Name),
			HomepageURL: nullString(a.Publisher.HomepageURL),
			LogoURL:     nullString(a.Publisher.LogoURL),
			FaviconURL:  nullString(a.Publisher.FaviconURL),
		},
		Title:        nullString(a.Title),
		Author:       nullString(a.Author),
		PublishedUTC: a.PublishedAt.UTC(),
		ArticleURL:   nullString(a.ArticleURL),
		Tickers:      a.Tickers,
		AMPURL:       nullString(a.AMPURL),
		ImageURL:     nullString(a.ImageURL),
		Description:  nullString(a.Description),
		Keywords:     a.Keywords,
		IngestedAt:   bigquery.NullTimestamp{Timestamp: a.IngestedAt.UTC(), Valid: !a.IngestedAt.IsZero()},
	}
	for _, in := range a.Insights {
		r.Insights = append(r.Insights, bqInsight{
			Ticker:    bqFromNull(in.Ticker),
			Sentiment: bqFromNull(in.Sentiment),
			Reasoning: bqFromNull(in.Reasoning),
		})
	}
	return r
}

func fromBQNews(r bqNews) domain.NewsArticle {
	a := domain.NewsArticle{
		ID:          r.ID,
		Title:       r.Title.StringVal,
		Author:      r.Author.StringVal,
		Description: r.Description.StringVal,
		ArticleURL:  r.ArticleURL.StringVal,
		AMPURL:      r.AMPURL.StringVal,
		ImageURL:    r.ImageURL.StringVal,
		PublishedAt: r.PublishedUTC.UTC(),
		Tickers:     r.Tickers,
		Keywords:    r.Keywords,
	}
	if r.Publisher != nil {
		a.Publisher = domain.Publisher{
			Name:        r.Publisher.Name.StringVal,
			HomepageURL: r.Publisher.HomepageURL.StringVal,
			LogoURL:     r.Publisher.LogoURL.StringVal,
			FaviconURL:  r.Publisher.FaviconURL.StringVal,
		}
	}
	if r.IngestedAt.Valid {
		a.IngestedAt = r.IngestedAt.Timestamp.UTC()
	}
	for _, in := range r.Insights {
		a.Insights = append(a.Insights, domain.Insight{
			Ticker:    nullFromBQ(in.Ticker),
			Sentiment: nullFromBQ(in.Sentiment),
			Reasoning: nullFromBQ(in.Reasoning),
		})
	}
	return a
}

// ---------------------------------------------------------------------------
// Provisioning
// ---------------------------------------------------------------------------

// barsTableMetadata describes stock_daily: partitioned by day on ts and
// clustered by symbol.
func barsTableMetadata() (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(bqBar{})
	if err != nil {
		return nil, err
	}
	return &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "ts",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"symbol"}},
	}, nil
}

// newsTableMetadata describes stock_news: partitioned by day on
// published_utc and clustered by id.
func newsTableMetadata() (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(bqNews{})
	if err != nil {
		return nil, err
	}
	return &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "published_utc",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"id"}},
	}, nil
}

// Provision creates the dataset and both tables.
func (s *BigQueryStore) Provision(ctx context.Context) error {
	ds := s.client.Dataset(s.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: s.location}); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("creating dataset %s: %w", s.dataset, err)
		}
		s.log.Info("dataset already exists")
	} else {
		s.log.Info("created dataset", "location", s.location)
	}

	tables := []struct {
		name string
		meta func() (*bigquery.TableMetadata, error)
	}{
		{BarsTable, barsTableMetadata},
		{NewsTable, newsTableMetadata},
	}
	for _, t := range tables {
		meta, err := t.meta()
		if err != nil {
			return fmt.Errorf("schema for %s: %w", t.name, err)
		}
		if err := ds.Table(t.name).Create(ctx, meta); err != nil {
			if !isAlreadyExists(err) {
				return fmt.Errorf("creating table %s: %w", t.name, err)
			}
			s.log.Info("table already exists", "table", t.name)
			continue
		}
		s.log.Info("created table", "table", t.name)
	}
	return nil
}

// isAlreadyExists reports whether err is a BigQuery 409 Conflict.
func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// WriteBars streams bars into stock_daily. The insert ID symbol|ts lets
// BigQuery drop retried duplicates.
func (s *BigQueryStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	savers := make([]*bigquery.StructSaver, 0, len(bars))
	for _, b := range bars {
		row := toBQBar(b)
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			InsertID: fmt.Sprintf("%s|%d", row.Symbol, row.Ts.UnixMilli()),
		})
	}
	if err := s.client.Dataset(s.dataset).Table(BarsTable).Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("inserting bars: %w", err)
	}
	s.log.Debug("wrote bars", "rows", len(bars))
	return nil
}

// WriteNews streams articles into stock_news keyed by article ID.
func (s *BigQueryStore) WriteNews(ctx context.Context, articles []domain.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}
	savers := make([]*bigquery.StructSaver, 0, len(articles))
	for _, a := range articles {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   toBQNews(a),
			InsertID: a.ID,
		})
	}
	if err := s.client.Dataset(s.dataset).Table(NewsTable).Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("inserting news: %w", err)
	}
	s.log.Debug("wrote news", "rows", len(articles))
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *BigQueryStore) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.client.Project(), s.dataset, name)
}

// rangeFilter builds a WHERE clause over a TIMESTAMP column.
func rangeFilter(column string, start, end civil.Date) (string, []bigquery.QueryParameter) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)
	lo, hi := timeBounds(start, end)
	if !lo.IsZero() {
		where = append(where, column+" >= @start")
		params = append(params, bigquery.QueryParameter{Name: "start", Value: lo})
	}
	if !hi.IsZero() {
		where = append(where, column+" <= @end")
		params = append(params, bigquery.QueryParameter{Name: "end", Value: hi})
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), params
}

// barsQuery selects stock_daily rows within the range. Streaming inserts only
// append, so a re-fetched day can be stored more than once; QUALIFY keeps the
// latest bar per (symbol, UTC day).
func barsQuery(table, symbol string, start, end civil.Date) (string, []bigquery.QueryParameter) {
	filter, params := rangeFilter("ts", start, end)
	if symbol != "" {
		if filter == "" {
			filter = " WHERE symbol = @symbol"
		} else {
			filter += " AND symbol = @symbol"
		}
		params = append(params, bigquery.QueryParameter{Name: "symbol", Value: strings.ToUpper(symbol)})
	}
	if filter == "" {
		// QUALIFY needs a WHERE clause alongside it.
		filter = " WHERE TRUE"
	}
	sql := "SELECT * FROM " + table + filter +
		" QUALIFY ROW_NUMBER() OVER (PARTITION BY symbol, DATE(ts) ORDER BY ts DESC) = 1" +
		" ORDER BY symbol, ts"
	return sql, params
}

// ReadBars queries stock_daily ordered by symbol then ts, one bar per
// (symbol, day).
func (s *BigQueryStore) ReadBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error) {
	sql, params := barsQuery(s.table(BarsTable), symbol, start, end)
	q := s.client.Query(sql)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}

	var bars []domain.Bar
	for {
		var row bqBar
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading bar row: %w", err)
		}
		bars = append(bars, fromBQBar(row))
	}
	return bars, nil
}

// ListSymbols returns the distinct symbols in stock_daily.
func (s *BigQueryStore) ListSymbols(ctx context.Context) ([]string, error) {
	q := s.client.Query("SELECT DISTINCT symbol FROM " + s.table(BarsTable) + " ORDER BY symbol")
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}

	var symbols []string
	for {
		var row struct {
			Symbol string `bigquery:"symbol"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, row.Symbol)
	}
	return symbols, nil
}

// ReadNews queries stock_news ordered by ingestion time, then ID.
func (s *BigQueryStore) ReadNews(ctx context.Context, start, end civil.Date) ([]domain.NewsArticle, error) {
	filter, params := rangeFilter("published_utc", start, end)

	q := s.client.Query("SELECT * FROM " + s.table(NewsTable) + filter + " ORDER BY ingested_at, id")
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying news: %w", err)
	}

	var articles []domain.NewsArticle
	for {
		var row bqNews
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading news row: %w", err)
		}
		articles = append(articles, fromBQNews(row))
	}
	return articles, nil
}
