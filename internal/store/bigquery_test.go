package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"

	"newsoverlay/internal/domain"
)

func TestBigQueryNewsConversion(t *testing.T) {
	in := sampleArticles()

	row := toBQNews(in[0])
	if row.Publisher == nil || row.Publisher.Name.StringVal != "Example Wire" {
		t.Fatalf("publisher = %+v", row.Publisher)
	}
	if row.Publisher.LogoURL.Valid {
		t.Error("empty logo URL should be stored as NULL")
	}
	if len(row.Insights) != 2 || row.Insights[1].Sentiment.Valid {
		t.Errorf("insights = %+v", row.Insights)
	}

	checkArticles(t, []domain.NewsArticle{fromBQNews(row), fromBQNews(toBQNews(in[1]))})
}

func TestBigQueryBarConversion(t *testing.T) {
	b := sampleBars()[0]
	got := fromBQBar(toBQBar(b))
	if got != b {
		t.Errorf("bar round trip = %+v, want %+v", got, b)
	}
}

func TestBigQueryTableMetadata(t *testing.T) {
	bars, err := barsTableMetadata()
	if err != nil {
		t.Fatalf("barsTableMetadata: %v", err)
	}
	if bars.TimePartitioning.Field != "ts" || bars.Clustering.Fields[0] != "symbol" {
		t.Errorf("stock_daily partitioning = %+v clustering = %+v", bars.TimePartitioning, bars.Clustering)
	}

	news, err := newsTableMetadata()
	if err != nil {
		t.Fatalf("newsTableMetadata: %v", err)
	}
	if news.TimePartitioning.Field != "published_utc" || news.Clustering.Fields[0] != "id" {
		t.Errorf("stock_news partitioning = %+v clustering = %+v", news.TimePartitioning, news.Clustering)
	}

	fields := make(map[string]*bigquery.FieldSchema)
	for _, f := range news.Schema {
		fields[f.Name] = f
	}
	if f := fields["publisher"]; f == nil || f.Type != bigquery.RecordFieldType {
		t.Errorf("publisher field = %+v, want RECORD", f)
	}
	if f := fields["tickers"]; f == nil || !f.Repeated {
		t.Errorf("tickers field = %+v, want repeated", f)
	}
	insights := fields["insights"]
	if insights == nil || !insights.Repeated || insights.Type != bigquery.RecordFieldType {
		t.Fatalf("insights field = %+v, want repeated RECORD", insights)
	}
	var names []string
	for _, f := range insights.Schema {
		names = append(names, f.Name)
	}
	if fmt.Sprint(names) != "[ticker sentiment sentiment_reasoning]" {
		t.Errorf("insight fields = %v", names)
	}
	if f := fields["published_utc"]; f == nil || f.Type != bigquery.TimestampFieldType {
		t.Errorf("published_utc field = %+v, want TIMESTAMP", f)
	}
}

func TestRangeFilter(t *testing.T) {
	filter, params := rangeFilter("ts", civil.Date{}, civil.Date{})
	if filter != "" || len(params) != 0 {
		t.Errorf("unbounded filter = %q, %v", filter, params)
	}

	filter, params = rangeFilter("ts", day(2025, time.July, 28), day(2025, time.September, 29))
	if filter != " WHERE ts >= @start AND ts <= @end" {
		t.Errorf("filter = %q", filter)
	}
	if len(params) != 2 || !params[0].Value.(time.Time).Equal(time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("params = %+v", params)
	}
}

func TestBarsQueryKeepsOneBarPerDay(t *testing.T) {
	const dedup = " QUALIFY ROW_NUMBER() OVER (PARTITION BY symbol, DATE(ts) ORDER BY ts DESC) = 1 ORDER BY symbol, ts"

	sql, params := barsQuery("`p.d.stock_daily`", "", civil.Date{}, civil.Date{})
	if want := "SELECT * FROM `p.d.stock_daily` WHERE TRUE" + dedup; sql != want {
		t.Errorf("unbounded query = %q, want %q", sql, want)
	}
	if len(params) != 0 {
		t.Errorf("unbounded params = %+v", params)
	}

	sql, params = barsQuery("`p.d.stock_daily`", "nflx", day(2025, time.July, 25), day(2025, time.September, 29))
	if want := "SELECT * FROM `p.d.stock_daily` WHERE ts >= @start AND ts <= @end AND symbol = @symbol" + dedup; sql != want {
		t.Errorf("query = %q, want %q", sql, want)
	}
	if len(params) != 3 || params[2].Name != "symbol" || params[2].Value != "NFLX" {
		t.Errorf("params = %+v", params)
	}

	sql, _ = barsQuery("`p.d.stock_daily`", "DIS", civil.Date{}, civil.Date{})
	if !strings.HasPrefix(sql, "SELECT * FROM `p.d.stock_daily` WHERE symbol = @symbol QUALIFY") {
		t.Errorf("symbol-only query = %q", sql)
	}
}

func TestIsAlreadyExists(t *testing.T) {
	conflict := fmt.Errorf("creating: %w", &googleapi.Error{Code: 409, Message: "Already Exists"})
	if !isAlreadyExists(conflict) {
		t.Error("409 should be treated as already exists")
	}
	if isAlreadyExists(&googleapi.Error{Code: 403}) {
		t.Error("403 should not be treated as already exists")
	}
	if isAlreadyExists(fmt.Errorf("boom")) {
		t.Error("plain error should not be treated as already exists")
	}
}
