package overlay

// Response types of the dashboard API, shared by the server and this client.

// TickersResponse lists the symbols available for charting.
type TickersResponse struct {
	Tickers []string `json:"tickers"`
	Default string   `json:"default,omitempty"`
}

// CandleJSON is one daily candle joined with that day's sentiment.
type CandleJSON struct {
	Date           string  `json:"date"`
	Timestamp      int64   `json:"ts"` // Unix ms
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Close          float64 `json:"close"`
	Volume         float64 `json:"volume"`
	SentimentScore int     `json:"sentimentScore"`
	NewsCount      int     `json:"newsCount"`
}

// MarkerJSON is the sentiment marker drawn above a candle.
type MarkerJSON struct {
	Date      string  `json:"date"`
	Y         float64 `json:"y"`
	Score     int     `json:"score"`
	NewsCount int     `json:"newsCount"`
	Tone      string  `json:"tone"`
	Color     string  `json:"color"`
	Hover     string  `json:"hover"`
}

// ChartResponse carries everything needed to draw one symbol's chart.
type ChartResponse struct {
	Symbol  string       `json:"symbol"`
	Title   string       `json:"title"`
	Candles []CandleJSON `json:"candles"`
	Markers []MarkerJSON `json:"markers"`
}

// NewsRowJSON is one insight row in the news detail table.
type NewsRowJSON struct {
	Ticker     string `json:"ticker"`
	Title      string `json:"title"`
	Sentiment  string `json:"sentiment"`
	Color      string `json:"color"`
	Reasoning  string `json:"reasoning,omitempty"`
	Publisher  string `json:"publisher,omitempty"`
	ArticleURL string `json:"articleUrl,omitempty"`
	Published  int64  `json:"published"` // Unix ms
}

// NewsResponse is the detail table for one symbol on one date. Message is
// set when there is nothing to show.
type NewsResponse struct {
	Symbol  string        `json:"symbol"`
	Date    string        `json:"date,omitempty"`
	Rows    []NewsRowJSON `json:"rows"`
	Message string        `json:"message,omitempty"`
}

// RefreshResponse reports the result of a forced reload.
type RefreshResponse struct {
	LoadedAt int64 `json:"loadedAt"` // Unix ms
	Tickers  int   `json:"tickers"`
	Rows     int   `json:"rows"`
	Insights int   `json:"insights"`
}
