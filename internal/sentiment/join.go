package sentiment

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
)

// ErrDuplicateBar is returned when more than one bar exists for the same
// symbol on the same calendar day. Joining such input would fan out rows.
var ErrDuplicateBar = errors.New("duplicate bar for symbol and date")

// DuplicateBarError identifies the first duplicated (symbol, date) pair.
type DuplicateBarError struct {
	Symbol string
	Date   civil.Date
	First  int // index of the first bar with this key
	Second int // index of the offending bar
}

func (e *DuplicateBarError) Error() string {
	return fmt.Sprintf("%s: %s on %s (rows %d and %d)", ErrDuplicateBar, e.Symbol, e.Date, e.First, e.Second)
}

func (e *DuplicateBarError) Unwrap() error { return ErrDuplicateBar }

type barKey struct {
	symbol string
	date   civil.Date
}

// ValidateUniqueBars checks that (symbol, UTC date) is unique across bars.
func ValidateUniqueBars(bars []domain.Bar) error {
	seen := make(map[barKey]int, len(bars))
	for i, b := range bars {
		k := barKey{symbol: b.Symbol, date: b.Date()}
		if j, dup := seen[k]; dup {
			return &DuplicateBarError{Symbol: b.Symbol, Date: k.date, First: j, Second: i}
		}
		seen[k] = i
	}
	return nil
}

// Join left-joins bars with daily sentiment on (symbol = ticker, date). A bar
// without sentiment gets a zero score and a zero count. The output has one
// row per bar, in input order.
func Join(bars []domain.Bar, daily map[domain.SentimentKey]domain.DailySentiment) ([]domain.MergedRow, error) {
	if err := ValidateUniqueBars(bars); err != nil {
		return nil, err
	}

	merged := make([]domain.MergedRow, 0, len(bars))
	for _, b := range bars {
		date := b.Date()
		d := daily[domain.SentimentKey{Ticker: b.Symbol, Date: date}]
		merged = append(merged, domain.MergedRow{
			Bar:            b,
			Date:           date,
			SentimentScore: d.Score,
			NewsCount:      d.NewsCount,
		})
	}
	return merged, nil
}
