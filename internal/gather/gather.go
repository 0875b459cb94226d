// Package gather fetches daily bars and news for a set of symbols and loads
// them into the configured stores.
package gather

import (
	"context"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/domain"
)

// BarSource fetches daily bars for one symbol.
type BarSource interface {
	// Name returns the source identifier.
	Name() string
	// DailyBars returns bars for symbol between start and end inclusive.
	DailyBars(ctx context.Context, symbol string, start, end civil.Date) ([]domain.Bar, error)
}

// NewsSource fetches news articles mentioning one symbol.
type NewsSource interface {
	// News returns articles tagged with symbol published between start and
	// end inclusive.
	News(ctx context.Context, symbol string, start, end civil.Date) ([]domain.NewsArticle, error)
}

// DateRange is an inclusive range of calendar dates. A zero Start means
// "resume after the last fetched day"; a zero End means "the last completed
// trading day".
type DateRange struct {
	Start civil.Date
	End   civil.Date
}
