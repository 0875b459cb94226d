package gather

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
)

// Progress records the last fetched day per symbol in .last-fetched files so
// an interrupted or periodic fetch can resume:
//
//	<dir>/<SYMBOL>/.last-fetched
type Progress struct {
	mu  sync.Mutex
	dir string
}

// NewProgress creates a Progress rooted at dir.
func NewProgress(dir string) (*Progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	return &Progress{dir: dir}, nil
}

func (p *Progress) path(symbol string) string {
	return filepath.Join(p.dir, strings.ToUpper(symbol), ".last-fetched")
}

// LastFetched returns the last fetched day for symbol, if any.
func (p *Progress) LastFetched(symbol string) (civil.Date, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path(symbol))
	if err != nil {
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(strings.TrimSpace(string(data)))
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

// MarkFetched records d as the last fetched day for symbol. An earlier date
// never overwrites a later one.
func (p *Progress) MarkFetched(symbol string, d civil.Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.path(symbol)
	if data, err := os.ReadFile(path); err == nil {
		if prev, err := civil.ParseDate(strings.TrimSpace(string(data))); err == nil && prev.After(d) {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(d.String()), 0o644)
}

// Reset forgets the progress for symbol.
func (p *Progress) Reset(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.path(symbol))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
