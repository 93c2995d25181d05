package feed

import (
	"context"
	"time"

	"chartist/internal/domain"
	"chartist/internal/store"
)

var _ Provider = (*ArchiveProvider)(nil)

// ArchiveProvider serves bars from a local BarStore, for offline replay.
type ArchiveProvider struct {
	store store.BarStore
}

// NewArchiveProvider wraps s as a Provider.
func NewArchiveProvider(s store.BarStore) *ArchiveProvider {
	return &ArchiveProvider{store: s}
}

// FetchBars reads bars for symbol in [start, end] from the archive.
func (p *ArchiveProvider) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	canonical, err := CanonicalTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return p.store.ReadBars(ctx, symbol, canonical, start, end)
}
