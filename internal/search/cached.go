package search

import (
	"context"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/cache"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
)

// PageStore is the subset of the cache the fetcher needs
type PageStore interface {
	GetPage(ctx context.Context, scope, query string, start int) (*cache.Page, error)
	SetPage(ctx context.Context, scope, query string, start int, page *cache.Page) error
}

// CachedFetcher serves successful pages from a cache and falls through to
// the wrapped fetcher on a miss or cache error.
type CachedFetcher struct {
	next   PageFetcher
	store  PageStore
	scope  string
	logger *logging.Logger
}

// NewCachedFetcher wraps next with store. Pages are cached under scope, which
// must change whenever next would return differently shaped pages.
func NewCachedFetcher(next PageFetcher, store PageStore, scope string, logger *logging.Logger) *CachedFetcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CachedFetcher{next: next, store: store, scope: scope, logger: logger}
}

// FetchPage implements PageFetcher
func (f *CachedFetcher) FetchPage(ctx context.Context, query string, start int) PageResult {
	page, err := f.store.GetPage(ctx, f.scope, query, start)
	if err != nil {
		f.logger.WithError(err).Warn("page cache read failed")
	}
	if page != nil {
		metrics.RecordCacheAccess("page", true)
		return PageResult{Status: PageSuccess, Items: page.Items, NextStart: page.NextStart}
	}
	metrics.RecordCacheAccess("page", false)

	res := f.next.FetchPage(ctx, query, start)
	if res.Status != PageSuccess {
		return res
	}

	if err := f.store.SetPage(ctx, f.scope, query, start, &cache.Page{Items: res.Items, NextStart: res.NextStart}); err != nil {
		f.logger.WithError(err).Warn("page cache write failed")
	}
	return res
}
