package aggregator

import (
	"context"
	"strings"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/search"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/tracing"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Collector gathers up to a fixed number of results for one keyword by
// walking upstream pages in order.
type Collector struct {
	fetcher   search.PageFetcher
	pageSize  int
	pageLimit int
	logger    *logging.Logger
}

// NewCollector creates a collector. pageLimit caps the pages fetched per
// keyword regardless of how many results are wanted. pageSize is capped at
// search.MaxPageSize.
func NewCollector(fetcher search.PageFetcher, pageSize, pageLimit int, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Nop()
	}
	pageSize = min(pageSize, search.MaxPageSize)
	return &Collector{
		fetcher:   fetcher,
		pageSize:  pageSize,
		pageLimit: pageLimit,
		logger:    logger,
	}
}

// CompoundQuery joins the primary query and a keyword the way they are sent upstream
func CompoundQuery(primaryQuery, keyword string) string {
	return strings.TrimSpace(strings.TrimSpace(primaryQuery) + " " + strings.TrimSpace(keyword))
}

// PageCeiling returns how many pages may be fetched for wanted results
func (c *Collector) PageCeiling(wanted int) int {
	if wanted <= 0 || c.pageSize <= 0 {
		return 0
	}
	pages := (wanted + c.pageSize - 1) / c.pageSize
	return min(pages, c.pageLimit)
}

// Collect returns at most wanted items for keyword. Upstream failures end
// the walk early with whatever was gathered; only cancellation is an error.
func (c *Collector) Collect(ctx context.Context, primaryQuery, keyword string, wanted int) ([]models.ResultItem, error) {
	span, ctx := tracing.StartSpan(ctx, "aggregation.collect")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "keyword", keyword)

	query := CompoundQuery(primaryQuery, keyword)
	ceiling := c.PageCeiling(wanted)
	items := make([]models.ResultItem, 0, max(wanted, 0))
	start := 1
	pages := 0

walk:
	for pages < ceiling {
		if err := ctx.Err(); err != nil {
			tracing.LogError(span, err)
			return nil, err
		}

		res := c.fetcher.FetchPage(ctx, query, start)
		pages++

		switch res.Status {
		case search.PageFailed:
			c.logger.WithKeyword(keyword).WithError(res.Err).Warn("upstream degraded, returning partial results")
			metrics.RecordError("aggregator", "upstream_degraded")
			break walk
		case search.PageEmpty:
			break walk
		}

		items = append(items, res.Items...)
		if res.NextStart == 0 || len(items) >= wanted {
			break
		}
		start = res.NextStart
	}

	if err := ctx.Err(); err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	if len(items) > wanted {
		items = items[:wanted]
	}

	tracing.SetTag(span, "pages", pages)
	tracing.SetTag(span, "results", len(items))
	return items, nil
}
