// Package aggregator turns a query and keyword list into a keyword-bucketed
// result set, charging the caller's quota exactly once per completed run.
package aggregator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/config"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/quota"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/search"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/tracing"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Config holds pipeline settings. It is copied at construction.
type Config struct {
	PageSize           int
	PageLimit          int
	KeywordConcurrency int
	Validation         string
}

// ConfigFrom extracts pipeline settings from the search configuration
func ConfigFrom(cfg config.SearchConfig) Config {
	return Config{
		PageSize:           cfg.PageSize,
		PageLimit:          cfg.PageLimit,
		KeywordConcurrency: cfg.KeywordConcurrency,
		Validation:         cfg.Validation,
	}
}

// Ledger is the quota bookkeeping a run needs
type Ledger interface {
	LoadQuota(ctx context.Context, accountID string) (models.Quota, error)
	Commit(ctx context.Context, accountID string, record *models.UsageRecord) (models.Quota, error)
}

// EventPublisher receives usage events after a run is committed
type EventPublisher interface {
	PublishUsage(ctx context.Context, event models.UsageEvent) error
}

// Result is a committed run
type Result struct {
	Outcome models.Outcome
	Quota   models.Quota
}

// Pipeline runs aggregation requests
type Pipeline struct {
	cfg       Config
	ledger    Ledger
	collector *Collector
	events    EventPublisher
	logger    *logging.Logger
}

// NewPipeline creates a pipeline. events may be nil.
func NewPipeline(cfg Config, ledger Ledger, fetcher search.PageFetcher, events EventPublisher, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.KeywordConcurrency < 1 {
		cfg.KeywordConcurrency = 1
	}
	if cfg.Validation == "" {
		cfg.Validation = config.ValidationLenient
	}
	return &Pipeline{
		cfg:       cfg,
		ledger:    ledger,
		collector: NewCollector(fetcher, cfg.PageSize, cfg.PageLimit, logger),
		events:    events,
		logger:    logger,
	}
}

// ParseKeywords splits a comma-separated list, trimming entries and
// dropping blanks and repeats. Order of first occurrence is kept.
func ParseKeywords(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// QueryText is the history form of a request
func QueryText(query, keywordsRaw string) string {
	var parts []string
	if q := strings.TrimSpace(query); q != "" {
		parts = append(parts, q)
	}
	if k := strings.TrimSpace(keywordsRaw); k != "" {
		parts = append(parts, k)
	}
	return strings.Join(parts, " - ")
}

func (p *Pipeline) validate(query, keywordsRaw string) error {
	blankQuery := strings.TrimSpace(query) == ""
	blankKeywords := len(ParseKeywords(keywordsRaw)) == 0

	if p.cfg.Validation == config.ValidationStrict {
		if blankQuery {
			return apperrors.Validation("Missing website name")
		}
		if blankKeywords {
			return apperrors.Validation("Missing keywords")
		}
		return nil
	}

	if blankQuery && blankKeywords {
		return apperrors.Validation("Missing query")
	}
	return nil
}

// Run executes one aggregation request for accountID
func (p *Pipeline) Run(ctx context.Context, accountID, query, keywordsRaw string) (*Result, error) {
	span, ctx := tracing.StartSpan(ctx, "aggregation.run")
	defer tracing.FinishSpan(span)

	began := time.Now()
	log := p.logger.WithAccountID(accountID)

	res, err := p.run(ctx, accountID, query, keywordsRaw)

	elapsed := time.Since(began)
	outcome := outcomeLabel(err)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordAggregation(outcome, 0, 0, elapsed.Seconds())
		log.LogAggregation(accountID, 0, 0, 0, elapsed, err)
		return nil, err
	}

	tracing.SetTag(span, "keywords", len(res.Outcome))
	tracing.SetTag(span, "results", res.Outcome.TotalItems())
	metrics.RecordAggregation(outcome, len(res.Outcome), res.Outcome.TotalItems(), elapsed.Seconds())
	log.LogAggregation(accountID, len(res.Outcome), res.Outcome.TotalItems(), res.Quota.QueriesUsed, elapsed, nil)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, accountID, query, keywordsRaw string) (*Result, error) {
	if err := p.validate(query, keywordsRaw); err != nil {
		return nil, err
	}

	keywords := ParseKeywords(keywordsRaw)
	primary := query
	if len(keywords) == 0 {
		// single bucket keyed by the query itself
		primary = ""
		keywords = []string{strings.TrimSpace(query)}
	}

	q, err := p.ledger.LoadQuota(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !quota.HasCapacity(q) {
		metrics.RecordQuotaRejection(string(q.PlanType))
		return nil, apperrors.QuotaExceeded("")
	}

	buckets := make([][]models.ResultItem, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.KeywordConcurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			items, err := p.collector.Collect(gctx, primary, kw, q.ResultsPerQuery)
			if err != nil {
				return err
			}
			buckets[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Internal(err)
	}

	outcome := make(models.Outcome, len(keywords))
	for i, kw := range keywords {
		outcome[i] = models.Bucket{Keyword: kw, Items: buckets[i]}
	}

	record := &models.UsageRecord{
		AccountID:   accountID,
		QueryText:   QueryText(query, keywordsRaw),
		ResultCount: outcome.TotalItems(),
	}
	after, err := p.ledger.Commit(ctx, accountID, record)
	if err != nil {
		if errors.Is(err, apperrors.ErrQuotaExceeded) {
			metrics.RecordQuotaRejection(string(q.PlanType))
		}
		return nil, err
	}

	p.publish(ctx, record, outcome, after)

	return &Result{Outcome: outcome, Quota: after}, nil
}

func (p *Pipeline) publish(ctx context.Context, record *models.UsageRecord, outcome models.Outcome, after models.Quota) {
	if p.events == nil {
		return
	}
	event := models.UsageEvent{
		AccountID:   record.AccountID,
		QueryText:   record.QueryText,
		Keywords:    outcome.Keywords(),
		ResultCount: record.ResultCount,
		QueriesUsed: after.QueriesUsed,
		Timestamp:   record.CreatedAt,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.events.PublishUsage(ctx, event); err != nil {
		p.logger.WithAccountID(record.AccountID).WithError(err).Warn("failed to publish usage event")
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
