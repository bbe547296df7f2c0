package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/config"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/quota"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/search"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishUsage(ctx context.Context, event models.UsageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) LoadQuota(ctx context.Context, accountID string) (models.Quota, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(models.Quota), args.Error(1)
}

func (m *MockLedger) Commit(ctx context.Context, accountID string, record *models.UsageRecord) (models.Quota, error) {
	args := m.Called(ctx, accountID, record)
	return args.Get(0).(models.Quota), args.Error(1)
}

var testConfig = Config{
	PageSize:           10,
	PageLimit:          5,
	KeywordConcurrency: 4,
	Validation:         config.ValidationLenient,
}

type fixture struct {
	store    *quota.MemoryStore
	ledger   *quota.Ledger
	fetcher  *fakeFetcher
	pipeline *Pipeline
}

func newFixture(t *testing.T, q models.Quota, cfg Config) *fixture {
	t.Helper()

	store := quota.NewMemoryStore()
	store.Put("acct-1", q)
	ledger := quota.NewLedger(store)
	fetcher := newFakeFetcher()

	return &fixture{
		store:    store,
		ledger:   ledger,
		fetcher:  fetcher,
		pipeline: NewPipeline(cfg, ledger, fetcher, nil, nil),
	}
}

func freePlan(used int) models.Quota {
	q := plans.DefaultCatalog().Default().Quota()
	q.QueriesUsed = used
	return q
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"ceo, founder", []string{"ceo", "founder"}},
		{"a, ,b,a", []string{"a", "b"}},
		{"  ceo  ", []string{"ceo"}},
		{"", nil},
		{" , ,, ", nil},
		{"CEO,ceo", []string{"CEO", "ceo"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseKeywords(tt.raw), "raw=%q", tt.raw)
	}
}

func TestQueryText(t *testing.T) {
	assert.Equal(t, "acme.com - ceo, founder", QueryText("acme.com", "ceo, founder"))
	assert.Equal(t, "acme.com", QueryText(" acme.com ", ""))
	assert.Equal(t, "ceo", QueryText("", "ceo"))
}

func TestRunFreePlanScenario(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)
	f.fetcher.
		page("acme.com ceo", 1, search.PageResult{Status: search.PageSuccess, Items: makeItems("ceo", 1, 3)}).
		page("acme.com founder", 1, search.PageResult{Status: search.PageSuccess, Items: makeItems("founder", 1, 7), NextStart: 8})

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo, founder")
	require.NoError(t, err)

	assert.Equal(t, []string{"ceo", "founder"}, res.Outcome.Keywords())
	ceo, _ := res.Outcome.Get("ceo")
	founder, _ := res.Outcome.Get("founder")
	assert.Len(t, ceo, 3)
	assert.Len(t, founder, 5)

	assert.Equal(t, 1, res.Quota.QueriesUsed)
	assert.Equal(t, 1, res.Quota.Remaining())
	assert.Equal(t, 5, res.Quota.ResultsPerQuery)

	records := f.store.Records("acct-1")
	require.Len(t, records, 1)
	assert.Equal(t, "acme.com - ceo, founder", records[0].QueryText)
	assert.Equal(t, 8, records[0].ResultCount)

	// one page per keyword: ceil(5/10) = 1
	assert.Equal(t, 1, f.fetcher.CallsFor("acme.com ceo"))
	assert.Equal(t, 1, f.fetcher.CallsFor("acme.com founder"))
}

func TestRunRejectsWhenExhausted(t *testing.T) {
	q := models.Quota{PlanType: models.PlanFree, AllowedQueries: 1, ResultsPerQuery: 5}
	f := newFixture(t, q, testConfig)
	f.fetcher.series("acme.com ceo", 10, 1)

	_, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)
	callsAfterFirst := len(f.fetcher.Calls())

	_, err = f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	assert.Equal(t, "Query limit reached. Please upgrade.", apperrors.PublicMessage(err))

	after, err := f.ledger.LoadQuota(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, after.QueriesUsed)
	assert.Len(t, f.store.Records("acct-1"), 1)
	assert.Equal(t, callsAfterFirst, len(f.fetcher.Calls()))
}

func TestRunExhaustedMakesNoUpstreamCalls(t *testing.T) {
	f := newFixture(t, freePlan(2), testConfig)
	f.fetcher.series("acme.com ceo", 10, 1)

	_, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo, founder")
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	assert.Empty(t, f.fetcher.Calls())
	assert.Empty(t, f.store.Records("acct-1"))
}

func TestRunChargesOncePerRun(t *testing.T) {
	q := models.Quota{PlanType: models.PlanSub1, AllowedQueries: 30, ResultsPerQuery: 20}
	f := newFixture(t, q, testConfig)

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "a, b, c, d, e")
	require.NoError(t, err)
	assert.Len(t, res.Outcome, 5)
	assert.Equal(t, 1, res.Quota.QueriesUsed)
	assert.Equal(t, 29, res.Quota.Remaining())
}

func TestRunStopsWhenUpstreamHasNoNextPage(t *testing.T) {
	q := models.Quota{PlanType: models.PlanSub2, AllowedQueries: 30, ResultsPerQuery: 50}
	f := newFixture(t, q, testConfig)
	f.fetcher.page("acme.com ceo", 1, search.PageResult{Status: search.PageSuccess, Items: makeItems("ceo", 1, 10)})

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)

	items, _ := res.Outcome.Get("ceo")
	assert.Len(t, items, 10)
	assert.Equal(t, 1, f.fetcher.CallsFor("acme.com ceo"))
}

func TestRunKeepsKeywordOrderUnderConcurrency(t *testing.T) {
	q := models.Quota{PlanType: models.PlanSub1, AllowedQueries: 30, ResultsPerQuery: 10}
	f := newFixture(t, q, testConfig)
	for i, kw := range []string{"alpha", "beta", "gamma", "delta"} {
		query := "acme.com " + kw
		f.fetcher.series(query, 10, 1)
		// earlier keywords finish last
		f.fetcher.delay[query] = time.Duration(4-i) * 10 * time.Millisecond
	}

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "alpha,beta,gamma,delta")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, res.Outcome.Keywords())

	data, err := json.Marshal(res.Outcome)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"alpha":.*,"beta":.*,"gamma":.*,"delta":.*\}$`, string(data))
}

func TestRunDeduplicatesKeywords(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "a, ,b,a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Outcome.Keywords())
	assert.Equal(t, 1, f.fetcher.CallsFor("acme.com a"))
}

func TestRunWithoutKeywordsUsesQueryBucket(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)
	f.fetcher.page("acme.com", 1, search.PageResult{Status: search.PageSuccess, Items: makeItems("acme", 1, 4)})

	res, err := f.pipeline.Run(context.Background(), "acct-1", "  acme.com ", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com"}, res.Outcome.Keywords())
	items, _ := res.Outcome.Get("acme.com")
	assert.Len(t, items, 4)
	assert.Equal(t, "acme.com", f.store.Records("acct-1")[0].QueryText)
}

func TestRunDegradedUpstreamStillCommits(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)
	f.fetcher.page("acme.com ceo", 1, search.PageResult{Status: search.PageFailed, Err: errors.New("upstream returned status 500")})

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)

	items, ok := res.Outcome.Get("ceo")
	assert.True(t, ok)
	assert.Empty(t, items)
	assert.Equal(t, 1, res.Quota.QueriesUsed)
	assert.Equal(t, 0, f.store.Records("acct-1")[0].ResultCount)
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name       string
		validation string
		query      string
		keywords   string
		wantErr    string
	}{
		{"lenient both blank", config.ValidationLenient, "  ", " , ", "Missing query"},
		{"strict missing query", config.ValidationStrict, "", "ceo", "Missing website name"},
		{"strict missing keywords", config.ValidationStrict, "acme.com", " ", "Missing keywords"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig
			cfg.Validation = tt.validation
			f := newFixture(t, freePlan(0), cfg)

			_, err := f.pipeline.Run(context.Background(), "acct-1", tt.query, tt.keywords)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, tt.wantErr, apperrors.PublicMessage(err))
			assert.Empty(t, f.fetcher.Calls())

			q, _ := f.ledger.LoadQuota(context.Background(), "acct-1")
			assert.Equal(t, 0, q.QueriesUsed)
		})
	}
}

func TestRunUnknownAccount(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)

	_, err := f.pipeline.Run(context.Background(), "missing", "acme.com", "ceo")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.fetcher.Calls())
}

func TestRunPlanActivationRestoresCapacity(t *testing.T) {
	f := newFixture(t, freePlan(2), testConfig)

	_, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	plan, err := plans.DefaultCatalog().Resolve(models.PlanSub3, plans.EnterpriseOptions{})
	require.NoError(t, err)
	_, err = f.ledger.SetPlan(context.Background(), "acct-1", plan)
	require.NoError(t, err)

	res, err := f.pipeline.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quota.QueriesUsed)
	assert.Equal(t, 29, res.Quota.Remaining())
	assert.Equal(t, 25, res.Quota.ResultsPerQuery)
}

func TestRunCancelledIsInternalAndUncharged(t *testing.T) {
	f := newFixture(t, freePlan(0), testConfig)
	f.fetcher.series("acme.com ceo", 10, 1)
	f.fetcher.delay["acme.com ceo"] = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.pipeline.Run(ctx, "acct-1", "acme.com", "ceo")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, "internal error", apperrors.PublicMessage(err))
	assert.Empty(t, f.store.Records("acct-1"))
}

func TestRunCommitFailureIsNotCharged(t *testing.T) {
	ledger := new(MockLedger)
	q := freePlan(0)
	ledger.On("LoadQuota", mock.Anything, "acct-1").Return(q, nil)
	ledger.On("Commit", mock.Anything, "acct-1", mock.AnythingOfType("*models.UsageRecord")).
		Return(models.Quota{}, apperrors.Internal(errors.New("tx aborted")))

	publisher := new(MockPublisher)
	fetcher := newFakeFetcher().series("acme.com ceo", 10, 1)
	p := NewPipeline(testConfig, ledger, fetcher, publisher, nil)

	_, err := p.Run(context.Background(), "acct-1", "acme.com", "ceo")
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	ledger.AssertExpectations(t)
	publisher.AssertNotCalled(t, "PublishUsage", mock.Anything, mock.Anything)
}

func TestRunCommitRaceReportsQuotaExceeded(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("LoadQuota", mock.Anything, "acct-1").Return(freePlan(1), nil)
	ledger.On("Commit", mock.Anything, "acct-1", mock.Anything).
		Return(models.Quota{}, apperrors.QuotaExceeded(""))

	p := NewPipeline(testConfig, ledger, newFakeFetcher(), nil, nil)

	_, err := p.Run(context.Background(), "acct-1", "acme.com", "ceo")
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestRunPublishesUsageEvent(t *testing.T) {
	store := quota.NewMemoryStore()
	store.Put("acct-1", freePlan(0))
	fetcher := newFakeFetcher().page("acme.com ceo", 1, search.PageResult{Status: search.PageSuccess, Items: makeItems("ceo", 1, 2)})

	publisher := new(MockPublisher)
	publisher.On("PublishUsage", mock.Anything, mock.MatchedBy(func(e models.UsageEvent) bool {
		return e.AccountID == "acct-1" &&
			e.QueryText == "acme.com - ceo" &&
			e.ResultCount == 2 &&
			e.QueriesUsed == 1 &&
			len(e.Keywords) == 1 && e.Keywords[0] == "ceo" &&
			!e.Timestamp.IsZero()
	})).Return(nil)

	p := NewPipeline(testConfig, quota.NewLedger(store), fetcher, publisher, nil)

	_, err := p.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestRunPublishFailureDoesNotFailRun(t *testing.T) {
	store := quota.NewMemoryStore()
	store.Put("acct-1", freePlan(0))

	publisher := new(MockPublisher)
	publisher.On("PublishUsage", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	p := NewPipeline(testConfig, quota.NewLedger(store), newFakeFetcher(), publisher, nil)

	res, err := p.Run(context.Background(), "acct-1", "acme.com", "ceo")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quota.QueriesUsed)
	publisher.AssertExpectations(t)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.SearchConfig{PageSize: 10, PageLimit: 3, KeywordConcurrency: 2, Validation: config.ValidationStrict})
	assert.Equal(t, Config{PageSize: 10, PageLimit: 3, KeywordConcurrency: 2, Validation: config.ValidationStrict}, cfg)
}
