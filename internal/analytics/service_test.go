package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListUsageRecords(ctx context.Context, accountID string, limit, offset int) ([]models.UsageRecord, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UsageRecord), args.Error(1)
}

func (m *MockStore) GetUsageSummary(ctx context.Context, accountID string) (*models.UsageSummary, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageSummary), args.Error(1)
}

func TestPage(t *testing.T) {
	tests := []struct {
		name           string
		limit, offset  int
		wantL, wantOff int
	}{
		{"defaults", 0, 0, DefaultPageSize, 0},
		{"negative", -5, -1, DefaultPageSize, 0},
		{"capped", 1000, 40, MaxPageSize, 40},
		{"passthrough", 10, 20, 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := Page(tt.limit, tt.offset)
			assert.Equal(t, tt.wantL, l)
			assert.Equal(t, tt.wantOff, o)
		})
	}
}

func TestHistory(t *testing.T) {
	store := new(MockStore)
	svc := NewService(store)

	now := time.Now()
	records := []models.UsageRecord{
		{ID: 2, QueryText: "acme.com - ceo", ResultCount: 5, CreatedAt: now},
		{ID: 1, QueryText: "acme.com - cto", ResultCount: 3, CreatedAt: now.Add(-time.Minute)},
	}
	store.On("ListUsageRecords", mock.Anything, "acct-1", DefaultPageSize, 0).Return(records, nil)

	got, err := svc.History(context.Background(), "acct-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, records, got)
	store.AssertExpectations(t)
}

func TestHistoryStoreFailure(t *testing.T) {
	store := new(MockStore)
	svc := NewService(store)

	store.On("ListUsageRecords", mock.Anything, "acct-1", 5, 0).Return(nil, errors.New("boom"))

	_, err := svc.History(context.Background(), "acct-1", 5, 0)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestSummary(t *testing.T) {
	store := new(MockStore)
	svc := NewService(store)

	last := time.Now()
	store.On("GetUsageSummary", mock.Anything, "acct-1").Return(&models.UsageSummary{TotalRuns: 2, TotalResults: 8, LastRunAt: &last}, nil)
	store.On("GetUsageSummary", mock.Anything, "acct-2").Return(nil, errors.New("boom"))

	summary, err := svc.Summary(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRuns)
	assert.Equal(t, 8, summary.TotalResults)

	_, err = svc.Summary(context.Background(), "acct-2")
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
