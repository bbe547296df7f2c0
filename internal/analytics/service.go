package analytics

import (
	"context"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store reads an account's usage history
type Store interface {
	ListUsageRecords(ctx context.Context, accountID string, limit, offset int) ([]models.UsageRecord, error)
	GetUsageSummary(ctx context.Context, accountID string) (*models.UsageSummary, error)
}

// Service serves usage history and aggregates
type Service struct {
	repo Store
}

// NewService creates a new analytics service
func NewService(repo Store) *Service {
	return &Service{
		repo: repo,
	}
}

// Page clamps caller-supplied paging into the supported range
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// History returns an account's runs, newest first
func (s *Service) History(ctx context.Context, accountID string, limit, offset int) ([]models.UsageRecord, error) {
	limit, offset = Page(limit, offset)

	records, err := s.repo.ListUsageRecords(ctx, accountID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return records, nil
}

// Summary returns run and result totals for an account
func (s *Service) Summary(ctx context.Context, accountID string) (*models.UsageSummary, error) {
	summary, err := s.repo.GetUsageSummary(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return summary, nil
}
