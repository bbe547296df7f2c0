// Package quota tracks how many aggregation runs each account may still make.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Store is the persistence the ledger needs. Implementations return errors
// wrapping apperrors.ErrNotFound for unknown accounts and
// apperrors.ErrQuotaExceeded when CommitRun finds no capacity.
type Store interface {
	GetQuota(ctx context.Context, accountID string) (models.Quota, error)
	IncrementUsage(ctx context.Context, accountID string) error
	UpdatePlan(ctx context.Context, accountID string, q models.Quota) (models.Quota, error)
	CommitRun(ctx context.Context, accountID string, record *models.UsageRecord) (models.Quota, error)
}

// Ledger reads and mutates per-account quota state
type Ledger struct {
	store Store
}

// NewLedger creates a ledger backed by store
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// LoadQuota returns the current quota for an account
func (l *Ledger) LoadQuota(ctx context.Context, accountID string) (models.Quota, error) {
	q, err := l.store.GetQuota(ctx, accountID)
	if err != nil {
		return models.Quota{}, classify(err, "failed to load quota")
	}
	return q, nil
}

// HasCapacity reports whether another run is allowed
func HasCapacity(q models.Quota) bool {
	return q.QueriesUsed < q.AllowedQueries
}

// Increment records one run without checking capacity
func (l *Ledger) Increment(ctx context.Context, accountID string) error {
	if err := l.store.IncrementUsage(ctx, accountID); err != nil {
		return classify(err, "failed to increment usage")
	}
	return nil
}

// SetPlan moves an account onto plan and resets its usage
func (l *Ledger) SetPlan(ctx context.Context, accountID string, plan plans.Plan) (models.Quota, error) {
	q, err := l.store.UpdatePlan(ctx, accountID, plan.Quota())
	if err != nil {
		return models.Quota{}, classify(err, "failed to set plan")
	}
	return q, nil
}

// Commit consumes one query and stores the usage record atomically.
// When the account has no capacity left nothing is written.
func (l *Ledger) Commit(ctx context.Context, accountID string, record *models.UsageRecord) (models.Quota, error) {
	q, err := l.store.CommitRun(ctx, accountID, record)
	if err != nil {
		return models.Quota{}, classify(err, "failed to commit run")
	}
	return q, nil
}

func classify(err error, op string) error {
	switch {
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return apperrors.QuotaExceeded("")
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.NotFound("Account not found")
	default:
		return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
	}
}
