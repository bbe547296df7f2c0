// Package billing records manual plan payments and activates the purchased plan.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Store persists payments together with the plan change they pay for
type Store interface {
	CreatePaymentAndActivate(ctx context.Context, payment *models.Payment) (models.Quota, error)
	ListPayments(ctx context.Context, accountID string) ([]models.Payment, error)
}

// EventPublisher announces plan changes
type EventPublisher interface {
	PublishPlanActivated(ctx context.Context, event models.PlanActivatedEvent) error
}

// PaymentInput is a manual payment submitted by an account
type PaymentInput struct {
	Plan        models.PlanType
	AmountCents *int64 // optional; must match the catalog price when set
	Platform    models.PaymentPlatform
	UPIID       string
	Queries     int // enterprise only
	Results     int // enterprise only
}

// Activation is the outcome of a recorded payment
type Activation struct {
	Payment *models.Payment
	Quota   models.Quota
}

// Service handles plan quotes and payments
type Service struct {
	catalog *plans.Catalog
	store   Store
	events  EventPublisher
	logger  *logging.Logger
}

// NewService creates a billing service. events may be nil.
func NewService(catalog *plans.Catalog, store Store, events EventPublisher, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{catalog: catalog, store: store, events: events, logger: logger}
}

// Quote resolves a plan's limits and price
func (s *Service) Quote(planType models.PlanType, opts plans.EnterpriseOptions) (plans.Plan, error) {
	if planType == "" {
		return plans.Plan{}, apperrors.Validation("Missing plan")
	}
	return s.catalog.Resolve(planType, opts)
}

// ActivatePlan records a payment and moves the account onto the paid plan
// with its usage reset.
func (s *Service) ActivatePlan(ctx context.Context, accountID string, in PaymentInput) (*Activation, error) {
	if in.Plan == "" || in.Platform == "" {
		return nil, apperrors.Validation("Plan and platform are required")
	}
	if !in.Platform.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("Unsupported payment platform %q", in.Platform))
	}
	upiID := strings.TrimSpace(in.UPIID)
	if in.Platform == models.PlatformUPI && upiID == "" {
		return nil, apperrors.Validation("UPI ID is required for UPI payments")
	}
	if in.Plan == models.PlanFree {
		return nil, apperrors.Validation("The free plan cannot be purchased")
	}

	plan, err := s.catalog.Resolve(in.Plan, plans.EnterpriseOptions{Queries: in.Queries, Results: in.Results})
	if err != nil {
		return nil, err
	}
	if in.AmountCents != nil && *in.AmountCents != plan.PriceCents {
		return nil, apperrors.Validation(fmt.Sprintf("Amount does not match the plan price of $%s", plan.PriceUSD))
	}

	payment := &models.Payment{
		AccountID:       accountID,
		PlanType:        plan.Type,
		AmountCents:     plan.PriceCents,
		Platform:        in.Platform,
		UPIID:           upiID,
		AllowedQueries:  plan.AllowedQueries,
		ResultsPerQuery: plan.ResultsPerQuery,
	}

	q, err := s.store.CreatePaymentAndActivate(ctx, payment)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	metrics.RecordPlanActivation(string(plan.Type), string(in.Platform))
	s.logger.WithAccountID(accountID).WithFields(map[string]interface{}{
		"plan":         plan.Type,
		"platform":     in.Platform,
		"amount_cents": plan.PriceCents,
	}).Info("Plan activated")

	if s.events != nil {
		event := models.PlanActivatedEvent{
			AccountID:       accountID,
			PlanType:        q.PlanType,
			AllowedQueries:  q.AllowedQueries,
			ResultsPerQuery: q.ResultsPerQuery,
			AmountCents:     plan.PriceCents,
			Timestamp:       time.Now().UTC(),
		}
		if err := s.events.PublishPlanActivated(ctx, event); err != nil {
			s.logger.WithAccountID(accountID).WithError(err).Warn("Failed to publish plan activation")
		}
	}

	return &Activation{Payment: payment, Quota: q}, nil
}

// Payments lists an account's payments, newest first
func (s *Service) Payments(ctx context.Context, accountID string) ([]models.Payment, error) {
	payments, err := s.store.ListPayments(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return payments, nil
}
