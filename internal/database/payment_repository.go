package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Payments

// CreatePaymentAndActivate records a payment and moves the account onto the
// paid plan with usage reset, in one transaction.
func (r *Repository) CreatePaymentAndActivate(ctx context.Context, payment *models.Payment) (q models.Quota, err error) {
	defer r.observe("create_payment", time.Now(), &err)

	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err = updatePlan(ctx, tx, payment.AccountID, models.Quota{
		PlanType:        payment.PlanType,
		AllowedQueries:  payment.AllowedQueries,
		ResultsPerQuery: payment.ResultsPerQuery,
	})
	if err != nil {
		return models.Quota{}, err
	}

	query := `
		INSERT INTO payments (id, account_id, plan_type, amount_cents, platform, upi_id,
		                      allowed_queries, results_per_query)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		payment.ID, payment.AccountID, payment.PlanType, payment.AmountCents, payment.Platform,
		payment.UPIID, payment.AllowedQueries, payment.ResultsPerQuery,
	).Scan(&payment.CreatedAt)
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to create payment: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Quota{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return q, nil
}

// ListPayments returns an account's payments, newest first
func (r *Repository) ListPayments(ctx context.Context, accountID string) (payments []models.Payment, err error) {
	defer r.observe("list_payments", time.Now(), &err)

	query := `
		SELECT id, account_id, plan_type, amount_cents, platform, upi_id,
		       allowed_queries, results_per_query, created_at
		FROM payments
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments = make([]models.Payment, 0)
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(
			&p.ID, &p.AccountID, &p.PlanType, &p.AmountCents, &p.Platform, &p.UPIID,
			&p.AllowedQueries, &p.ResultsPerQuery, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}
