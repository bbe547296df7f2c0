package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

const uniqueViolation = "23505"

// Repository provides database operations
type Repository struct {
	db     *DB
	logger *logging.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Repository{db: db, logger: logger}
}

// observe records the named operation once it returns. errp points at the
// caller's named error result.
func (r *Repository) observe(operation string, started time.Time, errp *error) {
	err := *errp
	elapsed := time.Since(started)
	status := "success"
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrQuotaExceeded) {
		status = "error"
		r.logger.LogDatabaseOperation(operation, elapsed, err)
	} else {
		r.logger.LogDatabaseOperation(operation, elapsed, nil)
	}
	metrics.RecordDatabaseOperation(operation, status, elapsed.Seconds())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Accounts

const accountColumns = `
	id, name, email, phone, password_hash, provider, picture,
	plan_type, allowed_queries, results_per_query, queries_used,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &a.Provider, &a.Picture,
		&a.Quota.PlanType, &a.Quota.AllowedQueries, &a.Quota.ResultsPerQuery, &a.Quota.QueriesUsed,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount creates a new account record
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) (err error) {
	defer r.observe("create_account", time.Now(), &err)

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	query := `
		INSERT INTO accounts (id, name, email, phone, password_hash, provider, picture,
		                      plan_type, allowed_queries, results_per_query, queries_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Name, account.Email, account.Phone, account.PasswordHash,
		account.Provider, account.Picture, account.Quota.PlanType, account.Quota.AllowedQueries,
		account.Quota.ResultsPerQuery, account.Quota.QueriesUsed,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", account.Email, apperrors.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account by ID
func (r *Repository) GetAccount(ctx context.Context, id string) (account *models.Account, err error) {
	defer r.observe("get_account", time.Now(), &err)

	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err = scanAccount(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByEmail retrieves an account by email, case-insensitively
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (account *models.Account, err error) {
	defer r.observe("get_account_by_email", time.Now(), &err)

	query := `SELECT` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`

	account, err = scanAccount(r.db.Pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", email, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// UpdateAccount updates the profile fields and password hash of an account
func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) (err error) {
	defer r.observe("update_account", time.Now(), &err)

	query := `
		UPDATE accounts
		SET name = $2, email = $3, phone = $4, picture = $5, password_hash = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Name, account.Email, account.Phone, account.Picture, account.PasswordHash,
	).Scan(&account.UpdatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("account %s: %w", account.ID, apperrors.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("account %s: %w", account.Email, apperrors.ErrConflict)
	case err != nil:
		return fmt.Errorf("failed to update account: %w", err)
	}

	return nil
}

// Quota

const quotaColumns = `plan_type, allowed_queries, results_per_query, queries_used`

func scanQuota(row pgx.Row) (models.Quota, error) {
	var q models.Quota
	err := row.Scan(&q.PlanType, &q.AllowedQueries, &q.ResultsPerQuery, &q.QueriesUsed)
	return q, err
}

// GetQuota retrieves the plan state of an account
func (r *Repository) GetQuota(ctx context.Context, accountID string) (q models.Quota, err error) {
	defer r.observe("get_quota", time.Now(), &err)

	query := `SELECT ` + quotaColumns + ` FROM accounts WHERE id = $1`

	q, err = scanQuota(r.db.Pool.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to get quota: %w", err)
	}

	return q, nil
}

// IncrementUsage adds one to queries_used without checking the allowance
func (r *Repository) IncrementUsage(ctx context.Context, accountID string) (err error) {
	defer r.observe("increment_usage", time.Now(), &err)

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET queries_used = queries_used + 1, updated_at = NOW() WHERE id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}

	return nil
}

// UpdatePlan replaces the plan of an account and resets its usage
func (r *Repository) UpdatePlan(ctx context.Context, accountID string, next models.Quota) (q models.Quota, err error) {
	defer r.observe("update_plan", time.Now(), &err)

	q, err = updatePlan(ctx, r.db.Pool, accountID, next)
	return q, err
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updatePlan(ctx context.Context, db queryRower, accountID string, next models.Quota) (models.Quota, error) {
	query := `
		UPDATE accounts
		SET plan_type = $2, allowed_queries = $3, results_per_query = $4, queries_used = 0, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + quotaColumns

	q, err := scanQuota(db.QueryRow(ctx, query, accountID, next.PlanType, next.AllowedQueries, next.ResultsPerQuery))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to update plan: %w", err)
	}
	return q, nil
}

// CommitRun consumes one query and inserts the usage record in a single
// transaction. When the account is at its allowance nothing is written.
func (r *Repository) CommitRun(ctx context.Context, accountID string, record *models.UsageRecord) (q models.Quota, err error) {
	defer r.observe("commit_run", time.Now(), &err)

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE accounts
		SET queries_used = queries_used + 1, updated_at = NOW()
		WHERE id = $1 AND queries_used < allowed_queries
		RETURNING ` + quotaColumns

	q, err = scanQuota(tx.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		// distinguish a missing account from an exhausted one
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return models.Quota{}, fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
		}
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrQuotaExceeded)
	}
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to consume query: %w", err)
	}

	record.AccountID = accountID
	err = tx.QueryRow(ctx, `
		INSERT INTO usage_records (account_id, query_text, result_count)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, accountID, record.QueryText, record.ResultCount).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return models.Quota{}, fmt.Errorf("failed to create usage record: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Quota{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return q, nil
}
