package database

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Usage history

// ListUsageRecords returns an account's runs, newest first
func (r *Repository) ListUsageRecords(ctx context.Context, accountID string, limit, offset int) (records []models.UsageRecord, err error) {
	defer r.observe("list_usage_records", time.Now(), &err)

	query := `
		SELECT id, account_id, query_text, result_count, created_at
		FROM usage_records
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	records = make([]models.UsageRecord, 0)
	for rows.Next() {
		var rec models.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.QueryText, &rec.ResultCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}

	return records, nil
}

// GetUsageSummary aggregates an account's history
func (r *Repository) GetUsageSummary(ctx context.Context, accountID string) (summary *models.UsageSummary, err error) {
	defer r.observe("get_usage_summary", time.Now(), &err)

	query := `
		SELECT COUNT(*), COALESCE(SUM(result_count), 0), MAX(created_at)
		FROM usage_records
		WHERE account_id = $1
	`

	summary = &models.UsageSummary{}
	err = r.db.Pool.QueryRow(ctx, query, accountID).Scan(&summary.TotalRuns, &summary.TotalResults, &summary.LastRunAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage summary: %w", err)
	}

	return summary, nil
}
