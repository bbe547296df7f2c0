package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// MemoryStore is an in-process Store used by tests and local tooling
type MemoryStore struct {
	mu      sync.Mutex
	quotas  map[string]models.Quota
	records []models.UsageRecord
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotas: make(map[string]models.Quota),
		now:    time.Now,
	}
}

// Put seeds the quota for an account
func (m *MemoryStore) Put(accountID string, q models.Quota) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[accountID] = q
}

// Records returns the usage records for an account, newest first
func (m *MemoryStore) Records(accountID string) []models.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.UsageRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].AccountID == accountID {
			out = append(out, m.records[i])
		}
	}
	return out
}

func (m *MemoryStore) GetQuota(_ context.Context, accountID string) (models.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[accountID]
	if !ok {
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	return q, nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	q.QueriesUsed++
	m.quotas[accountID] = q
	return nil
}

func (m *MemoryStore) UpdatePlan(_ context.Context, accountID string, next models.Quota) (models.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quotas[accountID]; !ok {
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	next.QueriesUsed = 0
	m.quotas[accountID] = next
	return next, nil
}

func (m *MemoryStore) CommitRun(_ context.Context, accountID string, record *models.UsageRecord) (models.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[accountID]
	if !ok {
		return models.Quota{}, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	if !HasCapacity(q) {
		return models.Quota{}, apperrors.ErrQuotaExceeded
	}

	q.QueriesUsed++
	m.quotas[accountID] = q

	m.nextID++
	record.ID = m.nextID
	record.AccountID = accountID
	record.CreatedAt = m.now()
	m.records = append(m.records, *record)

	return q, nil
}
