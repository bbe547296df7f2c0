package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ResultItem is one normalized upstream search hit
type ResultItem struct {
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	Link         string `json:"link"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Bucket holds the results gathered for one keyword
type Bucket struct {
	Keyword string       `json:"keyword"`
	Items   []ResultItem `json:"items"`
}

// Outcome maps keywords to their results in input order.
// It marshals as a JSON object whose key order matches the slice order.
type Outcome []Bucket

// TotalItems counts results across all buckets
func (o Outcome) TotalItems() int {
	total := 0
	for _, b := range o {
		total += len(b.Items)
	}
	return total
}

// Keywords returns the bucket keys in order
func (o Outcome) Keywords() []string {
	keys := make([]string, len(o))
	for i, b := range o {
		keys[i] = b.Keyword
	}
	return keys
}

// Get returns the items for a keyword
func (o Outcome) Get(keyword string) ([]ResultItem, bool) {
	for _, b := range o {
		if b.Keyword == keyword {
			return b.Items, true
		}
	}
	return nil, false
}

// MarshalJSON implements json.Marshaler
func (o Outcome) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Keyword)
		if err != nil {
			return nil, err
		}
		items := b.Items
		if items == nil {
			items = []ResultItem{}
		}
		val, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UsageRecord is one entry of an account's aggregation history
type UsageRecord struct {
	ID          int64     `json:"id" db:"id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	QueryText   string    `json:"query" db:"query_text"`
	ResultCount int       `json:"result_count" db:"result_count"`
	CreatedAt   time.Time `json:"timestamp" db:"created_at"`
}

// UsageSummary aggregates an account's history
type UsageSummary struct {
	TotalRuns    int        `json:"total_runs"`
	TotalResults int        `json:"total_results"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
}

// UsageEvent is published after a run is committed
type UsageEvent struct {
	AccountID   string    `json:"account_id"`
	QueryText   string    `json:"query"`
	Keywords    []string  `json:"keywords"`
	ResultCount int       `json:"result_count"`
	QueriesUsed int       `json:"queries_used"`
	Timestamp   time.Time `json:"timestamp"`
}
