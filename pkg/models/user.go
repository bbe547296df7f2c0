package models

import (
	"time"
)

// Provider identifies how an account authenticates
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// PlanType identifies a subscription tier
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanSub1       PlanType = "sub1"
	PlanSub2       PlanType = "sub2"
	PlanSub3       PlanType = "sub3"
	PlanSub4       PlanType = "sub4"
	PlanEnterprise PlanType = "enterprise"
)

// Account represents an API user together with its plan state
type Account struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	PasswordHash *string   `json:"-" db:"password_hash"` // nil for federated accounts
	Provider     Provider  `json:"provider" db:"provider"`
	Picture      string    `json:"picture,omitempty" db:"picture"`
	Quota        Quota     `json:"plan"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsFederated reports whether the account signs in through an identity provider
func (a *Account) IsFederated() bool {
	return a.Provider != ProviderLocal
}

// Quota is the plan state that gates aggregation runs
type Quota struct {
	PlanType        PlanType `json:"plan_type" db:"plan_type"`
	AllowedQueries  int      `json:"allowed_queries" db:"allowed_queries"`
	ResultsPerQuery int      `json:"results_per_query" db:"results_per_query"`
	QueriesUsed     int      `json:"queries_used" db:"queries_used"`
}

// Remaining returns how many runs are left, never negative
func (q Quota) Remaining() int {
	if r := q.AllowedQueries - q.QueriesUsed; r > 0 {
		return r
	}
	return 0
}

// QuotaView is the quota as returned to API clients
type QuotaView struct {
	Quota
	QueriesRemaining int `json:"queries_remaining"`
}

// View builds the client-facing representation
func (q Quota) View() QuotaView {
	return QuotaView{Quota: q, QueriesRemaining: q.Remaining()}
}

// Profile is the public subset of an account
type Profile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Picture  string   `json:"picture,omitempty"`
	Provider Provider `json:"provider"`
}

// Profile returns the public subset of the account
func (a *Account) Profile() Profile {
	return Profile{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Phone:    a.Phone,
		Picture:  a.Picture,
		Provider: a.Provider,
	}
}
