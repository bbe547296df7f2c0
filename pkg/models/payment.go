package models

import (
	"fmt"
	"time"
)

// PaymentPlatform identifies how a manual payment was made
type PaymentPlatform string

const (
	PlatformUPI    PaymentPlatform = "upi"
	PlatformCard   PaymentPlatform = "card"
	PlatformPayPal PaymentPlatform = "paypal"
	PlatformManual PaymentPlatform = "manual"
)

// Valid reports whether the platform is one the service accepts
func (p PaymentPlatform) Valid() bool {
	switch p {
	case PlatformUPI, PlatformCard, PlatformPayPal, PlatformManual:
		return true
	}
	return false
}

// Payment records a plan purchase. Card details are never stored.
type Payment struct {
	ID              string          `json:"id" db:"id"`
	AccountID       string          `json:"account_id" db:"account_id"`
	PlanType        PlanType        `json:"plan_type" db:"plan_type"`
	AmountCents     int64           `json:"amount_cents" db:"amount_cents"`
	Platform        PaymentPlatform `json:"platform" db:"platform"`
	UPIID           string          `json:"upi_id,omitempty" db:"upi_id"`
	AllowedQueries  int             `json:"allowed_queries" db:"allowed_queries"`
	ResultsPerQuery int             `json:"results_per_query" db:"results_per_query"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PlanActivatedEvent is published after a plan change
type PlanActivatedEvent struct {
	AccountID       string    `json:"account_id"`
	PlanType        PlanType  `json:"plan_type"`
	AllowedQueries  int       `json:"allowed_queries"`
	ResultsPerQuery int       `json:"results_per_query"`
	AmountCents     int64     `json:"amount_cents"`
	Timestamp       time.Time `json:"timestamp"`
}

// FormatUSD renders cents as a dollar amount, e.g. 2118 -> "21.18"
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
