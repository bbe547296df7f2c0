package models

import (
	"encoding/json"
	"testing"
)

func TestOutcomeMarshalPreservesOrder(t *testing.T) {
	outcome := Outcome{
		{Keyword: "zeta", Items: []ResultItem{{Title: "z"}}},
		{Keyword: "alpha", Items: nil},
		{Keyword: "mid", Items: []ResultItem{{Title: "m1"}, {Title: "m2"}}},
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		t.Fatalf("Failed to marshal outcome: %v", err)
	}

	expected := `{"zeta":[{"title":"z","snippet":"","link":"","thumbnail_url":""}],` +
		`"alpha":[],` +
		`"mid":[{"title":"m1","snippet":"","link":"","thumbnail_url":""},{"title":"m2","snippet":"","link":"","thumbnail_url":""}]}`
	if string(data) != expected {
		t.Errorf("Unexpected JSON:\n got %s\nwant %s", data, expected)
	}
}

func TestOutcomeMarshalEmpty(t *testing.T) {
	data, err := json.Marshal(Outcome{})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Expected {}, got %s", data)
	}
}

func TestOutcomeHelpers(t *testing.T) {
	outcome := Outcome{
		{Keyword: "ceo", Items: make([]ResultItem, 3)},
		{Keyword: "founder", Items: make([]ResultItem, 5)},
	}

	if outcome.TotalItems() != 8 {
		t.Errorf("Expected 8 items, got %d", outcome.TotalItems())
	}

	keys := outcome.Keywords()
	if len(keys) != 2 || keys[0] != "ceo" || keys[1] != "founder" {
		t.Errorf("Unexpected keywords %v", keys)
	}

	items, ok := outcome.Get("founder")
	if !ok || len(items) != 5 {
		t.Errorf("Expected 5 founder items, got %d (found=%v)", len(items), ok)
	}

	if _, ok := outcome.Get("cto"); ok {
		t.Error("Expected cto to be missing")
	}
}

func TestQuotaRemaining(t *testing.T) {
	tests := []struct {
		name     string
		quota    Quota
		expected int
	}{
		{"fresh", Quota{AllowedQueries: 2, QueriesUsed: 0}, 2},
		{"one used", Quota{AllowedQueries: 2, QueriesUsed: 1}, 1},
		{"exhausted", Quota{AllowedQueries: 2, QueriesUsed: 2}, 0},
		{"over quota after race", Quota{AllowedQueries: 2, QueriesUsed: 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quota.Remaining(); got != tt.expected {
				t.Errorf("Expected %d remaining, got %d", tt.expected, got)
			}
		})
	}
}

func TestQuotaViewJSON(t *testing.T) {
	view := Quota{PlanType: PlanFree, AllowedQueries: 2, ResultsPerQuery: 5, QueriesUsed: 1}.View()

	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if result["plan_type"] != "free" {
		t.Errorf("Expected plan_type=free, got %v", result["plan_type"])
	}
	if result["queries_remaining"] != float64(1) {
		t.Errorf("Expected queries_remaining=1, got %v", result["queries_remaining"])
	}
}

func TestFormatUSD(t *testing.T) {
	tests := map[int64]string{
		0:      "0.00",
		2118:   "21.18",
		400000: "4000.00",
		5:      "0.05",
		-150:   "-1.50",
	}

	for cents, expected := range tests {
		if got := FormatUSD(cents); got != expected {
			t.Errorf("FormatUSD(%d) = %s, want %s", cents, got, expected)
		}
	}
}

func TestPaymentPlatformValid(t *testing.T) {
	for _, p := range []PaymentPlatform{PlatformUPI, PlatformCard, PlatformPayPal, PlatformManual} {
		if !p.Valid() {
			t.Errorf("Expected %s to be valid", p)
		}
	}
	if PaymentPlatform("bitcoin").Valid() {
		t.Error("Expected bitcoin to be invalid")
	}
}

func TestAccountProfileAndFederation(t *testing.T) {
	hash := "$2a$10$abc"
	local := &Account{ID: "a-1", Name: "Ann", Email: "ann@example.com", PasswordHash: &hash, Provider: ProviderLocal}
	google := &Account{ID: "a-2", Name: "Bob", Email: "bob@example.com", Provider: ProviderGoogle}

	if local.IsFederated() {
		t.Error("Local account should not be federated")
	}
	if !google.IsFederated() {
		t.Error("Google account should be federated")
	}

	data, err := json.Marshal(local)
	if err != nil {
		t.Fatalf("Failed to marshal account: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal account: %v", err)
	}
	if _, ok := raw["password_hash"]; ok {
		t.Error("Password hash must not be serialized")
	}

	if p := google.Profile(); p.Email != "bob@example.com" || p.Provider != ProviderGoogle {
		t.Errorf("Unexpected profile %+v", p)
	}
}
