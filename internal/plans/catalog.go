// Package plans is the single source of truth for plan quotas and prices.
package plans

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

const (
	// Enterprise bounds and defaults
	EnterpriseMinQueries     = 1
	EnterpriseMaxQueries     = 10000
	EnterpriseMinResults     = 1
	EnterpriseMaxResults     = 100
	EnterpriseDefaultQueries = 1000
	EnterpriseDefaultResults = 100
	EnterpriseCentsPerResult = 4 // $0.04 per (query x result)
	MaxResultsPerQuery       = 100
)

// Plan is a resolved tier with its limits and price
type Plan struct {
	Type            models.PlanType `json:"plan"`
	AllowedQueries  int             `json:"allowed_queries"`
	ResultsPerQuery int             `json:"results_per_query"`
	PriceCents      int64           `json:"price_cents"`
	PriceUSD        string          `json:"price_usd"`
	Custom          bool            `json:"custom"`
}

// Quota returns a fresh quota for the plan
func (p Plan) Quota() models.Quota {
	return models.Quota{
		PlanType:        p.Type,
		AllowedQueries:  p.AllowedQueries,
		ResultsPerQuery: p.ResultsPerQuery,
		QueriesUsed:     0,
	}
}

// EnterpriseOptions carries the caller-chosen enterprise sizing.
// Zero values select the defaults.
type EnterpriseOptions struct {
	Queries int
	Results int
}

// Catalog resolves plan identifiers into concrete limits and prices
type Catalog struct {
	fixed map[models.PlanType]Plan
	order []models.PlanType
}

// DefaultCatalog returns the production plan table
func DefaultCatalog() *Catalog {
	return NewCatalog([]Plan{
		{Type: models.PlanFree, AllowedQueries: 2, ResultsPerQuery: 5, PriceCents: 0},
		{Type: models.PlanSub1, AllowedQueries: 30, ResultsPerQuery: 20, PriceCents: 2118},
		{Type: models.PlanSub2, AllowedQueries: 30, ResultsPerQuery: 50, PriceCents: 5294},
		{Type: models.PlanSub3, AllowedQueries: 30, ResultsPerQuery: 25, PriceCents: 2647},
		{Type: models.PlanSub4, AllowedQueries: 20, ResultsPerQuery: 50, PriceCents: 3529},
	})
}

// NewCatalog builds a catalog from fixed-price plans. Enterprise is always
// available and priced per unit.
func NewCatalog(fixed []Plan) *Catalog {
	c := &Catalog{fixed: make(map[models.PlanType]Plan, len(fixed))}
	for _, p := range fixed {
		p.PriceUSD = models.FormatUSD(p.PriceCents)
		c.fixed[p.Type] = p
		c.order = append(c.order, p.Type)
	}
	return c
}

// List returns the fixed plans in catalog order followed by the default
// enterprise sizing.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order)+1)
	for _, t := range c.order {
		out = append(out, c.fixed[t])
	}
	out = append(out, enterprise(EnterpriseOptions{}))
	return out
}

// Lookup returns a fixed plan by identifier
func (c *Catalog) Lookup(planType models.PlanType) (Plan, bool) {
	p, ok := c.fixed[planType]
	return p, ok
}

// Resolve returns the limits and price for a plan identifier
func (c *Catalog) Resolve(planType models.PlanType, opts EnterpriseOptions) (Plan, error) {
	if planType == models.PlanEnterprise {
		return enterprise(opts), nil
	}
	p, ok := c.fixed[planType]
	if !ok {
		return Plan{}, apperrors.Validation(fmt.Sprintf("Unknown plan %q", planType))
	}
	return p, nil
}

// Default is the plan new accounts start on
func (c *Catalog) Default() Plan {
	if p, ok := c.fixed[models.PlanFree]; ok {
		return p
	}
	return enterprise(EnterpriseOptions{Queries: EnterpriseMinQueries, Results: EnterpriseMinResults})
}

func enterprise(opts EnterpriseOptions) Plan {
	q := opts.Queries
	if q == 0 {
		q = EnterpriseDefaultQueries
	}
	r := opts.Results
	if r == 0 {
		r = EnterpriseDefaultResults
	}
	q = clamp(q, EnterpriseMinQueries, EnterpriseMaxQueries)
	r = clamp(r, EnterpriseMinResults, EnterpriseMaxResults)

	price := int64(q) * int64(r) * EnterpriseCentsPerResult
	return Plan{
		Type:            models.PlanEnterprise,
		AllowedQueries:  q,
		ResultsPerQuery: r,
		PriceCents:      price,
		PriceUSD:        models.FormatUSD(price),
		Custom:          true,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
