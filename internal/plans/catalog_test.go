package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

func TestResolveFixedPlans(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		plan    models.PlanType
		queries int
		results int
		price   string
	}{
		{models.PlanFree, 2, 5, "0.00"},
		{models.PlanSub1, 30, 20, "21.18"},
		{models.PlanSub2, 30, 50, "52.94"},
		{models.PlanSub3, 30, 25, "26.47"},
		{models.PlanSub4, 20, 50, "35.29"},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			p, err := catalog.Resolve(tt.plan, EnterpriseOptions{Queries: 999, Results: 999})
			require.NoError(t, err)
			assert.Equal(t, tt.queries, p.AllowedQueries)
			assert.Equal(t, tt.results, p.ResultsPerQuery)
			assert.Equal(t, tt.price, p.PriceUSD)
			assert.False(t, p.Custom)
		})
	}
}

func TestResolveEnterprise(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name       string
		opts       EnterpriseOptions
		queries    int
		results    int
		priceCents int64
	}{
		{"defaults", EnterpriseOptions{}, 1000, 100, 400000},
		{"custom", EnterpriseOptions{Queries: 50, Results: 10}, 50, 10, 2000},
		{"clamped high", EnterpriseOptions{Queries: 50000, Results: 500}, 10000, 100, 4000000},
		{"clamped low", EnterpriseOptions{Queries: -3, Results: -1}, 1, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := catalog.Resolve(models.PlanEnterprise, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.queries, p.AllowedQueries)
			assert.Equal(t, tt.results, p.ResultsPerQuery)
			assert.Equal(t, tt.priceCents, p.PriceCents)
			assert.True(t, p.Custom)
			assert.LessOrEqual(t, p.ResultsPerQuery, MaxResultsPerQuery)
		})
	}
}

func TestResolveUnknownPlan(t *testing.T) {
	_, err := DefaultCatalog().Resolve("gold", EnterpriseOptions{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestListAndDefault(t *testing.T) {
	catalog := DefaultCatalog()

	list := catalog.List()
	require.Len(t, list, 6)
	assert.Equal(t, models.PlanFree, list[0].Type)
	assert.Equal(t, models.PlanEnterprise, list[len(list)-1].Type)

	def := catalog.Default()
	assert.Equal(t, models.PlanFree, def.Type)
	assert.Equal(t, models.Quota{PlanType: models.PlanFree, AllowedQueries: 2, ResultsPerQuery: 5}, def.Quota())
}
