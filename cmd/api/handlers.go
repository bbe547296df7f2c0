package main

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/accounts"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/aggregator"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/billing"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/middleware"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// AccountService is the account surface the API needs
type AccountService interface {
	Signup(ctx context.Context, in accounts.SignupInput) (*accounts.Session, error)
	Login(ctx context.Context, email, password string) (*accounts.Session, error)
	GoogleLogin(ctx context.Context, idToken string) (*accounts.Session, error)
	ChangePassword(ctx context.Context, accountID, current, next string) error
	UpdateProfile(ctx context.Context, accountID string, in accounts.ProfileUpdate) (*models.Account, error)
	Profile(ctx context.Context, accountID string) (*models.Account, error)
	PlanView(ctx context.Context, accountID string) (models.QuotaView, error)
}

// BillingService is the plan purchase surface the API needs
type BillingService interface {
	Quote(planType models.PlanType, opts plans.EnterpriseOptions) (plans.Plan, error)
	ActivatePlan(ctx context.Context, accountID string, in billing.PaymentInput) (*billing.Activation, error)
	Payments(ctx context.Context, accountID string) ([]models.Payment, error)
}

// HistoryService is the usage history surface the API needs
type HistoryService interface {
	History(ctx context.Context, accountID string, limit, offset int) ([]models.UsageRecord, error)
	Summary(ctx context.Context, accountID string) (*models.UsageSummary, error)
}

// Aggregator runs aggregation requests
type Aggregator interface {
	Run(ctx context.Context, accountID, query, keywordsRaw string) (*aggregator.Result, error)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// API holds the HTTP handlers and their dependencies
type API struct {
	accounts AccountService
	billing  BillingService
	history  HistoryService
	pipeline Aggregator
	catalog  *plans.Catalog
	checks   map[string]HealthCheck
	logger   *logging.Logger
}

func respondError(c *gin.Context, logger *logging.Logger, err error) {
	status := apperrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		l := logger.WithError(err).WithField("path", c.FullPath())
		if accountID, ok := middleware.GetAccountID(c); ok {
			l = l.WithAccountID(accountID)
		}
		l.Error("Request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": apperrors.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func accountID(c *gin.Context) string {
	id, _ := middleware.GetAccountID(c)
	return id
}

func sessionResponse(session *accounts.Session) gin.H {
	return gin.H{
		"success": true,
		"token":   session.Token,
		"user":    session.Account.Profile(),
		"plan":    session.Account.Quota.View(),
	}
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true
	for name, check := range api.checks {
		if err := check(ctx); err != nil {
			api.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = "unhealthy"
			healthy = false
			continue
		}
		components[name] = "healthy"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "components": components})
}

// Auth handlers

func (api *API) signup(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := api.accounts.Signup(c.Request.Context(), accounts.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session))
}

func (api *API) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := api.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

func (api *API) googleLogin(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := api.accounts.GoogleLogin(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

// Plan handlers

func (api *API) listPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "plans": api.catalog.List()})
}

func (api *API) quotePlan(c *gin.Context) {
	var opts plans.EnterpriseOptions
	for name, dst := range map[string]*int{"queries": &opts.Queries, "results": &opts.Results} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			badRequest(c, "Invalid "+name)
			return
		}
		*dst = v
	}

	plan, err := api.billing.Quote(models.PlanType(c.Param("id")), opts)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "plan": plan})
}

func (api *API) getPlan(c *gin.Context) {
	view, err := api.accounts.PlanView(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "plan": view})
}

// Profile handlers

func (api *API) getProfile(c *gin.Context) {
	account, err := api.accounts.Profile(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": account.Profile()})
}

func (api *API) updateProfile(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	account, err := api.accounts.UpdateProfile(c.Request.Context(), accountID(c), accounts.ProfileUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": account.Profile()})
}

func (api *API) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := api.accounts.ChangePassword(c.Request.Context(), accountID(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated"})
}

// Payment handlers

func (api *API) createPayment(c *gin.Context) {
	var req struct {
		Plan     string   `json:"plan"`
		Amount   *float64 `json:"amount"`
		Platform string   `json:"platform"`
		UPIID    string   `json:"upi_id"`
		Queries  int      `json:"queries"`
		Results  int      `json:"results"`

		// names sent by older web clients
		LegacyUPIID   string `json:"upiId"`
		LegacyResults int    `json:"resultsPerQuery"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.UPIID == "" {
		req.UPIID = req.LegacyUPIID
	}
	if req.Results == 0 {
		req.Results = req.LegacyResults
	}

	in := billing.PaymentInput{
		Plan:     models.PlanType(req.Plan),
		Platform: paymentPlatform(req.Platform),
		UPIID:    req.UPIID,
		Queries:  req.Queries,
		Results:  req.Results,
	}
	if req.Amount != nil {
		cents := int64(math.Round(*req.Amount * 100))
		in.AmountCents = &cents
	}

	activation, err := api.billing.ActivatePlan(c.Request.Context(), accountID(c), in)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"payment": activation.Payment,
		"plan":    activation.Quota.View(),
	})
}

// paymentPlatform maps client platform names onto the stored ones
func paymentPlatform(name string) models.PaymentPlatform {
	if name == "credit_card" {
		return models.PlatformCard
	}
	return models.PaymentPlatform(name)
}

func (api *API) listPayments(c *gin.Context) {
	payments, err := api.billing.Payments(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payments": payments})
}

// Aggregation handlers

func (api *API) scrape(c *gin.Context) {
	var req struct {
		Query    string `json:"query"`
		Keywords string `json:"keywords"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, err := api.pipeline.Run(c.Request.Context(), accountID(c), req.Query, req.Keywords)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"results":           result.Outcome,
		"queries_used":      result.Quota.QueriesUsed,
		"queries_remaining": result.Quota.Remaining(),
		"results_per_query": result.Quota.ResultsPerQuery,
	})
}

func (api *API) getHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	records, err := api.history.History(c.Request.Context(), accountID(c), limit, offset)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	summary, err := api.history.Summary(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, api.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": records, "summary": summary})
}
