package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/middleware"
)

// RouterConfig carries the HTTP concerns that sit in front of the handlers
type RouterConfig struct {
	AllowOrigins []string
	Tokens       *middleware.TokenManager
	Limiter      *middleware.RateLimiter
}

func setupRouter(api *API, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(api.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.Limiter))
	{
		// Auth
		v1.POST("/auth/signup", api.signup)
		v1.POST("/auth/login", api.login)
		v1.POST("/auth/google", api.googleLogin)

		// Catalog
		v1.GET("/plans", api.listPlans)
		v1.GET("/plans/:id/quote", api.quotePlan)
	}

	// Authenticated routes are limited per account rather than per IP
	protected := router.Group("/api/v1")
	protected.Use(cfg.Tokens.JWTAuth(), middleware.RateLimit(cfg.Limiter))
	{
		protected.GET("/me", api.getProfile)
		protected.PUT("/me", api.updateProfile)
		protected.POST("/me/password", api.changePassword)

		protected.GET("/plan", api.getPlan)
		protected.POST("/payments", api.createPayment)
		protected.GET("/payments", api.listPayments)

		protected.POST("/scrape", api.scrape)
		protected.GET("/history", api.getHistory)
	}

	return router
}
