package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/personal-finance-ledger/internal/api_gateway/handler"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type handlers struct {
	accounts     *handler.AccountHandler
	transactions *handler.TransactionHandler
	goals        *handler.GoalHandler
	history      *handler.HistoryHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, gatherer prometheus.Gatherer) {
	// correlation first, so the access log and panic responses can carry it
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	// API v1 endpoints, scoped to the owner in X-Owner-ID
	v1 := r.Group("/api/v1", middleware.OwnerID())
	{
		accounts := v1.Group("/accounts")
		{
			accounts.POST("/resolve", h.accounts.Resolve)
			accounts.GET("", h.accounts.List)
			accounts.GET("/:id", h.accounts.GetByID)
			accounts.DELETE("/:id", h.accounts.Deactivate)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.POST("", h.transactions.Create)
			transactions.GET("", h.transactions.List)
			transactions.GET("/:id", h.transactions.GetByID)
			transactions.POST("/:id/reversal", h.transactions.Reverse)
		}

		v1.POST("/quick-deals", h.transactions.QuickDeal)
		v1.POST("/imports/csv", h.transactions.ImportCSV)

		goals := v1.Group("/goals")
		{
			goals.POST("", h.goals.Create)
			goals.GET("", h.goals.List)
			goals.GET("/:id", h.goals.GetByID)
			goals.POST("/:id/contributions", h.goals.Contribute)
			goals.POST("/:id/pause", h.goals.Pause)
			goals.POST("/:id/resume", h.goals.Resume)
			goals.POST("/:id/cancel", h.goals.Cancel)
		}

		v1.GET("/history", h.history.List)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
