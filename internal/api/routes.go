package api

import (
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/internal/cache"
	"github.com/truthmarkets/integrity-engine/internal/cascade"
	"github.com/truthmarkets/integrity-engine/internal/db"
	"github.com/truthmarkets/integrity-engine/internal/integrity"
	"github.com/truthmarkets/integrity-engine/internal/metrics"
	"github.com/truthmarkets/integrity-engine/internal/stream"
)

// Deps bundles the wired components the router exposes over HTTP.
type Deps struct {
	Store         *db.PostgresStore
	Calculator    *integrity.Calculator
	Guard         *cascade.Guard
	Scores        *cache.ScoreCache
	Processor     *stream.Processor
	Alerts        *integrity.AlertManager
	Metrics       *metrics.Registry
	Hub           *Hub
	OperatorToken string
	MinBets       int64
	RatePerMin    int
	RateBurst     int
	RateIdleTTL   time.Duration
	Logger        zerolog.Logger
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://truthmarkets.io,https://www.truthmarkets.io
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	ratePerMin := deps.RatePerMin
	if ratePerMin <= 0 {
		ratePerMin = 60
	}
	burst := deps.RateBurst
	if burst <= 0 {
		burst = ratePerMin / 2
	}
	limiter := NewRateLimiter(ratePerMin, burst, deps.RateIdleTTL)

	handler := &Handler{
		store:      deps.Store,
		calculator: deps.Calculator,
		guard:      deps.Guard,
		scores:     deps.Scores,
		processor:  deps.Processor,
		alerts:     deps.Alerts,
		metrics:    deps.Metrics,
		minBets:    deps.MinBets,
		log:        deps.Logger,
	}

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", deps.Hub.Subscribe)

		// Scores
		api.GET("/wallets/:address/score", handler.handleWalletScore)
		api.GET("/leaderboard", handler.handleLeaderboard)

		// Copy trading
		api.GET("/wallets/:address/copy-status", handler.handleCopyStatus)
		api.GET("/wallets/:address/can-be-copied", handler.handleCanBeCopied)
		api.GET("/wallets/:address/chain", handler.handleChain)
		api.POST("/follows", handler.handleFollow)
		api.DELETE("/follows", handler.handleUnfollow)
		api.POST("/follows/validate", handler.handleValidateFollow)

		// Alerts
		api.GET("/alerts", handler.handleListAlerts)

		// Ingestion
		api.POST("/bets/batch", handler.handleBetBatch)
		api.POST("/resolutions", handler.handleResolutions)
		api.GET("/progress", handler.handleProgress)
	}

	// Operator-only alert lifecycle
	review := api.Group("")
	review.Use(OperatorAuth(deps.OperatorToken, deps.Logger))
	{
		review.POST("/alerts/:id/review", handler.handleReviewAlert)
	}

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	return r
}
