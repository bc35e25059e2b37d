package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/internal/cache"
	"github.com/truthmarkets/integrity-engine/internal/cascade"
	"github.com/truthmarkets/integrity-engine/internal/db"
	"github.com/truthmarkets/integrity-engine/internal/integrity"
	"github.com/truthmarkets/integrity-engine/internal/metrics"
	"github.com/truthmarkets/integrity-engine/internal/stream"
	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Handler carries the wired engine components for the HTTP surface.
type Handler struct {
	store      *db.PostgresStore
	calculator *integrity.Calculator
	guard      *cascade.Guard
	scores     *cache.ScoreCache
	processor  *stream.Processor
	alerts     *integrity.AlertManager
	metrics    *metrics.Registry
	minBets    int64
	log        zerolog.Logger
}

// ─── Scores ────────────────────────────────────────────────────────────

// GET /api/v1/wallets/:address/score
func (h *Handler) handleWalletScore(c *gin.Context) {
	address := c.Param("address")
	ctx := c.Request.Context()

	if h.scores != nil {
		if score, ok := h.scores.Get(ctx, address); ok {
			if h.metrics != nil {
				h.metrics.ScoreCacheHits.Inc()
			}
			c.JSON(http.StatusOK, gin.H{"score": score, "cached": true})
			return
		}
		if h.metrics != nil {
			h.metrics.ScoreCacheMisses.Inc()
		}
	}

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	agg, err := h.store.GetAggregate(ctx, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load aggregate", "details": err.Error()})
		return
	}

	score := h.calculator.ComputeScore(agg)
	if h.scores != nil {
		h.scores.Set(ctx, score)
	}
	c.JSON(http.StatusOK, gin.H{"score": score, "cached": false})
}

// GET /api/v1/leaderboard
func (h *Handler) handleLeaderboard(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	aggs, err := h.store.Leaderboard(c.Request.Context(), h.minBets, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leaderboard", "details": err.Error()})
		return
	}

	scores := make([]models.TruthScore, 0, len(aggs))
	for _, agg := range aggs {
		score := h.calculator.ComputeScore(agg)
		if score.Eligible {
			scores = append(scores, score)
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].DisplayTotal > scores[j].DisplayTotal })

	c.JSON(http.StatusOK, gin.H{"leaderboard": scores, "count": len(scores)})
}

// ─── Copy trading ──────────────────────────────────────────────────────

// GET /api/v1/wallets/:address/copy-status
func (h *Handler) handleCopyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.guard.Status(c.Param("address")))
}

// GET /api/v1/wallets/:address/can-be-copied
func (h *Handler) handleCanBeCopied(c *gin.Context) {
	c.JSON(http.StatusOK, h.guard.CanBeCopied(c.Param("address")))
}

// GET /api/v1/wallets/:address/chain
func (h *Handler) handleChain(c *gin.Context) {
	chain := h.guard.Chain(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"chain": chain, "hops": len(chain)})
}

type followRequest struct {
	Follower string `json:"follower" binding:"required"`
	Leader   string `json:"leader" binding:"required"`
}

// POST /api/v1/follows
func (h *Handler) handleFollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {follower, leader}"})
		return
	}

	result, err := h.guard.Follow(c.Request.Context(), req.Follower, req.Leader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist follow", "details": err.Error()})
		return
	}
	if !result.Valid {
		// Expected user-facing rejection, not a server error.
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	h.syncEdgeGauge()
	c.JSON(http.StatusCreated, result)
}

// DELETE /api/v1/follows
func (h *Handler) handleUnfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {follower, leader}"})
		return
	}

	result, err := h.guard.Unfollow(c.Request.Context(), req.Follower, req.Leader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist unfollow", "details": err.Error()})
		return
	}
	if !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	h.syncEdgeGauge()
	c.JSON(http.StatusOK, result)
}

func (h *Handler) syncEdgeGauge() {
	if h.metrics != nil {
		h.metrics.FollowEdges.Set(float64(h.guard.ActiveEdgeCount()))
	}
}

// POST /api/v1/follows/validate
func (h *Handler) handleValidateFollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {follower, leader}"})
		return
	}
	c.JSON(http.StatusOK, h.guard.ValidateFollow(req.Follower, req.Leader))
}

// ─── Alerts ────────────────────────────────────────────────────────────

// GET /api/v1/alerts
func (h *Handler) handleListAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	status := models.AlertStatus(c.Query("status"))

	if h.store == nil {
		// No persistence wired: serve the in-memory history.
		c.JSON(http.StatusOK, gin.H{"data": h.alerts.Recent(limit), "source": "memory"})
		return
	}

	alerts, total, err := h.store.ListAlerts(c.Request.Context(), status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       alerts,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

// POST /api/v1/alerts/:id/review — operator-only lifecycle transition.
func (h *Handler) handleReviewAlert(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	var req struct {
		Status models.AlertStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {status: dismissed|confirmed}"})
		return
	}

	err := h.store.ReviewAlert(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, db.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{"error": "Alert is not pending or target status is invalid"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed", "alertId": c.Param("id"), "newStatus": req.Status})
}

// ─── Ingestion ─────────────────────────────────────────────────────────

// POST /api/v1/bets/batch — accepts a normalized bet batch from the
// ingestion adapters and runs the detectors in the background.
func (h *Handler) handleBetBatch(c *gin.Context) {
	var req struct {
		Bets []models.Bet `json:"bets" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {bets: [...]}"})
		return
	}
	if len(req.Bets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty bet batch"})
		return
	}

	// Detached context: the batch outlives the HTTP request.
	go h.processor.ProcessBatch(context.Background(), req.Bets)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "bets": len(req.Bets)})
}

// POST /api/v1/resolutions — folds resolved outcomes into the aggregates.
func (h *Handler) handleResolutions(c *gin.Context) {
	var req struct {
		Resolutions []stream.Resolution `json:"resolutions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {resolutions: [...]}"})
		return
	}

	if err := h.processor.ApplyResolutions(c.Request.Context(), req.Resolutions); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply resolutions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "count": len(req.Resolutions)})
}

// GET /api/v1/progress
func (h *Handler) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Progress())
}

// GET /api/v1/health
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "TruthMarkets Integrity Engine v1.0",
		"capabilities": gin.H{
			"wash_trading":        true,
			"sybil_clustering":    true,
			"statistical_anomaly": true,
			"collusion":           true,
			"cascade_guard":       true,
		},
		"dbConnected":    h.store != nil,
		"cacheConnected": h.scores != nil,
	})
}
