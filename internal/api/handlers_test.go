package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthmarkets/integrity-engine/internal/cascade"
	"github.com/truthmarkets/integrity-engine/internal/integrity"
	"github.com/truthmarkets/integrity-engine/internal/metrics"
	"github.com/truthmarkets/integrity-engine/internal/stream"
)

func testRouter(t *testing.T, operatorToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zerolog.Nop()
	detector := integrity.NewDetector(integrity.DefaultConfig())
	alerts := integrity.NewAlertManager(nil, nil, logger)
	hub := NewHub(logger)
	go hub.Run()

	return SetupRouter(Deps{
		Calculator:    integrity.NewCalculator(integrity.DefaultScoreConfig()),
		Guard:         cascade.NewGuard(nil, nil, logger),
		Processor:     stream.NewProcessor(detector, alerts, nil, nil, nil, 2, logger),
		Alerts:        alerts,
		Metrics:       metrics.NewRegistry(),
		Hub:           hub,
		OperatorToken: operatorToken,
		MinBets:       10,
		RatePerMin:    6000,
		Logger:        logger,
	})
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(t, "")

	w := doJSON(t, r, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "operational", resp["status"])
	assert.Equal(t, false, resp["dbConnected"])
}

func TestFollowEndpoints(t *testing.T) {
	r := testRouter(t, "")

	// A follows B: accepted.
	w := doJSON(t, r, http.MethodPost, "/api/v1/follows",
		map[string]string{"follower": "0xa", "leader": "0xb"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// C tries to follow A, a copier: structured rejection.
	w = doJSON(t, r, http.MethodPost, "/api/v1/follows",
		map[string]string{"follower": "0xc", "leader": "0xa"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var res cascade.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "copy trader")

	// A's copy status reflects the edge.
	w = doJSON(t, r, http.MethodGet, "/api/v1/wallets/0xa/copy-status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st cascade.CopyStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.IsCopyTrader)
	assert.Equal(t, "0xb", st.OriginalSource)

	// Unfollow restores eligibility.
	w = doJSON(t, r, http.MethodDelete, "/api/v1/follows",
		map[string]string{"follower": "0xa", "leader": "0xb"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/wallets/0xa/can-be-copied", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var elig cascade.CopyEligibility
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &elig))
	assert.True(t, elig.Allowed)

	// Missing fields: 400.
	w = doJSON(t, r, http.MethodPost, "/api/v1/follows", map[string]string{"follower": "0xa"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertReviewRequiresOperatorToken(t *testing.T) {
	r := testRouter(t, "sekrit")

	// No token: rejected before the handler ever sees the request.
	w := doJSON(t, r, http.MethodPost, "/api/v1/alerts/abc/review",
		map[string]string{"status": "dismissed"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/alerts/abc/review",
		map[string]string{"status": "dismissed"},
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Valid token but no database wired: 503, not an auth failure.
	w = doJSON(t, r, http.MethodPost, "/api/v1/alerts/abc/review",
		map[string]string{"status": "dismissed"},
		map[string]string{"Authorization": "Bearer sekrit"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListAlertsFallsBackToMemory(t *testing.T) {
	r := testRouter(t, "")

	w := doJSON(t, r, http.MethodGet, "/api/v1/alerts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "memory", resp["source"])
}

func TestBetBatchValidation(t *testing.T) {
	r := testRouter(t, "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/bets/batch", map[string]any{"bets": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/bets/batch", map[string]any{
		"bets": []map[string]any{{
			"trader": "0xa", "epoch": 1, "side": "YES", "amount": "100",
			"timestamp": "2026-08-01T00:00:00Z",
		}},
	}, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestProgressEndpoint(t *testing.T) {
	r := testRouter(t, "")

	w := doJSON(t, r, http.MethodGet, "/api/v1/progress", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var progress stream.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.GreaterOrEqual(t, progress.BatchesProcessed, int64(0))
}
