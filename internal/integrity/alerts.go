package integrity

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Alert Sink
//
// Detectors return plain Alert values; the AlertManager is the dispatch
// side. Emitted alerts are:
//   1. Persisted via the AlertStore for the manual-review workflow
//   2. Broadcast via a callback (wired to the WebSocket hub)
//   3. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   4. Kept in a bounded in-memory history for the API
//
// Webhook delivery is async and filtered per endpoint by minimum severity.

// AlertStore persists alerts for operator review.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity models.Severity   `json:"minSeverity"`
}

// AlertManager handles alert persistence, broadcast and webhook delivery.
type AlertManager struct {
	mu           sync.RWMutex
	webhooks     []WebhookEndpoint
	recentAlerts []models.Alert
	maxHistory   int

	store       AlertStore
	broadcastFn func(models.Alert)
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewAlertManager creates an alert manager. store and broadcastFn may be nil
// when persistence or streaming is not wired (tests, offline analysis).
func NewAlertManager(store AlertStore, broadcastFn func(models.Alert), logger zerolog.Logger) *AlertManager {
	return &AlertManager{
		maxHistory:  1000,
		store:       store,
		broadcastFn: broadcastFn,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		log:         logger.With().Str("component", "alerts").Logger(),
	}
}

// RegisterWebhook adds a webhook endpoint.
func (am *AlertManager) RegisterWebhook(name, url string, minSeverity models.Severity, headers map[string]string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.webhooks = append(am.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})
	am.log.Info().Str("webhook", name).Str("minSeverity", string(minSeverity)).Msg("registered webhook")
}

// RemoveWebhook removes a webhook by name.
func (am *AlertManager) RemoveWebhook(name string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for i, wh := range am.webhooks {
		if wh.Name == name {
			am.webhooks = append(am.webhooks[:i], am.webhooks[i+1:]...)
			return
		}
	}
}

// Emit persists and distributes a detector alert. A nil alert is a no-op so
// callers can pass detector results straight through.
func (am *AlertManager) Emit(ctx context.Context, alert *models.Alert) {
	if alert == nil {
		return
	}

	am.mu.Lock()
	am.recentAlerts = append(am.recentAlerts, *alert)
	if len(am.recentAlerts) > am.maxHistory {
		am.recentAlerts = am.recentAlerts[len(am.recentAlerts)-am.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(am.webhooks))
	copy(webhooks, am.webhooks)
	am.mu.Unlock()

	if am.store != nil {
		if err := am.store.SaveAlert(ctx, *alert); err != nil {
			am.log.Error().Err(err).Str("alertId", alert.ID).Msg("failed to persist alert")
		}
	}

	if am.broadcastFn != nil {
		am.broadcastFn(*alert)
	}

	for _, wh := range webhooks {
		if !wh.Enabled || !SeverityMeets(alert.Severity, wh.MinSeverity) {
			continue
		}
		go am.sendWebhook(wh, *alert)
	}

	am.log.Info().
		Str("severity", string(alert.Severity)).
		Str("type", string(alert.Type)).
		Strs("wallets", alert.Wallets).
		Msg("alert emitted")
}

// Recent returns the most recent alerts, newest first.
func (am *AlertManager) Recent(limit int) []models.Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if limit <= 0 || limit > len(am.recentAlerts) {
		limit = len(am.recentAlerts)
	}
	start := len(am.recentAlerts) - limit
	result := make([]models.Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = am.recentAlerts[start+limit-1-i]
	}
	return result
}

// sendWebhook delivers an alert to a webhook endpoint.
func (am *AlertManager) sendWebhook(wh WebhookEndpoint, alert models.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		am.log.Error().Err(err).Msg("failed to marshal alert")
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		am.log.Error().Err(err).Str("webhook", wh.Name).Msg("failed to create webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := am.httpClient.Do(req)
	if err != nil {
		am.log.Warn().Err(err).Str("webhook", wh.Name).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		am.log.Warn().Int("status", resp.StatusCode).Str("webhook", wh.Name).Msg("webhook rejected alert")
	}
}

// SeverityMeets reports whether severity is at or above the minimum.
func SeverityMeets(severity, minimum models.Severity) bool {
	levels := map[models.Severity]int{
		models.SeverityInfo:     0,
		models.SeverityWarning:  1,
		models.SeverityCritical: 2,
	}
	return levels[severity] >= levels[minimum]
}
