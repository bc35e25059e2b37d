package integrity

import (
	"time"

	"github.com/google/uuid"

	"github.com/truthmarkets/integrity-engine/internal/config"
	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Anti-Gaming Detection Engine
//
// Four independent, stateless checks over a wallet's bet history or a batch
// of concurrent bets:
//
//   1. Wash trading    — one wallet betting both sides of the same epoch
//   2. Sybil cluster   — distinct wallets betting identically within seconds
//   3. Statistical anomaly — win rates implausible against a fair baseline
//   4. Collusion       — wallet pairs whose epoch participation overlaps
//                        far beyond chance
//
// Each detector is a pure function of its input and the threshold config:
// identical input always yields identical output, so invocations may be
// scheduled in parallel across wallets and epochs with no shared state.
// Malformed domain input (empty addresses, negative amounts, future
// timestamps) never panics — it simply fails to trigger.

// Config carries every tunable detector threshold.
type Config struct {
	WashEpochThreshold int

	SybilMinWallets  int
	SybilTimeBucket  time.Duration
	EvidenceEpochCap int

	AnomalyZThreshold float64
	AnomalyMinSample  int64
	AnomalyTwoSided   bool

	CollusionMinShared int
	CollusionOverlap   float64
	CollusionAllPairs  bool
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		WashEpochThreshold: 3,
		SybilMinWallets:    3,
		SybilTimeBucket:    5 * time.Second,
		EvidenceEpochCap:   10,
		AnomalyZThreshold:  3.29, // one-sided 99.9%
		AnomalyMinSample:   50,
		CollusionMinShared: 20,
		CollusionOverlap:   0.8,
	}
}

// ConfigFromThresholds maps the application threshold config onto the
// detector config.
func ConfigFromThresholds(t config.ThresholdsConfig) Config {
	cfg := DefaultConfig()
	if t.WashEpochThreshold > 0 {
		cfg.WashEpochThreshold = t.WashEpochThreshold
	}
	if t.SybilMinWallets > 0 {
		cfg.SybilMinWallets = t.SybilMinWallets
	}
	if t.SybilTimeBucket > 0 {
		cfg.SybilTimeBucket = t.SybilTimeBucket
	}
	if t.EvidenceEpochCap > 0 {
		cfg.EvidenceEpochCap = t.EvidenceEpochCap
	}
	if t.AnomalyZThreshold > 0 {
		cfg.AnomalyZThreshold = t.AnomalyZThreshold
	}
	if t.AnomalyMinSample > 0 {
		cfg.AnomalyMinSample = t.AnomalyMinSample
	}
	cfg.AnomalyTwoSided = t.AnomalyTwoSided
	if t.CollusionMinShared > 0 {
		cfg.CollusionMinShared = t.CollusionMinShared
	}
	if t.CollusionOverlap > 0 {
		cfg.CollusionOverlap = t.CollusionOverlap
	}
	cfg.CollusionAllPairs = t.CollusionAllPairs
	return cfg
}

// Detector bundles the four checks behind one threshold config.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// newAlert builds a pending alert with a fresh ID. Detectors do not
// deduplicate across invocations; that is a caller responsibility.
func newAlert(t models.AlertType, sev models.Severity, wallets []string, evidence map[string]any, action models.RecommendedAction) *models.Alert {
	return &models.Alert{
		ID:                uuid.NewString(),
		Type:              t,
		Severity:          sev,
		Wallets:           wallets,
		Evidence:          evidence,
		RecommendedAction: action,
		Status:            models.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
}
