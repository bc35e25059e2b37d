package models

import "time"

// AlertType identifies which detector produced an alert.
type AlertType string

const (
	AlertWashTrading        AlertType = "WASH_TRADING"
	AlertSybilCluster       AlertType = "SYBIL_CLUSTER"
	AlertStatisticalAnomaly AlertType = "STATISTICAL_ANOMALY"
	AlertCollusion          AlertType = "COLLUSION"
)

// Severity grades an alert for triage.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertStatus tracks the operator review lifecycle. Transitions are
// pending → dismissed|confirmed only, and only via explicit operator action.
type AlertStatus string

const (
	StatusPending   AlertStatus = "pending"
	StatusDismissed AlertStatus = "dismissed"
	StatusConfirmed AlertStatus = "confirmed"
)

// RecommendedAction hints the manual-review workflow.
type RecommendedAction string

const (
	ActionInvestigate  RecommendedAction = "INVESTIGATE"
	ActionSuspendScore RecommendedAction = "SUSPEND_SCORE"
	ActionMonitor      RecommendedAction = "MONITOR"
)

// Alert is a detector finding. Detectors are pure functions of their input
// and do not deduplicate across invocations; dedup is a caller concern.
type Alert struct {
	ID                string            `json:"id"`
	Type              AlertType         `json:"type"`
	Severity          Severity          `json:"severity"`
	Wallets           []string          `json:"wallets"`
	Evidence          map[string]any    `json:"evidence"`
	RecommendedAction RecommendedAction `json:"recommendedAction"`
	Status            AlertStatus       `json:"status"`
	CreatedAt         time.Time         `json:"createdAt"`
}
