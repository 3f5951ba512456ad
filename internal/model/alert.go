package model

import "time"

// AlertType classifies an alert.
type AlertType string

// Alert type constants.
const (
	AlertSignificantPriceChange AlertType = "significant_price_change"
	AlertRapidPriceChange       AlertType = "rapid_price_change"
	AlertPriceAnomaly           AlertType = "price_anomaly"
)

// AlertPriority ranks alerts for operators.
type AlertPriority string

// Alert priority constants.
const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityMedium AlertPriority = "medium"
	AlertPriorityHigh   AlertPriority = "high"
)

// AlertStatus tracks whether an operator has handled an alert.
type AlertStatus string

// Alert status constants.
const (
	AlertPending  AlertStatus = "pending"
	AlertResolved AlertStatus = "resolved"
)

// Alert is an operator notification about a price event.
type Alert struct {
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	Type       AlertType      `json:"type"`
	Message    string         `json:"message"`
	Priority   AlertPriority  `json:"priority"`
	InvoiceID  string         `json:"invoice_id,omitempty"`
	Status     AlertStatus    `json:"status"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
}
