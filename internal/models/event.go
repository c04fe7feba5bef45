package models

import "time"

// Event kinds carried on the alert topic.
const (
	EventAlert   = "alert"
	EventSummary = "summary"
)

// AlertEvent describes a detected price drop.
type AlertEvent struct {
	Record        ProductRecord `json:"record"`
	PreviousPrice float64       `json:"previous_price"`
	DropPct       float64       `json:"drop_pct"`
}

// Event is the envelope published to the alert topic.
type Event struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	RunID      string      `json:"run_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Alert      *AlertEvent `json:"alert,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
}
