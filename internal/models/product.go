package models

import "time"

// ProductRecord is one priced product sighting flowing through a run.
type ProductRecord struct {
	ProductName  string  `json:"product_name"`
	CurrentPrice float64 `json:"current_price"`
	MarketName   string  `json:"market_name"`
	ProductURL   string  `json:"product_url"`
}

// Valid reports whether the record can be reconciled.
func (r ProductRecord) Valid() bool {
	return r.ProductURL != "" && r.CurrentPrice > 0
}

// Observation is the persisted daily fact for a product URL.
// PreviousPrice and PriceDropPct are nil when there was nothing to compare against.
type Observation struct {
	ID            string    `json:"id"`
	ProductURL    string    `json:"product_url"`
	ProductName   string    `json:"product_name"`
	MarketName    string    `json:"market_name"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousPrice *float64  `json:"previous_price"`
	PriceDropPct  *float64  `json:"price_drop_pct"`
	ObservedDate  string    `json:"observed_date"`
	ObservedAt    time.Time `json:"observed_at"`
	RunID         string    `json:"run_id,omitempty"`
}

// DateLayout is the layout of Observation.ObservedDate.
const DateLayout = "2006-01-02"

// RawChunk is unstructured source content waiting for extraction.
type RawChunk struct {
	Source    string
	Content   string
	SourceURL string
}

// RunSummary holds the end-of-run counters.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Processed  int       `json:"processed"`
	Alerts     int       `json:"alerts"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
