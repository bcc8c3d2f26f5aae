package models

import "time"

// RatelimitConfig holds rate limit configuration (e.g. "5-S", "100-M").
// The key distinguishes the HTTP limit from the summary-generation limit.
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key"`
	Rate      string    `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rate limit config keys.
const (
	RatelimitKeyHTTP    = "http"
	RatelimitKeySummary = "summary"
)
