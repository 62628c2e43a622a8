package config

import (
	"time"

	"hall_roster/internal/retry"
)

// ResilienceConfig groups the retry policies applied to spreadsheet traffic.
// The Retryable predicate is filled in by the store, which knows how the
// backend reports rate limiting.
type ResilienceConfig struct {
	SheetRead  retry.Config
	SheetWrite retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	SheetRead: retry.Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   8 * time.Second,
		Timeout:    30 * time.Second,
	},
	SheetWrite: retry.Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   8 * time.Second,
		Timeout:    30 * time.Second,
	},
}
