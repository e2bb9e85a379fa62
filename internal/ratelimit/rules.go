package ratelimit

import (
	"errors"
	"time"

	"github.com/cashpoint-io/atmd/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// PINAttemptLimit returns the limit and window for PIN confirmations per
// terminal.
func (r *Rules) PINAttemptLimit() (int, time.Duration, error) {
	return parseRule(r.config.PINAttempts)
}

// PerTerminalLimit returns the limit and window for action submissions per
// terminal.
func (r *Rules) PerTerminalLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerTerminal)
}

// GlobalLimit returns the fleet-wide rate limiting rule.
func (r *Rules) GlobalLimit() (int, time.Duration, error) {
	return parseRule(r.config.Global)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
