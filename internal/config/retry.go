package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// RetryConfig configures retries of transient enumeration and publish
// failures. Delays are Go duration strings.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxRetries   *int             `yaml:"max_retries,omitempty"`
}

// RetryBackoffMode selects how the delay grows between attempts.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff maps case-insensitive input to a mode; unknown input
// yields "".
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch mode := RetryBackoffMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
		return mode
	default:
		return ""
	}
}

// UnmarshalYAML accepts any casing and rejects unknown modes so a typo does
// not silently fall back to the default.
func (m *RetryBackoffMode) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*m = ""
		return nil
	}
	mode := NormalizeRetryBackoff(raw)
	if mode == "" {
		return fmt.Errorf("line %d: unknown retry backoff %q (want fixed, linear or exponential)", value.Line, raw)
	}
	*m = mode
	return nil
}

// Durations parses the retry delays; Validate has already checked them.
func (rc RetryConfig) Durations() (initial, maxDelay time.Duration) {
	initial, _ = time.ParseDuration(rc.InitialDelay)
	maxDelay, _ = time.ParseDuration(rc.MaxDelay)
	return initial, maxDelay
}

func (rc RetryConfig) validate() error {
	initial, err := time.ParseDuration(rc.InitialDelay)
	if err != nil {
		return merrors.ValidationFailed("retry.initial_delay", err.Error())
	}
	maxDelay, err := time.ParseDuration(rc.MaxDelay)
	if err != nil {
		return merrors.ValidationFailed("retry.max_delay", err.Error())
	}
	if initial <= 0 || maxDelay <= 0 {
		return merrors.ValidationFailed("retry", "delays must be positive")
	}
	if initial > maxDelay {
		return merrors.ValidationFailed("retry.initial_delay", "cannot exceed max_delay")
	}
	if rc.MaxRetries != nil && *rc.MaxRetries < 0 {
		return merrors.ValidationFailed("retry.max_retries", "cannot be negative")
	}
	return nil
}
