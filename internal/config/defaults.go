package config

import (
	"strings"
)

// ConfigDefaultApplier applies defaults for a specific configuration domain.
type ConfigDefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier runs every domain applier in order.
type CompositeDefaultApplier struct {
	appliers []ConfigDefaultApplier
}

// NewDefaultApplier returns the applier chain used by Load.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []ConfigDefaultApplier{
			&EndpointDefaultApplier{},
			&MigrationDefaultApplier{},
			&ManifestDefaultApplier{},
			&RetryDefaultApplier{},
			&LoggingDefaultApplier{},
			&NotificationDefaultApplier{},
		},
	}
}

// ApplyDefaults applies all registered appliers.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, a := range c.appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// EndpointDefaultApplier handles source/destination defaults.
type EndpointDefaultApplier struct{}

func (e *EndpointDefaultApplier) Domain() string { return "endpoints" }

func (e *EndpointDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, ep := range []*EndpointConfig{&cfg.Source, &cfg.Destination} {
		if ep.Type == "" {
			ep.Type = "filestore"
		}
		if ep.PageSize <= 0 {
			ep.PageSize = 100
		}
	}
	return nil
}

// MigrationDefaultApplier handles plan defaults.
type MigrationDefaultApplier struct{}

func (m *MigrationDefaultApplier) Domain() string { return "migration" }

func (m *MigrationDefaultApplier) ApplyDefaults(cfg *Config) error {
	mc := &cfg.Migration
	if len(mc.ContentTypes) == 0 {
		mc.ContentTypes = []string{"users", "groups", "projects", "datasources", "workbooks"}
	}
	if mc.BatchSize <= 0 {
		mc.BatchSize = 50
	}
	if mc.Parallelism <= 0 {
		mc.Parallelism = 4
	}
	mc.FailurePolicy = FailurePolicy(strings.ToLower(strings.TrimSpace(string(mc.FailurePolicy))))
	if mc.FailurePolicy == "" {
		mc.FailurePolicy = FailurePolicyHalt
	}
	mc.FatalSeverity = strings.ToLower(strings.TrimSpace(mc.FatalSeverity))
	if mc.FatalSeverity == "" {
		mc.FatalSeverity = "fatal"
	}
	if mc.RetryCancelled == nil {
		retry := true
		mc.RetryCancelled = &retry
	}
	return nil
}

// ManifestDefaultApplier handles manifest storage defaults.
type ManifestDefaultApplier struct{}

func (m *ManifestDefaultApplier) Domain() string { return "manifest" }

func (m *ManifestDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Manifest.Handle == "" {
		cfg.Manifest.Handle = "file:migration-manifest.json"
	}
	return nil
}

// RetryDefaultApplier handles retry defaults.
type RetryDefaultApplier struct{}

func (r *RetryDefaultApplier) Domain() string { return "retry" }

func (r *RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if mode := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); mode != "" {
		cfg.Retry.Backoff = mode
	} else {
		cfg.Retry.Backoff = RetryBackoffLinear
	}
	if cfg.Retry.InitialDelay == "" {
		cfg.Retry.InitialDelay = "1s"
	}
	if cfg.Retry.MaxDelay == "" {
		cfg.Retry.MaxDelay = "30s"
	}
	if cfg.Retry.MaxRetries == nil {
		n := 2
		cfg.Retry.MaxRetries = &n
	}
	return nil
}

// LoggingDefaultApplier handles logging defaults.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// NotificationDefaultApplier fills the default NATS subject.
type NotificationDefaultApplier struct{}

func (n *NotificationDefaultApplier) Domain() string { return "notifications" }

func (n *NotificationDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notifications != nil && cfg.Notifications.Subject == "" {
		cfg.Notifications.Subject = "contentmigrator.events"
	}
	if cfg.Notifications != nil && cfg.Notifications.KVBucket == "" {
		cfg.Notifications.KVBucket = "contentmigrator-status"
	}
	return nil
}
