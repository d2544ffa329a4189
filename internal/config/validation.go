package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateEndpoints(); err != nil {
		return err
	}
	if err := cv.validateMigration(); err != nil {
		return err
	}
	if err := cv.validateManifest(); err != nil {
		return err
	}
	if err := cv.validateRetry(); err != nil {
		return err
	}
	if err := cv.validateFilters(); err != nil {
		return err
	}
	return cv.validateDaemon()
}

func (cv *configurationValidator) validateEndpoints() error {
	for name, ep := range map[string]EndpointConfig{"source": cv.config.Source, "destination": cv.config.Destination} {
		if ep.Type != "filestore" {
			return merrors.ValidationFailed(name+".type", fmt.Sprintf("unsupported endpoint type %q", ep.Type))
		}
		if ep.Root == "" {
			return merrors.ValidationFailed(name+".root", "root directory is required")
		}
	}
	return nil
}

func (cv *configurationValidator) validateMigration() error {
	mc := cv.config.Migration
	types, err := mc.Types()
	if err != nil {
		return merrors.ValidationFailed("migration.content_types", err.Error())
	}
	if err := content.ValidateOrder(types); err != nil {
		return merrors.ValidationFailed("migration.content_types", err.Error())
	}
	switch mc.FailurePolicy {
	case FailurePolicyHalt, FailurePolicyContinue:
	default:
		return merrors.ValidationFailed("migration.failure_policy", fmt.Sprintf("unknown policy %q", mc.FailurePolicy))
	}
	if merrors.ParseSeverity(mc.FatalSeverity) == "" {
		return merrors.ValidationFailed("migration.fatal_severity", fmt.Sprintf("unknown severity %q", mc.FatalSeverity))
	}
	return nil
}

func (cv *configurationValidator) validateManifest() error {
	h := cv.config.Manifest.Handle
	if !strings.HasPrefix(h, "file:") && !strings.HasPrefix(h, "sqlite:") {
		return merrors.ValidationFailed("manifest.handle", "handle must start with file: or sqlite:")
	}
	return nil
}

func (cv *configurationValidator) validateRetry() error {
	return cv.config.Retry.validate()
}

func (cv *configurationValidator) validateFilters() error {
	for raw := range cv.config.Filters.SkipIDs {
		if _, err := content.ParseType(raw); err != nil {
			return merrors.ValidationFailed("filters.skip_ids", err.Error())
		}
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	if cv.config.Daemon.Interval == "" {
		return nil
	}
	d, err := time.ParseDuration(cv.config.Daemon.Interval)
	if err != nil {
		return merrors.ValidationFailed("daemon.interval", err.Error())
	}
	if d < time.Minute {
		return merrors.ValidationFailed("daemon.interval", "must be at least 1m")
	}
	return nil
}

// Types resolves the configured content type names in order.
func (mc MigrationConfig) Types() ([]content.Type, error) {
	out := make([]content.Type, 0, len(mc.ContentTypes))
	for _, raw := range mc.ContentTypes {
		t, err := content.ParseType(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SkipIDsByType resolves filters.skip_ids keys to content types.
func (fc FiltersConfig) SkipIDsByType() map[content.Type][]string {
	out := make(map[content.Type][]string, len(fc.SkipIDs))
	for raw, ids := range fc.SkipIDs {
		if t, err := content.ParseType(raw); err == nil {
			out[t] = append(out[t], ids...)
		}
	}
	return out
}
