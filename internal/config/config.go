package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Source        EndpointConfig      `yaml:"source"`
	Destination   EndpointConfig      `yaml:"destination"`
	Migration     MigrationConfig     `yaml:"migration"`
	Manifest      ManifestConfig      `yaml:"manifest"`
	Retry         RetryConfig         `yaml:"retry"`
	Filters       FiltersConfig       `yaml:"filters,omitempty"`
	Mappings      MappingsConfig      `yaml:"mappings,omitempty"`
	Transforms    TransformsConfig    `yaml:"transforms,omitempty"`
	Notifications *NotificationConfig `yaml:"notifications,omitempty"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics,omitempty"`
	Daemon        DaemonConfig        `yaml:"daemon,omitempty"`
	Events        EventsConfig        `yaml:"events,omitempty"`
}

// EndpointConfig describes where content is read from or published to.
type EndpointConfig struct {
	Type     string `yaml:"type"` // "filestore"
	Root     string `yaml:"root"`
	PageSize int    `yaml:"page_size,omitempty"`
}

// FailurePolicy controls whether a failed action stops the run.
type FailurePolicy string

const (
	FailurePolicyHalt     FailurePolicy = "halt"
	FailurePolicyContinue FailurePolicy = "continue"
)

// MigrationConfig holds the knobs of one migration plan.
type MigrationConfig struct {
	ContentTypes   []string      `yaml:"content_types,omitempty"`
	BatchSize      int           `yaml:"batch_size"`
	Parallelism    int           `yaml:"parallelism"`
	FailurePolicy  FailurePolicy `yaml:"failure_policy"`
	FatalSeverity  string        `yaml:"fatal_severity"`
	ForceRemigrate bool          `yaml:"force_remigrate,omitempty"`
	// RetryCancelled re-attempts entries a previous run left Cancelled (default true).
	RetryCancelled *bool `yaml:"retry_cancelled,omitempty"`
}

// ManifestConfig selects the manifest persistence medium.
type ManifestConfig struct {
	// Handle is "file:<path>" or "sqlite:<db>#<key>".
	Handle string `yaml:"handle"`
}

// FiltersConfig configures the built-in filter hooks.
type FiltersConfig struct {
	SkipIDs          map[string][]string `yaml:"skip_ids,omitempty"` // content type -> source ids
	ExcludeLocations []string            `yaml:"exclude_locations,omitempty"`
}

// PrefixMapping moves items below From to To at the destination.
type PrefixMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MappingsConfig configures the built-in mapping hooks.
type MappingsConfig struct {
	Prefixes       []PrefixMapping `yaml:"prefixes,omitempty"`
	NormalizeNames bool            `yaml:"normalize_names,omitempty"`
}

// AttributeRewrite replaces an attribute value inside embedded XML definitions.
type AttributeRewrite struct {
	Element   string `yaml:"element"`
	Attribute string `yaml:"attribute"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
}

// TransformsConfig configures the built-in transformer hooks.
type TransformsConfig struct {
	AttributeRewrites []AttributeRewrite `yaml:"attribute_rewrites,omitempty"`
}

// NotificationConfig enables NATS notifications for batch and action completion.
type NotificationConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	// KVBucket holds the latest action status per content type.
	KVBucket string `yaml:"kv_bucket,omitempty"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint (daemon mode).
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// DaemonConfig configures periodic resumable runs.
type DaemonConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	WatchSource bool   `yaml:"watch_source,omitempty"`

	// Cron takes precedence over Interval when set ("0 */4 * * *").
	Cron string `yaml:"cron,omitempty"`
}

// EventsConfig enables the SQLite run event log.
type EventsConfig struct {
	Database string `yaml:"database,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, merrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Configuration loaded", slog.String("path", configPath))
	return cfg, nil
}

// Parse decodes YAML (after environment expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, merrors.Wrap(err, merrors.CategoryConfig, merrors.SeverityFatal, "failed to unmarshal config")
	}
	if err := NewDefaultApplier().ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads .env and .env.local when present. Existing process
// environment variables are never overwritten.
func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("Failed to load env file", slog.String("path", envPath), slog.Any("error", err))
			continue
		}
		slog.Debug("Loaded environment variables", slog.String("path", envPath))
	}
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	maxRetries := 2
	retryCancelled := true
	exampleConfig := Config{
		Source:      EndpointConfig{Type: "filestore", Root: "./export", PageSize: 100},
		Destination: EndpointConfig{Type: "filestore", Root: "./published"},
		Migration: MigrationConfig{
			ContentTypes:   []string{"users", "groups", "projects", "datasources", "workbooks"},
			BatchSize:      50,
			Parallelism:    4,
			FailurePolicy:  FailurePolicyHalt,
			FatalSeverity:  "fatal",
			RetryCancelled: &retryCancelled,
		},
		Manifest: ManifestConfig{Handle: "file:migration-manifest.json"},
		Retry: RetryConfig{
			Backoff:      RetryBackoffExponential,
			InitialDelay: "1s",
			MaxDelay:     "30s",
			MaxRetries:   &maxRetries,
		},
		Filters: FiltersConfig{
			SkipIDs:          map[string][]string{"users": {"guest"}},
			ExcludeLocations: []string{"Personal Spaces"},
		},
		Mappings: MappingsConfig{
			Prefixes:       []PrefixMapping{{From: "Default", To: "Migrated"}},
			NormalizeNames: true,
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
