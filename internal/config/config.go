// Package config loads and validates leadscout configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/leadscout/internal/collector/browser"
	"github.com/JakeFAU/leadscout/internal/storage/gcs"
	"github.com/JakeFAU/leadscout/internal/storage/local"
	"github.com/JakeFAU/leadscout/internal/telemetry"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Store     StoreConfig      `mapstructure:"store"`
	DB        DBConfig         `mapstructure:"db"`
	Places    PlacesConfig     `mapstructure:"places"`
	Qualify   QualifyConfig    `mapstructure:"qualify"`
	Scan      ScanConfig       `mapstructure:"scan"`
	Browser   BrowserConfig    `mapstructure:"browser"`
	Artifacts ArtifactsConfig  `mapstructure:"artifacts"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig selects the lead store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// PlacesConfig configures the Places API client.
type PlacesConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

// QualifyConfig holds the qualification policy threshold.
type QualifyConfig struct {
	MinReviews int `mapstructure:"min_reviews"`
}

// ScanConfig bounds deep scans.
type ScanConfig struct {
	PageBudget int `mapstructure:"page_budget"`
}

// BrowserConfig configures the browser collector and its worker pool.
type BrowserConfig struct {
	browser.Config `mapstructure:",squash"`

	Chrome     browser.ChromeConfig `mapstructure:"chrome"`
	Workers    int                  `mapstructure:"workers"`
	QueueDepth int                  `mapstructure:"queue_depth"`
	RunTimeout time.Duration        `mapstructure:"run_timeout"`
}

// ArtifactsConfig selects where debug screenshots go.
type ArtifactsConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
}

// PubSubConfig holds metadata for event publication. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether events should go to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("logging.development", true)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.base_url", "")
	v.SetDefault("places.timeout", "15s")
	v.SetDefault("places.rps", 5.0)
	v.SetDefault("places.burst", 2)
	v.SetDefault("qualify.min_reviews", 5)
	v.SetDefault("scan.page_budget", 5)
	v.SetDefault("browser.maps_url", browser.DefaultMapsURL)
	v.SetDefault("browser.max_results", browser.DefaultMaxResults)
	v.SetDefault("browser.stagnation_bound", browser.DefaultStagnationBound)
	v.SetDefault("browser.selector_timeout", "8s")
	v.SetDefault("browser.feed_timeout", "9s")
	v.SetDefault("browser.consent_timeout", "3s")
	v.SetDefault("browser.detail_timeout", "5s")
	v.SetDefault("browser.min_delay", "600ms")
	v.SetDefault("browser.max_delay", "1500ms")
	v.SetDefault("browser.workers", 1)
	v.SetDefault("browser.queue_depth", 16)
	v.SetDefault("browser.run_timeout", "10m")
	v.SetDefault("browser.chrome.mode", browser.ModeLocal)
	v.SetDefault("browser.chrome.exec_path", "")
	v.SetDefault("browser.chrome.headful", false)
	v.SetDefault("artifacts.backend", BackendMemory)
	v.SetDefault("artifacts.local.base_dir", "artifacts")
	v.SetDefault("artifacts.gcs.bucket", "")
	v.SetDefault("artifacts.gcs.prefix", "leadscout")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Store.Backend)
	}
	if c.Qualify.MinReviews < 0 {
		return fmt.Errorf("qualify.min_reviews must be >= 0")
	}
	if c.Scan.PageBudget <= 0 {
		return fmt.Errorf("scan.page_budget must be > 0")
	}
	if c.Browser.Workers <= 0 {
		return fmt.Errorf("browser.workers must be > 0")
	}
	if c.Browser.QueueDepth <= 0 {
		return fmt.Errorf("browser.queue_depth must be > 0")
	}
	if c.Browser.MaxDelay < c.Browser.MinDelay {
		return fmt.Errorf("browser.max_delay must be >= browser.min_delay")
	}
	switch c.Browser.Chrome.Mode {
	case browser.ModeLocal, browser.ModeSandboxed:
	default:
		return fmt.Errorf("browser.chrome.mode must be %q or %q", browser.ModeLocal, browser.ModeSandboxed)
	}
	switch c.Artifacts.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Artifacts.Local.BaseDir == "" {
			return fmt.Errorf("artifacts.local.base_dir must be set when artifacts.backend is local")
		}
	case BackendGCS:
		if c.Artifacts.GCS.Bucket == "" {
			return fmt.Errorf("artifacts.gcs.bucket must be set when artifacts.backend is gcs")
		}
	default:
		return fmt.Errorf("artifacts.backend must be one of memory, local, gcs")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}
