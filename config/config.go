package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Broker     BrokerConfig     `yaml:"broker"`
	Flow       FlowConfig       `yaml:"flow"`
	Session    SessionConfig    `yaml:"session"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// BrokerConfig holds the NATS connection and subject layout for meter ingestion.
type BrokerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// FlowConfig holds tick debouncing and calibration parameters.
type FlowConfig struct {
	// MinPourTicks is the smallest debounced delta that counts as a pour.
	// Smaller deltas accumulate until enough additional ticks arrive.
	MinPourTicks int64 `yaml:"min_pour_ticks"`
	// MaxDeltaTicks is the implausible-burst ceiling. Deltas above it are
	// treated as sensor anomalies and reset the baseline.
	MaxDeltaTicks int64 `yaml:"max_delta_ticks"`
	// DefaultTicksPerML seeds new flow meters that have not been calibrated.
	DefaultTicksPerML float64 `yaml:"default_ticks_per_ml"`
}

// SessionConfig holds drinking-session windowing parameters.
type SessionConfig struct {
	TimeoutMinutes int           `yaml:"timeout_minutes"`
	Timeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Broker.SubjectPrefix == "" {
		cfg.Broker.SubjectPrefix = "kegboard.meters"
	}

	if cfg.Flow.MinPourTicks <= 0 {
		cfg.Flow.MinPourTicks = 10
	}
	if cfg.Flow.MaxDeltaTicks <= 0 {
		cfg.Flow.MaxDeltaTicks = 10000
	}
	if cfg.Flow.DefaultTicksPerML <= 0 {
		cfg.Flow.DefaultTicksPerML = 2.2
	}

	if cfg.Session.TimeoutMinutes <= 0 {
		cfg.Session.TimeoutMinutes = 180
	}
	cfg.Session.Timeout = time.Duration(cfg.Session.TimeoutMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	return &cfg, nil
}
