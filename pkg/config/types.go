package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Job       JobConfig       `yaml:"job"`
	Source    SourceConfig    `yaml:"source"`
	Extract   ExtractConfig   `yaml:"extract"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Retry     RetryConfig     `yaml:"retry"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds http, auth and data-dir settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Engine selects the HTTP server implementation: "nethttp" (default)
	// or "fasthttp".
	Engine    string    `yaml:"engine"`
	DataDir   string    `yaml:"data_dir"`
	APIToken  string    `yaml:"api_token"`
	RateLimit RateLimit `yaml:"rate_limit"`
	TLS       TLSConfig `yaml:"tls"`
}

// RateLimit bounds operator API calls per remote address.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// JobConfig holds the execution quantum and continuation settings for the
// ingestion job.
type JobConfig struct {
	Name string `yaml:"name"`
	// HardLimit is the externally imposed maximum invocation duration.
	HardLimit Duration `yaml:"hard_limit"`
	// SafetyBuffer is how long before the hard limit a run must stop to
	// persist its cursor and schedule a continuation.
	SafetyBuffer Duration `yaml:"safety_buffer"`
	// RetryInterval is the delay before a scheduled continuation fires.
	RetryInterval Duration `yaml:"retry_interval"`
}

// SourceConfig describes the holding area the harvester deposits files into.
type SourceConfig struct {
	Dir string `yaml:"dir"`
	// Pattern optionally restricts enumeration to matching file names
	// (path.Match syntax, e.g. "*.pdf").
	Pattern     string    `yaml:"pattern"`
	MaxFileSize SizeBytes `yaml:"max_file_size"`
}

// ExtractConfig points at the extraction service. An empty URL selects the
// built-in sidecar extractor (development mode).
type ExtractConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// WarehouseConfig points at the downstream row store. An empty URL selects
// the logging sink (development mode).
type WarehouseConfig struct {
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
	// RPS/Burst bound outbound write calls; zero disables the limiter.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RetryConfig is the sink retry policy.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// RetentionConfig holds configuration for the ledger sweep runner.
type RetentionConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Cron      string   `yaml:"cron"`
	MaxAge    Duration `yaml:"max_age"`
	MinAge    Duration `yaml:"min_age"`
	BatchSize int      `yaml:"batch_size"`
	DryRun    bool     `yaml:"dry_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// ApplyDefaults fills zero-valued fields with working defaults so partial
// configs behave.
func (c *Config) ApplyDefaults() {
	if c.Job.Name == "" {
		c.Job.Name = "reports"
	}
	if c.Job.HardLimit == 0 {
		c.Job.HardLimit = Duration(5 * time.Minute)
	}
	if c.Job.SafetyBuffer == 0 {
		c.Job.SafetyBuffer = Duration(30 * time.Second)
	}
	if c.Job.RetryInterval == 0 {
		c.Job.RetryInterval = Duration(30 * time.Second)
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = Duration(time.Second)
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.Source.MaxFileSize == 0 {
		c.Source.MaxFileSize = SizeBytes(64 << 20)
	}
	if c.Extract.Timeout == 0 {
		c.Extract.Timeout = Duration(60 * time.Second)
	}
	if c.Warehouse.Timeout == 0 {
		c.Warehouse.Timeout = Duration(30 * time.Second)
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 3 * * *"
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = Duration(30 * 24 * time.Hour)
	}
	if c.Retention.BatchSize == 0 {
		c.Retention.BatchSize = 500
	}
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
