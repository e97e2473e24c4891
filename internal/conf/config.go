package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config holds the mail store search configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Import   ImportConfig   `yaml:"import"`
	LMTP     LMTPConfig     `yaml:"lmtp"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig selects the relational backend
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`         // sqlite3, postgres or mysql
	DSN          string `yaml:"dsn"`            // file path for sqlite3, connection string otherwise
	MaxOpenConns int    `yaml:"max_open_conns"` // 0 leaves the driver default
}

// SearchConfig tunes the search engine
type SearchConfig struct {
	Strategy        string `yaml:"strategy"`          // query or snapshot
	InListThreshold int    `yaml:"in_list_threshold"` // 0 disables the uid IN (...) restriction
	Concurrency     int    `yaml:"concurrency"`       // mailboxes searched at once by the CLI
}

// ImportConfig holds defaults for message import
type ImportConfig struct {
	User    string `yaml:"user"`
	Mailbox string `yaml:"mailbox"`
}

// LMTPConfig holds the LMTP listener that delivers into the mail store
type LMTPConfig struct {
	UnixSocket    string `yaml:"unix_socket"`
	TCPAddress    string `yaml:"tcp_address"`
	MaxSize       int64  `yaml:"max_size"`       // Maximum message size in bytes
	Timeout       int    `yaml:"timeout"`        // Connection timeout in seconds
	Hostname      string `yaml:"hostname"`       // Server hostname for LHLO
	MaxRecipients int    `yaml:"max_recipients"` // Maximum recipients per transaction
}

// DeliveryConfig holds delivery-specific configuration
type DeliveryConfig struct {
	DefaultFolder  string   `yaml:"default_folder"`  // Mailbox new mail is delivered to
	AllowedDomains []string `yaml:"allowed_domains"` // Empty accepts every domain
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// configPaths are tried in order when no explicit path is given
var configPaths = []string{
	"/etc/mailsearch/mailsearch.yaml",
	"./config/mailsearch.yaml",
	"./mailsearch.yaml",
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "data/mails.db",
		},
		Search: SearchConfig{
			Strategy:        "query",
			InListThreshold: 200,
			Concurrency:     4,
		},
		Import: ImportConfig{
			User:    "default",
			Mailbox: "INBOX",
		},
		LMTP: LMTPConfig{
			UnixSocket:    "",
			TCPAddress:    "127.0.0.1:2424",
			MaxSize:       52428800, // 50MB
			Timeout:       300,
			Hostname:      "localhost",
			MaxRecipients: 100,
		},
		Delivery: DeliveryConfig{
			DefaultFolder:  "INBOX",
			AllowedDomains: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9108",
		},
	}
}

// LoadConfig loads configuration from path. With an empty path the default
// locations are tried and, when none exists, the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readConfig(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return data, nil
	}

	for _, p := range configPaths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", p, err)
		}
	}
	return nil, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validDrivers := map[string]bool{"sqlite3": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns cannot be negative")
	}

	validStrategies := map[string]bool{"query": true, "snapshot": true}
	if !validStrategies[c.Search.Strategy] {
		return fmt.Errorf("invalid search strategy: %s", c.Search.Strategy)
	}
	if c.Search.InListThreshold < 0 {
		return fmt.Errorf("in_list_threshold cannot be negative")
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Import.Mailbox == "" {
		return fmt.Errorf("import mailbox cannot be empty")
	}

	if c.LMTP.UnixSocket == "" && c.LMTP.TCPAddress == "" {
		return fmt.Errorf("at least one of unix_socket or tcp_address must be specified")
	}
	if c.LMTP.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if c.LMTP.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.LMTP.MaxRecipients <= 0 {
		return fmt.Errorf("max_recipients must be positive")
	}
	if c.Delivery.DefaultFolder == "" {
		return fmt.Errorf("default_folder cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}

	return nil
}
