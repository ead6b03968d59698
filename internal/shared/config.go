package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	API      APIConfig      `toml:"api"`
	Pools    PoolsConfig    `toml:"pools"`
	Player   PlayerConfig   `toml:"player"`
}

// DatabaseConfig contains SQLite connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig contains cover-image cache settings.
type CacheConfig struct {
	Dir             string `toml:"dir"`
	GracePeriodDays int    `toml:"grace_period_days"`
}

// APIConfig contains settings for the Bilibili space API.
type APIConfig struct {
	BaseURL       string            `toml:"base_url"`
	PageSize      int               `toml:"page_size"`
	FetchInterval float64           `toml:"fetch_interval"` // seconds between page fetches
	Headers       map[string]string `toml:"headers"`        // extra request headers, passed through verbatim
}

// PoolsConfig sizes the coordinator worker pools.
type PoolsConfig struct {
	ImageDisk  int `toml:"image_disk"`
	ImageNet   int `toml:"image_net"`
	MemberSync int `toml:"member_sync"`
	Misc       int `toml:"misc"`
}

// PlayerConfig contains the external media player invocation.
type PlayerConfig struct {
	Command string `toml:"command"`
}

// GracePeriod returns the cache grace period as a [time.Duration].
func (c CacheConfig) GracePeriod() time.Duration {
	days := c.GracePeriodDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
