package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Background BackgroundConfig `yaml:"background"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Context string `yaml:"context"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RemoteConfig points at the external API mutations are replayed against.
type RemoteConfig struct {
	BaseURL             string `yaml:"base_url"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds"`
	ProbeCacheSeconds   int    `yaml:"probe_cache_seconds"`
}

type SyncConfig struct {
	CooldownSeconds         int `yaml:"cooldown_seconds"`
	IntervalSeconds         int `yaml:"interval_seconds"`
	MaxAttempts             int `yaml:"max_attempts"`
	ConnectivityPollSeconds int `yaml:"connectivity_poll_seconds"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type BackgroundConfig struct {
	Enabled bool `yaml:"enabled"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StoragePath   string `yaml:"storage_path"`
	Interval      string `yaml:"interval"`
	RetentionDays int    `yaml:"retention_days"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; local deployments use it for redis credentials.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Remote.BaseURL != "" {
		if _, err := url.Parse(c.Remote.BaseURL); err != nil {
			return fmt.Errorf("remote.base_url is invalid: %w", err)
		}
	}
	if c.Sync.CooldownSeconds > c.Sync.IntervalSeconds {
		return errors.New("sync.cooldown_seconds must not exceed sync.interval_seconds")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sitesync"
	}
	if c.Sync.CooldownSeconds == 0 {
		c.Sync.CooldownSeconds = 30
	}
	if c.Sync.IntervalSeconds == 0 {
		c.Sync.IntervalSeconds = 300
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 10
	}
	if c.Sync.ConnectivityPollSeconds == 0 {
		c.Sync.ConnectivityPollSeconds = 15
	}
	if c.Remote.ProbeTimeoutSeconds == 0 {
		c.Remote.ProbeTimeoutSeconds = 5
	}
	if c.Remote.ProbeCacheSeconds == 0 {
		c.Remote.ProbeCacheSeconds = 5
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}

// Cooldown returns the minimum gap between executed sync passes.
func (c SyncConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Interval returns the periodic baseline between timer-driven passes.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ConnectivityPoll returns how often the detector is sampled for edges.
func (c SyncConfig) ConnectivityPoll() time.Duration {
	return time.Duration(c.ConnectivityPollSeconds) * time.Second
}

// ProbeTimeout bounds a single connectivity probe.
func (c RemoteConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// ProbeCache is how long a probe result stays fresh.
func (c RemoteConfig) ProbeCache() time.Duration {
	return time.Duration(c.ProbeCacheSeconds) * time.Second
}
