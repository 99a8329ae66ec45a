// Package main provides the kafkawatch CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/kafkawatch/internal/probe"
)

// Config represents the monitor configuration.
type Config struct {
	Targets    TargetsConfig    `yaml:"targets"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	State      StateConfig      `yaml:"state"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`

	// LogFile receives a copy of the log output in append mode.
	LogFile string `yaml:"log_file"`
	// MetricsFile, when set, receives a textfile-collector .prom file.
	MetricsFile string `yaml:"metrics_file"`

	Verbose bool `yaml:"-"` // set via CLI flag
}

// TargetsConfig locates the monitored services.
type TargetsConfig struct {
	Zookeeper EndpointConfig `yaml:"zookeeper"`
	Broker    EndpointConfig `yaml:"broker"`
	Connect   ConnectConfig  `yaml:"connect"`
}

// EndpointConfig is one host:port endpoint.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ConnectConfig locates the Kafka Connect REST API.
type ConnectConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Path is the HTTP base path probed for API health (default "/").
	Path string `yaml:"path"`
}

// SMTPConfig holds mail transport settings. The password may also be
// supplied via KAFKAWATCH_SMTP_PASSWORD to keep it out of the file.
type SMTPConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// ThresholdsConfig holds tunable durations as strings (e.g. "5s", "4h").
type ThresholdsConfig struct {
	ProbeTimeout     string `yaml:"probe_timeout"`
	RenotifyInterval string `yaml:"renotify_interval"`

	probeTimeout     time.Duration
	renotifyInterval time.Duration
}

// StateConfig locates the persisted alert state.
type StateConfig struct {
	DBPath   string `yaml:"db_path"`
	LockPath string `yaml:"lock_path"`
}

// RateLimitConfig bounds outbound notifications.
type RateLimitConfig struct {
	MaxPerWindow int    `yaml:"max_per_window"`
	Window       string `yaml:"window"`
	Disabled     bool   `yaml:"disabled"`

	window time.Duration
}

// Target names are fixed; configuration supplies only their locations.
const (
	TargetZookeeper = "zookeeper"
	TargetBroker    = "broker"
	TargetConnect   = "connect"
)

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Targets.Zookeeper.Port == 0 {
		c.Targets.Zookeeper.Port = 2181
	}
	if c.Targets.Broker.Port == 0 {
		c.Targets.Broker.Port = 9092
	}
	if c.Targets.Connect.Port == 0 {
		c.Targets.Connect.Port = 8083
	}
	if c.Targets.Connect.Path == "" {
		c.Targets.Connect.Path = "/"
	}
	if c.Thresholds.ProbeTimeout == "" {
		c.Thresholds.ProbeTimeout = "5s"
	}
	if c.Thresholds.RenotifyInterval == "" {
		c.Thresholds.RenotifyInterval = "4h"
	}
	if c.State.DBPath == "" {
		c.State.DBPath = "/var/lib/kafkawatch/state.db"
	}
	if c.State.LockPath == "" {
		c.State.LockPath = c.State.DBPath + ".lock"
	}
	if c.RateLimit.MaxPerWindow == 0 {
		c.RateLimit.MaxPerWindow = 20
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.SMTP.Password == "" {
		c.SMTP.Password = os.Getenv("KAFKAWATCH_SMTP_PASSWORD")
	}
}

// Validate checks the configuration and parses duration fields.
func (c *Config) Validate() error {
	if c.Targets.Zookeeper.Host == "" {
		return fmt.Errorf("targets.zookeeper.host is required")
	}
	if c.Targets.Broker.Host == "" {
		return fmt.Errorf("targets.broker.host is required")
	}
	if c.Targets.Connect.Host == "" {
		return fmt.Errorf("targets.connect.host is required")
	}

	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.Port == 0 {
		return fmt.Errorf("smtp.port is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if len(c.SMTP.Recipients) == 0 {
		return fmt.Errorf("smtp.recipients must list at least one address")
	}

	var err error
	c.Thresholds.probeTimeout, err = time.ParseDuration(c.Thresholds.ProbeTimeout)
	if err != nil {
		return fmt.Errorf("invalid thresholds.probe_timeout %q: %w", c.Thresholds.ProbeTimeout, err)
	}
	c.Thresholds.renotifyInterval, err = time.ParseDuration(c.Thresholds.RenotifyInterval)
	if err != nil {
		return fmt.Errorf("invalid thresholds.renotify_interval %q: %w", c.Thresholds.RenotifyInterval, err)
	}
	c.RateLimit.window, err = time.ParseDuration(c.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.window %q: %w", c.RateLimit.Window, err)
	}

	return nil
}

// ProbeTimeout returns the parsed probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return c.Thresholds.probeTimeout
}

// RenotifyInterval returns the parsed re-notify interval.
func (c *Config) RenotifyInterval() time.Duration {
	return c.Thresholds.renotifyInterval
}

// RateLimitWindow returns the parsed rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return c.RateLimit.window
}

// ProbeTargets builds the monitored target list, in check order.
func (c *Config) ProbeTargets() []probe.Target {
	return []probe.Target{
		{
			Name: TargetZookeeper,
			Host: c.Targets.Zookeeper.Host,
			Port: c.Targets.Zookeeper.Port,
		},
		{
			Name: TargetBroker,
			Host: c.Targets.Broker.Host,
			Port: c.Targets.Broker.Port,
		},
		{
			Name:     TargetConnect,
			Host:     c.Targets.Connect.Host,
			Port:     c.Targets.Connect.Port,
			HTTPPath: c.Targets.Connect.Path,
		},
	}
}
