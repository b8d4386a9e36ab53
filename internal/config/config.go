package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/malosaaa/p2000mon/internal/models"
)

const (
	// DefaultBaseURL is the public site all region paths are resolved against.
	DefaultBaseURL = "https://www.alarmfase1.nl/"

	// DefaultFetchTimeout bounds a single page download.
	DefaultFetchTimeout = 20 * time.Second

	// DefaultScanInterval is how often an instance polls when not configured.
	DefaultScanInterval = 120 * time.Second

	// MinScanInterval is the lowest poll rate accepted, to stay polite to the
	// upstream site.
	MinScanInterval = 30 * time.Second
)

// Config holds application configuration loaded from the YAML config file and
// environment.
type Config struct {
	ListenAddr   string
	BasePath     string
	BaseURL      string
	FetchTimeout time.Duration
	Log          LogConfig
	Instances    []Instance
}

// LogConfig mirrors the log section of the config file.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Instance is one monitored region, validated and with defaults applied.
type Instance struct {
	Name         string
	RegionPath   string
	ScanInterval time.Duration
	Sensors      []string
	Filter       models.FilterConfig
}

// fileConfig is the raw YAML schema before validation.
type fileConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	BasePath            string `yaml:"base_path"`
	BaseURL             string `yaml:"base_url"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	Log                 struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Instances []struct {
		Name                string   `yaml:"name"`
		RegionPath          string   `yaml:"region_path"`
		ScanIntervalSeconds int      `yaml:"scan_interval_seconds"`
		Sensors             []string `yaml:"sensors"`
		Filters             []string `yaml:"filters"`
	} `yaml:"instances"`
}

// Load reads the config file named by P2000MON_CONFIG (default config.yaml),
// applies environment overrides and defaults, and validates the result.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	path := os.Getenv("P2000MON_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	var cfg Config
	cfg.ListenAddr = raw.ListenAddr
	cfg.BasePath = raw.BasePath
	cfg.BaseURL = raw.BaseURL
	if raw.FetchTimeoutSeconds > 0 {
		cfg.FetchTimeout = time.Duration(raw.FetchTimeoutSeconds) * time.Second
	}
	cfg.Log = LogConfig{
		Level:      raw.Log.Level,
		File:       raw.Log.File,
		MaxSizeMB:  raw.Log.MaxSizeMB,
		MaxBackups: raw.Log.MaxBackups,
		MaxAgeDays: raw.Log.MaxAgeDays,
	}

	// Environment overrides
	if v := os.Getenv("P2000MON_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("P2000MON_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("P2000MON_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("P2000MON_FETCH_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("invalid P2000MON_FETCH_TIMEOUT %q", v)
		}
		cfg.FetchTimeout = time.Duration(secs) * time.Second
	}

	// Validate instances
	if len(raw.Instances) == 0 {
		return Config{}, fmt.Errorf("config file %s declares no instances", path)
	}
	seen := make(map[string]bool, len(raw.Instances))
	for i, ri := range raw.Instances {
		inst, err := buildInstance(ri.Name, ri.RegionPath, ri.ScanIntervalSeconds, ri.Sensors, ri.Filters)
		if err != nil {
			return Config{}, fmt.Errorf("instance %d: %w", i, err)
		}
		if seen[inst.Name] {
			return Config{}, fmt.Errorf("duplicate instance name %q", inst.Name)
		}
		seen[inst.Name] = true
		cfg.Instances = append(cfg.Instances, inst)
	}

	// Apply defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return cfg, nil
}

func buildInstance(name, regionPath string, intervalSecs int, sensors, filters []string) (Instance, error) {
	missing := []string{}
	if name == "" {
		missing = append(missing, "name")
	}
	if regionPath == "" {
		missing = append(missing, "region_path")
	}
	if len(missing) > 0 {
		return Instance{}, fmt.Errorf("missing required fields: %v", missing)
	}

	interval := DefaultScanInterval
	if intervalSecs != 0 {
		interval = time.Duration(intervalSecs) * time.Second
		if interval < MinScanInterval {
			return Instance{}, fmt.Errorf("scan interval %ds below minimum %s", intervalSecs, MinScanInterval)
		}
	}

	enabled := sensors
	if enabled == nil {
		enabled = models.DefaultEnabledSensors
	}
	for _, key := range enabled {
		if !models.KnownSensor(key) {
			return Instance{}, fmt.Errorf("unknown sensor %q", key)
		}
	}

	filter := models.FilterConfig{}
	for _, f := range filters {
		st, err := models.ParseServiceType(f)
		if err != nil {
			return Instance{}, fmt.Errorf("invalid filter: %w", err)
		}
		filter[st] = true
	}

	return Instance{
		Name:         name,
		RegionPath:   regionPath,
		ScanInterval: interval,
		Sensors:      enabled,
		Filter:       filter,
	}, nil
}
