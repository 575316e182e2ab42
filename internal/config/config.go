package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the console configuration after defaults, the TOML file and
// environment overrides have been applied, in that order.
type Config struct {
	ControllerURL string
	APIToken      string
	DataDir       string
	Cache         CacheConfig
	Polling       PollingConfig
	Network       NetworkConfig
	Sync          SyncConfig
	Logging       LoggingConfig
	Metrics       MetricsConfig
}

// CacheConfig controls the durable cache.
type CacheConfig struct {
	Path          string
	DefaultTTL    time.Duration
	SchemaVersion int
	Preload       bool
	TTL           map[string]time.Duration // key prefix -> TTL
}

// PollingConfig controls the adaptive pollers and resource refresh.
type PollingConfig struct {
	Enabled         bool
	Active          time.Duration
	Idle            time.Duration
	Hidden          time.Duration // zero pauses polling while unfocused
	IdleAfter       time.Duration
	StaleAfter      time.Duration
	LowBattery      float64
	ResourceRefresh time.Duration
}

// NetworkConfig tunes reachability probing.
type NetworkConfig struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	OfflineThreshold int
}

// SyncConfig controls the mutation replay queue.
type SyncConfig struct {
	MaxRetries int
}

// LoggingConfig controls the log file and optional Loki shipping.
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	File       string
	LokiURL    string
	LokiLabels map[string]string
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Listen string // empty disables
}

const (
	defaultConfigPath    = "~/.config/beacon/config.toml"
	defaultDataDir       = "~/.local/share/beacon"
	defaultControllerURL = "127.0.0.1:8443"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ControllerURL: defaultControllerURL,
		DataDir:       defaultDataDir,
		Cache: CacheConfig{
			DefaultTTL:    5 * time.Minute,
			SchemaVersion: 1,
			Preload:       true,
			TTL: map[string]time.Duration{
				"realtime_": 2 * time.Minute,
				"stations_": 5 * time.Minute,
				"roaming_":  15 * time.Minute,
			},
		},
		Polling: PollingConfig{
			Enabled:         true,
			Active:          10 * time.Second,
			Idle:            30 * time.Second,
			IdleAfter:       60 * time.Second,
			StaleAfter:      30 * time.Second,
			LowBattery:      0.20,
			ResourceRefresh: time.Minute,
		},
		Network: NetworkConfig{
			ProbeInterval:    10 * time.Second,
			ProbeTimeout:     3 * time.Second,
			OfflineThreshold: 2,
		},
		Sync: SyncConfig{MaxRetries: 3},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

type rawConfig struct {
	ControllerURL string `toml:"controller_url"`
	APIToken      string `toml:"api_token"`
	DataDir       string `toml:"data_dir"`
	Cache         struct {
		Path          string            `toml:"path"`
		DefaultTTL    string            `toml:"default_ttl"`
		SchemaVersion int               `toml:"schema_version"`
		Preload       *bool             `toml:"preload"`
		TTL           map[string]string `toml:"ttl"`
	} `toml:"cache"`
	Polling struct {
		Enabled         *bool   `toml:"enabled"`
		Active          string  `toml:"active_interval"`
		Idle            string  `toml:"idle_interval"`
		Hidden          string  `toml:"hidden_interval"`
		IdleAfter       string  `toml:"idle_after"`
		StaleAfter      string  `toml:"stale_after"`
		LowBattery      float64 `toml:"low_battery"`
		ResourceRefresh string  `toml:"resource_refresh"`
	} `toml:"polling"`
	Network struct {
		ProbeInterval    string `toml:"probe_interval"`
		ProbeTimeout     string `toml:"probe_timeout"`
		OfflineThreshold int    `toml:"offline_threshold"`
	} `toml:"network"`
	Sync struct {
		MaxRetries int `toml:"max_retries"`
	} `toml:"sync"`
	Logging struct {
		Level      string            `toml:"level"`
		Format     string            `toml:"format"`
		File       string            `toml:"file"`
		LokiURL    string            `toml:"loki_url"`
		LokiLabels map[string]string `toml:"loki_labels"`
	} `toml:"logging"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// envOverrides are applied after the file.
type envOverrides struct {
	ControllerURL string `env:"BEACON_CONTROLLER_URL"`
	APIToken      string `env:"BEACON_API_TOKEN"`
	CachePath     string `env:"BEACON_CACHE_PATH"`
	LogLevel      string `env:"BEACON_LOG_LEVEL"`
	MetricsListen string `env:"BEACON_METRICS_LISTEN"`
}

// Load locates and parses the console config, falling back to defaults when
// the file is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw rawConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := raw.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	overrides.apply(&cfg)

	cfg.finalize()
	return cfg, nil
}

// Path returns the config file Load reads for path.
func Path(path string) (string, error) {
	return resolvePath(path)
}

func (raw rawConfig) apply(cfg *Config) error {
	setString(&cfg.ControllerURL, raw.ControllerURL)
	setString(&cfg.APIToken, raw.APIToken)
	setString(&cfg.DataDir, raw.DataDir)

	setString(&cfg.Cache.Path, raw.Cache.Path)
	if raw.Cache.SchemaVersion > 0 {
		cfg.Cache.SchemaVersion = raw.Cache.SchemaVersion
	}
	if raw.Cache.Preload != nil {
		cfg.Cache.Preload = *raw.Cache.Preload
	}
	for prefix, value := range raw.Cache.TTL {
		d, err := parseDuration("cache.ttl."+prefix, value)
		if err != nil {
			return err
		}
		if d > 0 {
			cfg.Cache.TTL[prefix] = d
		}
	}

	if raw.Polling.Enabled != nil {
		cfg.Polling.Enabled = *raw.Polling.Enabled
	}
	if raw.Polling.LowBattery > 0 && raw.Polling.LowBattery < 1 {
		cfg.Polling.LowBattery = raw.Polling.LowBattery
	}
	if raw.Network.OfflineThreshold > 0 {
		cfg.Network.OfflineThreshold = raw.Network.OfflineThreshold
	}
	if raw.Sync.MaxRetries > 0 {
		cfg.Sync.MaxRetries = raw.Sync.MaxRetries
	}

	durations := []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"cache.default_ttl", raw.Cache.DefaultTTL, &cfg.Cache.DefaultTTL},
		{"polling.active_interval", raw.Polling.Active, &cfg.Polling.Active},
		{"polling.idle_interval", raw.Polling.Idle, &cfg.Polling.Idle},
		{"polling.hidden_interval", raw.Polling.Hidden, &cfg.Polling.Hidden},
		{"polling.idle_after", raw.Polling.IdleAfter, &cfg.Polling.IdleAfter},
		{"polling.stale_after", raw.Polling.StaleAfter, &cfg.Polling.StaleAfter},
		{"polling.resource_refresh", raw.Polling.ResourceRefresh, &cfg.Polling.ResourceRefresh},
		{"network.probe_interval", raw.Network.ProbeInterval, &cfg.Network.ProbeInterval},
		{"network.probe_timeout", raw.Network.ProbeTimeout, &cfg.Network.ProbeTimeout},
	}
	for _, d := range durations {
		parsed, err := parseDuration(d.name, d.value)
		if err != nil {
			return err
		}
		if parsed > 0 {
			*d.dest = parsed
		}
	}

	setString(&cfg.Logging.Level, raw.Logging.Level)
	setString(&cfg.Logging.Format, raw.Logging.Format)
	setString(&cfg.Logging.File, raw.Logging.File)
	setString(&cfg.Logging.LokiURL, raw.Logging.LokiURL)
	if len(raw.Logging.LokiLabels) > 0 {
		cfg.Logging.LokiLabels = raw.Logging.LokiLabels
	}
	setString(&cfg.Metrics.Listen, raw.Metrics.Listen)
	return nil
}

func (o envOverrides) apply(cfg *Config) {
	setString(&cfg.ControllerURL, o.ControllerURL)
	setString(&cfg.APIToken, o.APIToken)
	setString(&cfg.Cache.Path, o.CachePath)
	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Metrics.Listen, o.MetricsListen)
}

func (c *Config) finalize() {
	c.DataDir = mustExpand(c.DataDir)
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.DataDir, "cache.db")
	} else if c.Cache.Path != ":memory:" {
		c.Cache.Path = mustExpand(c.Cache.Path)
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "beacon.log")
	} else {
		c.Logging.File = mustExpand(c.Logging.File)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// LogPath returns the console's own log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.Logging.File) == "" {
		return mustExpand(defaultDataDir + "/beacon.log")
	}
	return c.Logging.File
}

func setString(dest *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dest = trimmed
	}
}

func parseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %q", name, value)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultConfigPath)
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
