// Package config loads the console configuration.
//
// # Resolution
//
// Load builds the configuration in three layers:
//
//  1. Built-in defaults (Default)
//  2. The TOML file, ~/.config/beacon/config.toml unless a path is given;
//     a missing file is not an error and empty values keep the default
//  3. Environment overrides: BEACON_CONTROLLER_URL, BEACON_API_TOKEN,
//     BEACON_CACHE_PATH, BEACON_LOG_LEVEL, BEACON_METRICS_LISTEN
//
// Paths may start with ~ and are made absolute. The cache database and log
// file default to cache.db and beacon.log under data_dir
// (~/.local/share/beacon).
//
// # File format
//
//	controller_url = "https://wlc.example.net:8443"
//	api_token = "..."
//
//	[cache]
//	default_ttl = "5m"
//	schema_version = 1
//	preload = true
//
//	[cache.ttl]
//	realtime_ = "2m"
//	stations_ = "5m"
//
//	[polling]
//	active_interval = "10s"
//	idle_interval = "30s"
//	hidden_interval = "0s"   # pause while the terminal is unfocused
//	idle_after = "60s"
//	stale_after = "30s"
//	low_battery = 0.2
//	resource_refresh = "1m"
//
//	[network]
//	probe_interval = "10s"
//	probe_timeout = "3s"
//	offline_threshold = 2
//
//	[sync]
//	max_retries = 3
//
//	[logging]
//	level = "info"
//	format = "json"          # or "console"
//	loki_url = "http://loki:3100/loki/api/v1/push"
//
//	[metrics]
//	listen = "127.0.0.1:9310"
//
// Durations use time.ParseDuration syntax. A malformed duration or TOML
// syntax error fails Load; everything else degrades to defaults.
package config
