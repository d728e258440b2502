// Package config carries the small set of tunables this module reads from
// the environment plus an optional config.yml for rate-limit/retry knobs.
package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"debridvfs/pkg/env"
	"debridvfs/pkg/logger"
)

// RateLimitSettings tunes the Real-Debrid adaptive rate limiter and retry
// policy. Zero values fall back to the defaults in DefaultRateLimit.
type RateLimitSettings struct {
	MinIntervalMs int `yaml:"min_interval_ms"`
	MaxIntervalMs int `yaml:"max_interval_ms"`
	MaxRetries    int `yaml:"max_retries"`
}

// DefaultRateLimit returns the default pacing window: interval in
// [100,2000]ms, at most 10 attempts per request.
func DefaultRateLimit() RateLimitSettings {
	return RateLimitSettings{MinIntervalMs: 100, MaxIntervalMs: 2000, MaxRetries: 10}
}

type fileConfig struct {
	RateLimit RateLimitSettings `yaml:"rate_limit"`
}

var (
	once       sync.Once
	mu         sync.RWMutex
	rateLimit  RateLimitSettings
)

// Load reads config.yml from the working directory if present, otherwise applies
// defaults. Safe to call multiple times; only the first call parses the
// file.
func Load() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		rateLimit = DefaultRateLimit()

		data, err := os.ReadFile("config.yml")
		if err != nil {
			logger.Debug("config.yml not found, using default rate-limit settings")
			return
		}

		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			logger.Warn("failed to parse config.yml: %v, using defaults", err)
			return
		}

		if fc.RateLimit.MinIntervalMs > 0 {
			rateLimit.MinIntervalMs = fc.RateLimit.MinIntervalMs
		}
		if fc.RateLimit.MaxIntervalMs > 0 {
			rateLimit.MaxIntervalMs = fc.RateLimit.MaxIntervalMs
		}
		if fc.RateLimit.MaxRetries > 0 {
			rateLimit.MaxRetries = fc.RateLimit.MaxRetries
		}
	})
}

// RateLimit returns a defensive copy of the current rate-limit settings.
func RateLimit() RateLimitSettings {
	Load()
	mu.RLock()
	defer mu.RUnlock()
	return rateLimit
}

// Settings is the full set of env-driven runtime configuration.
type Settings struct {
	RDAPIToken          string
	TMDBAPIKey          string
	ScanIntervalSecs    int
	IdentifyConcurrency int
	ConnectionSemaphore int

	JellyfinURL            string
	JellyfinAPIKey         string
	JellyfinRcloneMountPath string
}

// JellyfinConfigured reports whether all three Jellyfin env vars are set,
// matching spec's all-or-none notifier configuration rule.
func (s Settings) JellyfinConfigured() bool {
	return s.JellyfinURL != "" && s.JellyfinAPIKey != "" && s.JellyfinRcloneMountPath != ""
}

// FromEnv reads the module's environment-variable surface.
func FromEnv() Settings {
	return Settings{
		RDAPIToken:              env.GetString("RD_API_TOKEN", ""),
		TMDBAPIKey:              env.GetString("TMDB_API_KEY", ""),
		ScanIntervalSecs:        env.GetInt("SCAN_INTERVAL_SECS", 60),
		IdentifyConcurrency:     env.GetInt("RD_IDENTIFY_CONCURRENCY", 1),
		ConnectionSemaphore:     env.GetInt("RD_CONNECTION_SEMAPHORE", 256),
		JellyfinURL:             env.GetString("JELLYFIN_URL", ""),
		JellyfinAPIKey:          env.GetString("JELLYFIN_API_KEY", ""),
		JellyfinRcloneMountPath: env.GetString("JELLYFIN_RCLONE_MOUNT_PATH", ""),
	}
}
