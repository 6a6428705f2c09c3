package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Storage
	DataDir   string
	DBPath    string
	ProjectID string // empty: main generates one

	// Engine
	AudioBackend string        // malgo or headless
	BaseDelay    time.Duration // lead time before the shared start instant
	SyncDelta    float64       // seconds; a persisted value wins
	PollInterval time.Duration // progress poll period

	// Voice conversion service
	ConversionAPIURL       string
	ConversionAPIKey       string
	ConversionPollInterval time.Duration
	ConversionStrength     float64
	ModelVolumeMix         float64

	MonitorBitrate int // Opus bits/s for the WebRTC monitor
	LogLevel       string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("OVERDUB_PORT", 8080),

		DataDir:   envStr("OVERDUB_DATA_DIR", "./data"),
		DBPath:    envStr("OVERDUB_DB_PATH", "./data/overdub.db"),
		ProjectID: envStr("OVERDUB_PROJECT_ID", ""),

		AudioBackend: envStr("OVERDUB_AUDIO_BACKEND", "malgo"),
		BaseDelay:    envDuration("OVERDUB_BASE_DELAY", 100*time.Millisecond),
		SyncDelta:    envFloat("OVERDUB_SYNC_DELTA", 0),
		PollInterval: envDuration("OVERDUB_POLL_INTERVAL", 50*time.Millisecond),

		ConversionAPIURL:       envStr("OVERDUB_CONVERSION_API_URL", "https://arpeggi.io/api/kits/v1"),
		ConversionAPIKey:       envStr("OVERDUB_CONVERSION_API_KEY", ""),
		ConversionPollInterval: envDuration("OVERDUB_CONVERSION_POLL", 3*time.Second),
		ConversionStrength:     envFloat("OVERDUB_CONVERSION_STRENGTH", 0.5),
		ModelVolumeMix:         envFloat("OVERDUB_MODEL_VOLUME_MIX", 0.5),

		MonitorBitrate: envInt("OVERDUB_MONITOR_BITRATE", 128000),
		LogLevel:       envStr("OVERDUB_LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("150ms") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
