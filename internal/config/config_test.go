package config

import (
	"os"
	"testing"
	"time"
)

var allVars = []string{
	"OVERDUB_PORT", "OVERDUB_DATA_DIR", "OVERDUB_DB_PATH", "OVERDUB_PROJECT_ID",
	"OVERDUB_AUDIO_BACKEND", "OVERDUB_BASE_DELAY", "OVERDUB_SYNC_DELTA",
	"OVERDUB_POLL_INTERVAL", "OVERDUB_CONVERSION_API_URL", "OVERDUB_CONVERSION_API_KEY",
	"OVERDUB_CONVERSION_POLL", "OVERDUB_CONVERSION_STRENGTH", "OVERDUB_MODEL_VOLUME_MIX",
	"OVERDUB_MONITOR_BITRATE", "OVERDUB_LOG_LEVEL",
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range allVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.DBPath != "./data/overdub.db" {
		t.Errorf("DBPath = %q, want ./data/overdub.db", cfg.DBPath)
	}
	if cfg.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", cfg.ProjectID)
	}
	if cfg.AudioBackend != "malgo" {
		t.Errorf("AudioBackend = %q, want malgo", cfg.AudioBackend)
	}
	if cfg.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", cfg.BaseDelay)
	}
	if cfg.SyncDelta != 0 {
		t.Errorf("SyncDelta = %f, want 0", cfg.SyncDelta)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", cfg.PollInterval)
	}
	if cfg.ConversionAPIURL != "https://arpeggi.io/api/kits/v1" {
		t.Errorf("ConversionAPIURL = %q, want default", cfg.ConversionAPIURL)
	}
	if cfg.ConversionPollInterval != 3*time.Second {
		t.Errorf("ConversionPollInterval = %v, want 3s", cfg.ConversionPollInterval)
	}
	if cfg.ConversionStrength != 0.5 || cfg.ModelVolumeMix != 0.5 {
		t.Errorf("strength/mix = %f/%f, want 0.5/0.5", cfg.ConversionStrength, cfg.ModelVolumeMix)
	}
	if cfg.MonitorBitrate != 128000 {
		t.Errorf("MonitorBitrate = %d, want 128000", cfg.MonitorBitrate)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OVERDUB_PORT", "3000")
	t.Setenv("OVERDUB_DATA_DIR", "/tmp/takes")
	t.Setenv("OVERDUB_PROJECT_ID", "demo")
	t.Setenv("OVERDUB_AUDIO_BACKEND", "headless")
	t.Setenv("OVERDUB_BASE_DELAY", "250ms")
	t.Setenv("OVERDUB_SYNC_DELTA", "0.09")
	t.Setenv("OVERDUB_POLL_INTERVAL", "20")
	t.Setenv("OVERDUB_CONVERSION_API_KEY", "key-123")
	t.Setenv("OVERDUB_CONVERSION_STRENGTH", "0.8")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.DataDir != "/tmp/takes" {
		t.Errorf("DataDir = %q, want env override", cfg.DataDir)
	}
	if cfg.ProjectID != "demo" {
		t.Errorf("ProjectID = %q, want demo", cfg.ProjectID)
	}
	if cfg.AudioBackend != "headless" {
		t.Errorf("AudioBackend = %q, want headless", cfg.AudioBackend)
	}
	if cfg.BaseDelay != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 250ms", cfg.BaseDelay)
	}
	if cfg.SyncDelta != 0.09 {
		t.Errorf("SyncDelta = %f, want 0.09", cfg.SyncDelta)
	}
	if cfg.PollInterval != 20*time.Millisecond {
		t.Errorf("PollInterval = %v, want bare number read as 20ms", cfg.PollInterval)
	}
	if cfg.ConversionAPIKey != "key-123" {
		t.Errorf("ConversionAPIKey = %q, want env override", cfg.ConversionAPIKey)
	}
	if cfg.ConversionStrength != 0.8 {
		t.Errorf("ConversionStrength = %f, want 0.8", cfg.ConversionStrength)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("OVERDUB_PORT", "not-a-number")
	t.Setenv("OVERDUB_BASE_DELAY", "-5ms")
	t.Setenv("OVERDUB_SYNC_DELTA", "abc")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want fallback 8080", cfg.Port)
	}
	if cfg.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want fallback 100ms", cfg.BaseDelay)
	}
	if cfg.SyncDelta != 0 {
		t.Errorf("SyncDelta = %f, want fallback 0", cfg.SyncDelta)
	}
}
