package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel = %q, want %q", cfg.App.LogLevel, "info")
	}
	if cfg.Kafka.RequestTopic != "booking.requests" {
		t.Errorf("Kafka.RequestTopic = %q, want %q", cfg.Kafka.RequestTopic, "booking.requests")
	}
	if cfg.Sweeper.Timezone != "Asia/Seoul" {
		t.Errorf("Sweeper.Timezone = %q, want %q", cfg.Sweeper.Timezone, "Asia/Seoul")
	}
}

func TestLoadLogLevelFromEnv(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.LogLevel != "warn" {
		t.Errorf("App.LogLevel = %q, want %q", cfg.App.LogLevel, "warn")
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "development")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted an unknown log level")
	}
}
