package httpclient

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset uses default", "", 42 * time.Second},
		{"integer seconds", "30", 30 * time.Second},
		{"go duration", "1h30m", 90 * time.Minute},
		{"invalid falls back", "soon", 42 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_HTTP_DURATION", tt.value)
			}
			got := getEnvDuration("TEST_HTTP_DURATION", 42*time.Second)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultConfigEnvOverride(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "120")

	cfg := DefaultConfig()
	if cfg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s from HTTP_TIMEOUT", cfg.Timeout)
	}
}

func TestStreamingConfigHasNoOverallTimeout(t *testing.T) {
	cfg := StreamingConfig()
	if cfg.Timeout != 0 {
		t.Errorf("StreamingConfig().Timeout = %v, want 0", cfg.Timeout)
	}
}

func TestNewHonorsConfig(t *testing.T) {
	cfg := ClientConfig{Timeout: 5 * time.Second}
	client := New(&cfg)

	if client.Timeout != 5*time.Second {
		t.Errorf("client.Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatal("client.Transport is nil")
	}
}

func TestNewNilUsesDefaults(t *testing.T) {
	client := New(nil)
	if client.Timeout == 0 {
		t.Error("default client should carry an overall timeout")
	}
}
