package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	// Blank values fail to parse and fall back.
	for _, key := range []string{"DEFAULT_THINKING", "DEFAULT_SEARCH", "STREAM_IDLE_TIMEOUT", "LLM_MAX_RETRIES", "GO_ENV"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.True(t, cfg.Ai.DefaultThinking)
	assert.False(t, cfg.Ai.DefaultSearch)
	assert.Equal(t, 60*time.Second, cfg.Ai.StreamIdleTimeout)
	assert.Equal(t, 5, cfg.Ai.MaxRetries)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHAT_STORE", "memory")
	t.Setenv("APP_ID", "notes")
	t.Setenv("CLIENT_ID", "c-42")
	t.Setenv("DEFAULT_SEARCH", "true")
	t.Setenv("STREAM_IDLE_TIMEOUT", "5s")
	t.Setenv("LLM_MAX_RETRIES", "2")
	t.Setenv("GO_ENV", "production")

	cfg := Load()

	assert.Equal(t, "memory", cfg.App.Store)
	assert.Equal(t, "notes", cfg.App.AppId)
	assert.Equal(t, "c-42", cfg.App.ClientId)
	assert.True(t, cfg.Ai.DefaultSearch)
	assert.Equal(t, 5*time.Second, cfg.Ai.StreamIdleTimeout)
	assert.Equal(t, 2, cfg.Ai.MaxRetries)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "abc")
	t.Setenv("CFG_BOOL", " false ")
	t.Setenv("CFG_DUR", "1m30s")

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"unset string falls back", getEnv("CFG_MISSING_KEY", "x"), "x"},
		{"bad int falls back", getEnvAsInt("CFG_INT", 7), 7},
		{"bool is trimmed", getEnvAsBool("CFG_BOOL", true), false},
		{"duration parses", getEnvAsDuration("CFG_DUR", time.Second), 90 * time.Second},
		{"missing duration falls back", getEnvAsDuration("CFG_MISSING_KEY", time.Second), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
