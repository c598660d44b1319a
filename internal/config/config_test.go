package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("ASSIST_BASE_URL", "")
	os.Setenv("ASSIST_LANGUAGE", "")
	cfg := Load()
	if cfg.AssistBaseURL == "" {
		t.Fatalf("expected default assist base url")
	}
	if cfg.Language != "en" {
		t.Fatalf("expected default language en, got %q", cfg.Language)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	os.Setenv("ASSIST_BASE_URL", "http://assist.internal:9000")
	os.Setenv("ASSIST_LANGUAGE", "hi")
	defer os.Unsetenv("ASSIST_BASE_URL")
	defer os.Unsetenv("ASSIST_LANGUAGE")
	cfg := Load()
	if cfg.AssistBaseURL != "http://assist.internal:9000" {
		t.Fatalf("expected env override, got %q", cfg.AssistBaseURL)
	}
	if cfg.Language != "hi" {
		t.Fatalf("expected language hi, got %q", cfg.Language)
	}
}
