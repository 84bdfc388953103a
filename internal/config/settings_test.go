package config

import (
	"testing"
	"time"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	return m[key], nil
}

func TestLoader_TypedAccessors(t *testing.T) {
	loader := NewLoader(mapSettings{
		"count":    "42",
		"flag":     "true",
		"name":     "custom",
		"interval": "90s",
		"days":     "7",
		"garbage":  "not-a-number",
	})

	if got := loader.Int("count", 1); got != 42 {
		t.Errorf("Int: expected 42, got %d", got)
	}
	if got := loader.Int("garbage", 5); got != 5 {
		t.Errorf("Int: expected fallback 5 for invalid value, got %d", got)
	}
	if got := loader.Int("missing", 9); got != 9 {
		t.Errorf("Int: expected fallback 9, got %d", got)
	}

	if !loader.Bool("flag", false) {
		t.Error("Bool: expected true")
	}
	if loader.Bool("name", false) {
		t.Error("Bool: non-true value should be false")
	}
	if !loader.Bool("missing", true) {
		t.Error("Bool: expected fallback true")
	}

	if got := loader.String("name", "default"); got != "custom" {
		t.Errorf("String: expected custom, got %q", got)
	}
	if got := loader.String("missing", "default"); got != "default" {
		t.Errorf("String: expected default, got %q", got)
	}

	if got := loader.Duration("interval", time.Minute); got != 90*time.Second {
		t.Errorf("Duration: expected 90s, got %v", got)
	}
	if got := loader.Duration("garbage", time.Minute); got != time.Minute {
		t.Errorf("Duration: expected fallback 1m, got %v", got)
	}

	if got := loader.DurationDays("days", 30); got != 7*24*time.Hour {
		t.Errorf("DurationDays: expected 168h, got %v", got)
	}
}
