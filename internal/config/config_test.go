package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadClampsInvalidWindows(t *testing.T) {
	t.Setenv("EXPIRY_WINDOW_DAYS", "-5")
	t.Setenv("ALERT_CACHE_TTL_SECONDS", "bogus")

	cfg := Load()
	if cfg.ExpiryWindowDays != 30 {
		t.Fatalf("expected expiry window fallback 30, got %d", cfg.ExpiryWindowDays)
	}
	if cfg.AlertCacheTTLSeconds != 60 {
		t.Fatalf("expected alert cache TTL fallback 60, got %d", cfg.AlertCacheTTLSeconds)
	}
}
