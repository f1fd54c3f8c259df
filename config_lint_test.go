package lkcosmetics

import (
	"testing"
	"time"
)

func TestLint_ProductionConfigMinimalWarnings(t *testing.T) {
	cfg := ProductionConfig("https://api.lk-cosmetics.test/api/v1")
	codes := cfg.Lint().Codes()

	unwanted := []string{
		"insecure_base_url",
		"proactive_window_large",
		"refresh_timeout_exceeds_request",
		"storage_ephemeral",
		"events_disabled",
	}
	for _, code := range unwanted {
		if containsCode(codes, code) {
			t.Errorf("ProductionConfig should not produce warning %q", code)
		}
	}
}

func TestLint_DefaultConfigWarnsEphemeral(t *testing.T) {
	cfg := DefaultConfig()
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "storage_ephemeral") {
		t.Error("expected storage_ephemeral warning")
	}
	if containsCode(codes, "insecure_base_url") {
		t.Error("loopback http should not warn")
	}
}

func TestLint_InsecureBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://api.lk-cosmetics.test/api/v1"
	if !containsCode(cfg.Lint().Codes(), "insecure_base_url") {
		t.Error("expected insecure_base_url warning")
	}
}

func TestLint_LargeProactiveWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refresh.ProactiveWindow = 5 * time.Minute
	if !containsCode(cfg.Lint().Codes(), "proactive_window_large") {
		t.Error("expected proactive_window_large warning")
	}
}

func TestLint_RefreshTimeoutExceedsRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refresh.Timeout = 30 * time.Second
	if !containsCode(cfg.Lint().Codes(), "refresh_timeout_exceeds_request") {
		t.Error("expected refresh_timeout_exceeds_request warning")
	}
}

func TestLint_RedisWithoutTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = StorageRedis
	cfg.Storage.RedisAddr = "127.0.0.1:6379"
	if !containsCode(cfg.Lint().Codes(), "redis_no_ttl") {
		t.Error("expected redis_no_ttl warning")
	}
	cfg.Storage.RedisTTL = time.Hour
	if containsCode(cfg.Lint().Codes(), "redis_no_ttl") {
		t.Error("unexpected redis_no_ttl warning with TTL set")
	}
}

func TestLint_NoRoleGrants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Permission.RoleGrants = nil
	if !containsCode(cfg.Lint().Codes(), "no_role_grants") {
		t.Error("expected no_role_grants warning")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
