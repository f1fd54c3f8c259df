package lkcosmetics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lkconsole.yaml")
	data := `
api:
  base_url: https://api.lk-cosmetics.test/api/v1
  require_https: true
  timeout: 5s
storage:
  backend: redis
  redis_addr: 127.0.0.1:6379
  redis_ttl: 12h
refresh:
  proactive_window: 20s
permission:
  role_grants:
    Admin: [users.read, users.write]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.lk-cosmetics.test/api/v1", cfg.API.BaseURL)
	assert.True(t, cfg.API.RequireHTTPS)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Storage.RedisTTL)
	assert.Equal(t, 20*time.Second, cfg.Refresh.ProactiveWindow)
	assert.Equal(t, []string{"users.read", "users.write"}, cfg.Permission.RoleGrants["Admin"])

	// untouched keys keep their defaults
	assert.Equal(t, "/auth/refresh/", cfg.API.RefreshPath)
	assert.Equal(t, "csrftoken", cfg.API.CSRFCookieName)
	assert.Equal(t, "/login", cfg.Routes.LoginPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LKC_API_BASE_URL":              "http://10.0.0.5:8000/api/v1",
		"LKC_API_TIMEOUT":               "3s",
		"LKC_STORAGE_BACKEND":           "file",
		"LKC_STORAGE_FILE":              "/tmp/lkc.json",
		"LKC_REDIS_DB":                  "2",
		"LKC_REFRESH_PROACTIVE_WINDOW":  "15s",
		"LKC_EVENTS_ENABLED":            "true",
		"LKC_EVENTS_CRITICAL":           "logout, session_expired,",
		"LKC_ROUTES_SHOW_ACCESS_DENIED": "false",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg, lookup))

	assert.Equal(t, "http://10.0.0.5:8000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/lkc.json", cfg.Storage.FilePath)
	assert.Equal(t, 2, cfg.Storage.RedisDB)
	assert.Equal(t, 15*time.Second, cfg.Refresh.ProactiveWindow)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, []string{EventLogout, EventSessionExpired}, cfg.Events.Critical)
	assert.False(t, cfg.Routes.ShowAccessDenied)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	env := map[string]string{
		"LKC_API_TIMEOUT":     "soon",
		"LKC_METRICS_ENABLED": "maybe",
	}
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LKC_API_TIMEOUT")
	assert.Contains(t, err.Error(), "LKC_METRICS_ENABLED")
	assert.Equal(t, DefaultConfig().API.Timeout, cfg.API.Timeout)
}
