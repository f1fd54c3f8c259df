package lkcosmetics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a YAML configuration on top of DefaultConfig. An empty
// path or a missing file yields DefaultConfig unchanged.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EnvLookup matches os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// ApplyEnv overlays LKC_* environment variables onto cfg. A nil lookup uses
// os.LookupEnv. Unparseable values are reported with the variable name.
func ApplyEnv(cfg *Config, lookup EnvLookup) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	list := func(key string, dst *[]string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}

	str("LKC_API_BASE_URL", &cfg.API.BaseURL)
	dur("LKC_API_TIMEOUT", &cfg.API.Timeout)
	boolean("LKC_API_REQUIRE_HTTPS", &cfg.API.RequireHTTPS)

	str("LKC_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("LKC_STORAGE_FILE", &cfg.Storage.FilePath)
	str("LKC_REDIS_ADDR", &cfg.Storage.RedisAddr)
	integer("LKC_REDIS_DB", &cfg.Storage.RedisDB)
	str("LKC_REDIS_KEY", &cfg.Storage.RedisKey)
	dur("LKC_REDIS_TTL", &cfg.Storage.RedisTTL)

	dur("LKC_REFRESH_TIMEOUT", &cfg.Refresh.Timeout)
	dur("LKC_REFRESH_PROACTIVE_WINDOW", &cfg.Refresh.ProactiveWindow)
	boolean("LKC_REFRESH_HYDRATE_PROFILE", &cfg.Refresh.HydrateProfile)

	boolean("LKC_ROUTES_SHOW_ACCESS_DENIED", &cfg.Routes.ShowAccessDenied)

	boolean("LKC_EVENTS_ENABLED", &cfg.Events.Enabled)
	list("LKC_EVENTS_CRITICAL", &cfg.Events.Critical)
	boolean("LKC_METRICS_ENABLED", &cfg.Metrics.Enabled)

	return errors.Join(errs...)
}
