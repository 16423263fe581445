package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParse_DefaultsFromEmptyJSON(t *testing.T) {
	m := NewConfigManager(writeFile(t, "c.json", `{"telegram":{"token":"x"}}`))
	m.SetEnv(envMap(nil))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.PoolSize != 4 || s.MaxConcurrent != 16 || s.CacheCapacity != 800 {
		t.Fatalf("unexpected sizes: %+v", s)
	}
	if s.CacheTTL != 2*time.Hour || s.CheckInterval != 30*time.Second {
		t.Fatalf("unexpected durations: ttl=%v interval=%v", s.CacheTTL, s.CheckInterval)
	}
	if s.HighWatermark != 0.6 || s.LowWatermark != 0.4 || s.PressureTarget != 0.7 {
		t.Fatalf("unexpected watermarks: %+v", s)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
}

func TestParse_YAML(t *testing.T) {
	body := `
telegram:
  token: abc
cache:
  capacity: 10
  ttl: 90s
fetch:
  max_concurrent: 3
`
	m := NewConfigManager(writeFile(t, "c.yaml", body))
	m.SetEnv(envMap(nil))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Cache.Capacity != 10 || cfg.Cache.TTL != "90s" || cfg.Fetch.MaxConcurrent != 3 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	m := NewConfigManager(writeFile(t, "c.json", `{"cache":{"capacty":5}}`))
	m.SetEnv(envMap(nil))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "all set",
			env: map[string]string{
				"BOT_TOKEN":                     "tok",
				"RENDERER_POOL_SIZE":            "2",
				"MAX_CONCURRENT_FETCHES":        "5",
				"CACHE_CAPACITY":                "50",
				"CACHE_TTL_SECONDS":             "60",
				"MEMORY_CHECK_INTERVAL_SECONDS": "15",
				"MEMORY_HIGH_WATERMARK_RATIO":   "0.8",
				"MEMORY_LOW_WATERMARK_RATIO":    "0.5",
			},
			check: func(t *testing.T, c *Config) {
				if c.Telegram.Token != "tok" || c.Renderer.PoolSize != 2 || c.Fetch.MaxConcurrent != 5 || c.Cache.Capacity != 50 {
					t.Fatalf("ints not applied: %+v", c)
				}
				if c.Cache.TTL != "60s" || c.Memory.CheckInterval != "15s" {
					t.Fatalf("durations not applied: %+v", c)
				}
				if c.Memory.HighWatermark != 0.8 || c.Memory.LowWatermark != 0.5 {
					t.Fatalf("ratios not applied: %+v", c.Memory)
				}
			},
		},
		{name: "bad int", env: map[string]string{"CACHE_CAPACITY": "lots"}, wantErr: "CACHE_CAPACITY"},
		{name: "zero int", env: map[string]string{"RENDERER_POOL_SIZE": "0"}, wantErr: "RENDERER_POOL_SIZE"},
		{name: "bad ratio", env: map[string]string{"MEMORY_HIGH_WATERMARK_RATIO": "1.5"}, wantErr: "MEMORY_HIGH_WATERMARK_RATIO"},
		{name: "empty ignored", env: map[string]string{"CACHE_CAPACITY": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			err := ApplyEnv(&c, envMap(tt.env))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tt.check != nil {
				tt.check(t, &c)
			}
		})
	}
}

func TestResolve_RejectsInvertedWatermarks(t *testing.T) {
	var c Config
	ApplyDefaults(&c)
	c.Memory.HighWatermark = 0.3
	c.Memory.LowWatermark = 0.5
	if _, err := Resolve(&c); err == nil || !strings.Contains(err.Error(), "low_watermark") {
		t.Fatalf("err = %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	var a Config
	ApplyDefaults(&a)
	b := a
	b.Cache.TTL = "1h"
	b.Renderer.PoolSize = 8

	ch := SummarizeConfigChange(&a, &b)
	if strings.Join(ch.Sections, ",") != "renderer,cache" {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if strings.Join(ch.Restart, ",") != "renderer" {
		t.Fatalf("restart = %v", ch.Restart)
	}
	if !SummarizeConfigChange(&a, &a).Empty() {
		t.Fatalf("identical configs should produce no change")
	}
}

func TestReload_PublishesOnlyOnChange(t *testing.T) {
	p := writeFile(t, "c.json", `{"cache":{"ttl":"1h"}}`)
	m := NewConfigManager(p)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if m.reload(context.Background()) {
		t.Fatalf("unchanged file should not publish")
	}
	if err := os.WriteFile(p, []byte(`{"cache":{"ttl":"30m"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !m.reload(context.Background()) {
		t.Fatalf("changed file should publish")
	}
	got := <-sub
	if got.Cache.TTL != "30m" || m.Get().Cache.TTL != "30m" {
		t.Fatalf("unexpected published cfg: %+v", got.Cache)
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error { return os.ErrInvalid })
	_ = os.WriteFile(p, []byte(`{"cache":{"ttl":"10m"}}`), 0o644)
	if m.reload(context.Background()) {
		t.Fatalf("validator rejection should not publish")
	}
	if m.Get().Cache.TTL != "30m" {
		t.Fatalf("rejected config was committed")
	}
}
