package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto c. A set but malformed
// variable is an error naming it.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	intVar := func(key string, dst *int) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: want positive integer, got %q", key, v)
		}
		*dst = n
		return nil
	}
	secondsVar := func(key string, dst *string) error {
		var n int
		if err := intVar(key, &n); err != nil {
			return err
		}
		if n > 0 {
			*dst = strconv.Itoa(n) + "s"
		}
		return nil
	}
	ratioVar := func(key string, dst *float64) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			return fmt.Errorf("%s: want ratio in (0,1), got %q", key, v)
		}
		*dst = f
		return nil
	}

	if v, ok := get("BOT_TOKEN"); ok {
		c.Telegram.Token = v
	}
	steps := []func() error{
		func() error { return intVar("RENDERER_POOL_SIZE", &c.Renderer.PoolSize) },
		func() error { return intVar("MAX_CONCURRENT_FETCHES", &c.Fetch.MaxConcurrent) },
		func() error { return intVar("CACHE_CAPACITY", &c.Cache.Capacity) },
		func() error { return secondsVar("CACHE_TTL_SECONDS", &c.Cache.TTL) },
		func() error { return secondsVar("MEMORY_CHECK_INTERVAL_SECONDS", &c.Memory.CheckInterval) },
		func() error { return ratioVar("MEMORY_HIGH_WATERMARK_RATIO", &c.Memory.HighWatermark) },
		func() error { return ratioVar("MEMORY_LOW_WATERMARK_RATIO", &c.Memory.LowWatermark) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
