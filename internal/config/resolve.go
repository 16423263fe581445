package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Settings is Config with defaults applied and durations parsed.
type Settings struct {
	PollTimeout     time.Duration
	HandlerTimeout  time.Duration
	TelegramWorkers int
	SupportedGroups []string

	PoolSize      int
	LaunchTimeout time.Duration

	MaxConcurrent    int
	QueueSize        int
	CoalesceInflight bool

	CacheCapacity int
	CacheTTL      time.Duration

	MemoryEnabled  bool
	CheckInterval  time.Duration
	HighWatermark  float64
	LowWatermark   float64
	PressureTarget float64

	NavigationTimeout time.Duration
	FrameDwell        time.Duration
	RenderDwell       time.Duration

	StorageBusyTimeout time.Duration
}

// Resolve validates c and returns parsed settings. c must already have
// defaults applied.
func Resolve(c *Config) (Settings, error) {
	if c == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	positive := func(path string, n int) int {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be > 0", path))
		}
		return n
	}

	s.PollTimeout = dur("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	s.HandlerTimeout = dur("telegram.handler_timeout", c.Telegram.HandlerTimeout, DefaultHandlerTimeout)
	s.TelegramWorkers = positive("telegram.workers", c.Telegram.Workers)
	for _, g := range c.Telegram.SupportedGroups {
		if g = strings.TrimSpace(g); g != "" {
			s.SupportedGroups = append(s.SupportedGroups, g)
		}
	}

	s.PoolSize = positive("renderer.pool_size", c.Renderer.PoolSize)
	s.LaunchTimeout = dur("renderer.launch_timeout", c.Renderer.LaunchTimeout, DefaultLaunchTimeout)

	s.MaxConcurrent = positive("fetch.max_concurrent", c.Fetch.MaxConcurrent)
	s.QueueSize = positive("fetch.queue_size", c.Fetch.QueueSize)
	s.CoalesceInflight = c.Fetch.CoalesceInflight

	s.CacheCapacity = positive("cache.capacity", c.Cache.Capacity)
	s.CacheTTL = dur("cache.ttl", c.Cache.TTL, DefaultCacheTTL)

	s.MemoryEnabled = c.Memory.MemoryEnabled()
	s.CheckInterval = dur("memory.check_interval", c.Memory.CheckInterval, DefaultCheckInterval)
	s.HighWatermark = c.Memory.HighWatermark
	s.LowWatermark = c.Memory.LowWatermark
	s.PressureTarget = c.Memory.PressureTarget
	for path, v := range map[string]float64{
		"memory.high_watermark":  s.HighWatermark,
		"memory.low_watermark":   s.LowWatermark,
		"memory.pressure_target": s.PressureTarget,
	} {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Errorf("%s: must be in (0,1), got %v", path, v))
		}
	}
	if s.LowWatermark >= s.HighWatermark {
		errs = append(errs, fmt.Errorf("memory.low_watermark (%v) must be below memory.high_watermark (%v)", s.LowWatermark, s.HighWatermark))
	}

	s.NavigationTimeout = dur("scraper.navigation_timeout", c.Scraper.NavigationTimeout, DefaultNavigationTimeout)
	s.FrameDwell = dur("scraper.frame_dwell", c.Scraper.FrameDwell, DefaultFrameDwell)
	s.RenderDwell = dur("scraper.render_dwell", c.Scraper.RenderDwell, DefaultRenderDwell)
	if !strings.HasPrefix(c.Scraper.BaseURL, "http://") && !strings.HasPrefix(c.Scraper.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("scraper.base_url: want http(s) URL, got %q", c.Scraper.BaseURL))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", c.Storage.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	s.StorageBusyTimeout = dur("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)

	return s, errors.Join(errs...)
}
