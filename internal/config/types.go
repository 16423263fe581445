package config

import "time"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Renderer RendererConfig `json:"renderer"`
	Fetch    FetchConfig    `json:"fetch"`
	Cache    CacheConfig    `json:"cache"`
	Memory   MemoryConfig   `json:"memory"`
	Scraper  ScraperConfig  `json:"scraper"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// SupportedGroups restricts accepted group codes. Empty accepts any.
	SupportedGroups []string `json:"supported_groups,omitempty"`
	// Workers is the number of update dispatch workers.
	Workers int `json:"workers,omitempty"`
	// HandlerTimeout bounds a single command or callback handler.
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RendererConfig controls the headless browser pool.
type RendererConfig struct {
	PoolSize int `json:"pool_size"`
	// ExecPath overrides the browser binary lookup.
	ExecPath  string `json:"exec_path,omitempty"`
	Headless  *bool  `json:"headless,omitempty"`
	NoSandbox bool   `json:"no_sandbox,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// LaunchTimeout bounds the start of a single browser.
	LaunchTimeout string `json:"launch_timeout,omitempty"`
}

// FetchConfig controls the fetch concurrency gate.
type FetchConfig struct {
	MaxConcurrent int `json:"max_concurrent"`
	QueueSize     int `json:"queue_size,omitempty"`
	// CoalesceInflight shares one scrape between concurrent misses of the same key.
	CoalesceInflight bool `json:"coalesce_inflight,omitempty"`
}

type CacheConfig struct {
	Capacity int `json:"capacity"`
	// TTL is a Go duration string.
	TTL string `json:"ttl"`
}

type MemoryConfig struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	CheckInterval  string  `json:"check_interval"`
	HighWatermark  float64 `json:"high_watermark"`
	LowWatermark   float64 `json:"low_watermark"`
	PressureTarget float64 `json:"pressure_target,omitempty"`
}

// ScraperConfig holds the site-specific navigation settings.
type ScraperConfig struct {
	BaseURL           string `json:"base_url,omitempty"`
	FrameSelector     string `json:"frame_selector,omitempty"`
	EventSelector     string `json:"event_selector,omitempty"`
	NavigationTimeout string `json:"navigation_timeout,omitempty"`
	FrameDwell        string `json:"frame_dwell,omitempty"`
	RenderDwell       string `json:"render_dwell,omitempty"`
}

// StorageConfig selects where remembered groups are kept.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./schedbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// Defaults used when a field is omitted or zero.
const (
	DefaultPoolSize          = 4
	DefaultMaxConcurrent     = 16
	DefaultQueueSize         = 256
	DefaultCacheCapacity     = 800
	DefaultCacheTTL          = 2 * time.Hour
	DefaultCheckInterval     = 30 * time.Second
	DefaultHighWatermark     = 0.6
	DefaultLowWatermark      = 0.4
	DefaultPressureTarget    = 0.7
	DefaultNavigationTimeout = 30 * time.Second
	DefaultFrameDwell        = 3 * time.Second
	DefaultRenderDwell       = 5 * time.Second
	DefaultLaunchTimeout     = 30 * time.Second
	DefaultPollTimeout       = 10 * time.Second
	DefaultHandlerTimeout    = 90 * time.Second
	DefaultTelegramWorkers   = 8

	DefaultBaseURL       = "https://psy-msu.ru/educat/raspisanie-uchebnykh-zanyatiy/schedule_group/"
	DefaultFrameSelector = `iframe[src*="calendar.yandex.ru"]`
	DefaultEventSelector = `[class*='GridEvent__wrap']`
	DefaultStorageDriver = "file"
	DefaultStoragePath   = "./user_groups.json"
)

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(c *Config) {
	if c.Renderer.PoolSize == 0 {
		c.Renderer.PoolSize = DefaultPoolSize
	}
	if c.Fetch.MaxConcurrent == 0 {
		c.Fetch.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Fetch.QueueSize == 0 {
		c.Fetch.QueueSize = DefaultQueueSize
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
	if c.Memory.HighWatermark == 0 {
		c.Memory.HighWatermark = DefaultHighWatermark
	}
	if c.Memory.LowWatermark == 0 {
		c.Memory.LowWatermark = DefaultLowWatermark
	}
	if c.Memory.PressureTarget == 0 {
		c.Memory.PressureTarget = DefaultPressureTarget
	}
	if c.Scraper.BaseURL == "" {
		c.Scraper.BaseURL = DefaultBaseURL
	}
	if c.Scraper.FrameSelector == "" {
		c.Scraper.FrameSelector = DefaultFrameSelector
	}
	if c.Scraper.EventSelector == "" {
		c.Scraper.EventSelector = DefaultEventSelector
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" && c.Storage.Driver == DefaultStorageDriver {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Telegram.Workers == 0 {
		c.Telegram.Workers = DefaultTelegramWorkers
	}
}

// MemoryEnabled reports whether the memory monitor should run (default true).
func (c MemoryConfig) MemoryEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HeadlessEnabled reports whether the browser runs headless (default true).
func (c RendererConfig) HeadlessEnabled() bool {
	return c.Headless == nil || *c.Headless
}
