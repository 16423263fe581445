package app

import (
	"strings"

	"schedbot/internal/config"
	"schedbot/internal/memwatch"
	"schedbot/internal/renderer"
	"schedbot/internal/schedule"
	"schedbot/internal/scrape"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapLauncher(cfg *config.Config, log logx.Logger) renderer.ChromeLauncher {
	return renderer.ChromeLauncher{
		ExecPath:  strings.TrimSpace(cfg.Renderer.ExecPath),
		Headless:  cfg.Renderer.HeadlessEnabled(),
		NoSandbox: cfg.Renderer.NoSandbox,
		UserAgent: cfg.Renderer.UserAgent,
		Log:       log,
	}
}

func mapScrapeConfig(cfg *config.Config, s config.Settings) scrape.Config {
	return scrape.Config{
		BaseURL:           cfg.Scraper.BaseURL,
		FrameSelector:     cfg.Scraper.FrameSelector,
		EventSelector:     cfg.Scraper.EventSelector,
		NavigationTimeout: s.NavigationTimeout,
		FrameDwell:        s.FrameDwell,
		RenderDwell:       s.RenderDwell,
	}
}

func mapScheduleConfig(s config.Settings) schedule.Config {
	return schedule.Config{
		CacheCapacity: s.CacheCapacity,
		CacheTTL:      s.CacheTTL,
		MaxConcurrent: s.MaxConcurrent,
		QueueSize:     s.QueueSize,
		Coalesce:      s.CoalesceInflight,
	}
}

func mapMemoryConfig(s config.Settings) memwatch.Config {
	return memwatch.Config{
		Interval: s.CheckInterval,
		High:     s.HighWatermark,
		Low:      s.LowWatermark,
		Target:   s.PressureTarget,
	}
}

func mapStorageConfig(cfg *config.Config, s config.Settings) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: s.StorageBusyTimeout,
	}
}
