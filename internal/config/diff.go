package config

import (
	"reflect"

	logx "schedbot/pkg/logx"
)

// Change summarises a reload.
type Change struct {
	// Sections lists changed top-level sections in declaration order.
	Sections []string
	// Restart lists changed fields that only take effect after a restart.
	Restart []string
	// Fields are safe to log; secrets are reduced to "set" flags.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	section := func(name string, a, b any, fields ...logx.Field) bool {
		if reflect.DeepEqual(a, b) {
			return false
		}
		ch.Sections = append(ch.Sections, name)
		ch.Fields = append(ch.Fields, fields...)
		return true
	}
	restart := func(path string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			ch.Restart = append(ch.Restart, path)
		}
	}

	if section("telegram", oldCfg.Telegram, newCfg.Telegram,
		logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		logx.Int("telegram.supported_groups", len(newCfg.Telegram.SupportedGroups)),
	) {
		restart("telegram.token", oldCfg.Telegram.Token, newCfg.Telegram.Token)
		restart("telegram.poll_timeout", oldCfg.Telegram.PollTimeout, newCfg.Telegram.PollTimeout)
		restart("telegram.workers", oldCfg.Telegram.Workers, newCfg.Telegram.Workers)
	}
	section("logging", oldCfg.Logging, newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
	)
	if section("renderer", oldCfg.Renderer, newCfg.Renderer, logx.Int("renderer.pool_size", newCfg.Renderer.PoolSize)) {
		ch.Restart = append(ch.Restart, "renderer")
	}
	if section("fetch", oldCfg.Fetch, newCfg.Fetch, logx.Int("fetch.max_concurrent", newCfg.Fetch.MaxConcurrent)) {
		ch.Restart = append(ch.Restart, "fetch")
	}
	if section("cache", oldCfg.Cache, newCfg.Cache,
		logx.Int("cache.capacity", newCfg.Cache.Capacity),
		logx.String("cache.ttl", newCfg.Cache.TTL),
	) {
		restart("cache.capacity", oldCfg.Cache.Capacity, newCfg.Cache.Capacity)
	}
	section("memory", oldCfg.Memory, newCfg.Memory,
		logx.String("memory.check_interval", newCfg.Memory.CheckInterval),
		logx.Float64("memory.high_watermark", newCfg.Memory.HighWatermark),
		logx.Float64("memory.low_watermark", newCfg.Memory.LowWatermark),
	)
	if section("scraper", oldCfg.Scraper, newCfg.Scraper) {
		restart("scraper.base_url", oldCfg.Scraper.BaseURL, newCfg.Scraper.BaseURL)
	}
	if section("storage", oldCfg.Storage, newCfg.Storage, logx.String("storage.driver", newCfg.Storage.Driver)) {
		ch.Restart = append(ch.Restart, "storage")
	}
	return ch
}
