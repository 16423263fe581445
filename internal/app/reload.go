package app

import (
	"context"
	"strings"
	"time"

	"schedbot/internal/config"
	logx "schedbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live-reloadable parts of newCfg into the running
// components. Restart-only changes are logged and otherwise ignored.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	set, err := config.Resolve(newCfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("fields", strings.Join(ch.Restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.bot.SetSupportedGroups(set.SupportedGroups)
	a.svc.Apply(set.CacheTTL, set.CoalesceInflight)
	a.scraper.Apply(mapScrapeConfig(newCfg, set))

	a.mon.Apply(mapMemoryConfig(set))
	switch {
	case a.memOn && !set.MemoryEnabled:
		a.log.Info("memory monitor disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.mon.Stop(stopCtx)
		cancel()
	case !a.memOn && set.MemoryEnabled:
		a.log.Info("memory monitor enabled via config")
		a.mon.Start(ctx)
	}
	a.memOn = set.MemoryEnabled

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
