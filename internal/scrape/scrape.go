// Package scrape drives a renderer page through the schedule site and turns
// the rendered calendar into entries.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"schedbot/internal/renderer"
	"schedbot/internal/schedule"
	logx "schedbot/pkg/logx"
)

// NavigationError means a page could not be opened or loaded in time.
type NavigationError struct {
	Step string
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("navigation (%s): %v", e.Step, e.Err)
	}
	return fmt.Sprintf("navigation (%s) %s: %v", e.Step, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError means the page loaded but did not have the expected shape.
type ExtractionError struct {
	What string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "extraction: " + e.What
	}
	return fmt.Sprintf("extraction: %s: %v", e.What, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type Config struct {
	// BaseURL is joined with the group code and a trailing slash.
	BaseURL           string
	FrameSelector     string
	EventSelector     string
	NavigationTimeout time.Duration
	// FrameDwell is waited after the group page loads, RenderDwell after
	// the calendar loads. The site gives no readiness signal.
	FrameDwell  time.Duration
	RenderDwell time.Duration
}

type Orchestrator struct {
	cfg atomic.Pointer[Config]
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{log: log.With(logx.String("comp", "scrape"))}
	o.Apply(cfg)
	return o
}

// Apply swaps the configuration for subsequent scrapes.
func (o *Orchestrator) Apply(cfg Config) {
	o.cfg.Store(&cfg)
}

// GroupURL is the schedule page for group.
func (o *Orchestrator) GroupURL(group string) string {
	base := o.cfg.Load().BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(group) + "/"
}

// Scrape loads the schedule for group on date (YYYY-MM-DD) using a fresh
// page on h. The page is closed on every path; h is left open.
func (o *Orchestrator) Scrape(ctx context.Context, h renderer.Handle, group, date string) ([]schedule.Entry, error) {
	cfg := *o.cfg.Load()
	log := o.log.With(logx.Int("browser", h.ID()), logx.String("group", group), logx.String("date", date))

	page, err := h.NewPage(ctx)
	if err != nil {
		return nil, &NavigationError{Step: "open page", Err: err}
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("page close failed", logx.Err(err))
		}
	}()

	mainURL := o.GroupURL(group)
	if err := o.navigate(ctx, page, cfg, mainURL); err != nil {
		return nil, &NavigationError{Step: "group page", URL: mainURL, Err: err}
	}
	if err := sleep(ctx, cfg.FrameDwell); err != nil {
		return nil, &NavigationError{Step: "group page", URL: mainURL, Err: err}
	}

	src, err := timed(ctx, cfg.NavigationTimeout, func(c context.Context) (string, error) {
		return page.Property(c, cfg.FrameSelector, "src")
	})
	if err != nil {
		return nil, &ExtractionError{What: "calendar frame not found", Err: err}
	}
	frameURL := RewriteShowDate(src, date)
	log.Debug("calendar frame resolved", logx.String("url", frameURL))

	if err := o.navigate(ctx, page, cfg, frameURL); err != nil {
		return nil, &NavigationError{Step: "calendar", URL: frameURL, Err: err}
	}
	if err := sleep(ctx, cfg.RenderDwell); err != nil {
		return nil, &NavigationError{Step: "calendar", URL: frameURL, Err: err}
	}

	titles, err := timed(ctx, cfg.NavigationTimeout, func(c context.Context) ([]string, error) {
		return page.Attributes(c, cfg.EventSelector, "title")
	})
	if err != nil {
		return nil, &ExtractionError{What: "reading events", Err: err}
	}
	entries := ParseTitles(titles)
	log.Debug("events parsed", logx.Int("events", len(titles)), logx.Int("entries", len(entries)))
	return entries, nil
}

func (o *Orchestrator) navigate(ctx context.Context, page renderer.Page, cfg Config, u string) error {
	_, err := timed(ctx, cfg.NavigationTimeout, func(c context.Context) (struct{}, error) {
		return struct{}{}, page.Navigate(c, u)
	})
	return err
}

func timed[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
