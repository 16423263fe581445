package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	logx "schedbot/pkg/logx"
)

// ChromeLauncher starts headless Chrome instances through chromedp.
type ChromeLauncher struct {
	ExecPath  string
	Headless  bool
	NoSandbox bool
	UserAgent string
	Log       logx.Logger
}

func (l ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
	)
	if l.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	return opts
}

// Launch starts one browser. The browser outlives ctx; ctx only bounds the
// start-up.
func (l ChromeLauncher) Launch(ctx context.Context, id int) (Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser and its first target.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser %d: %w", id, err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser %d: %w", id, ctx.Err())
	}

	log := l.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &chromeHandle{
		id:          id,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		log:         log.With(logx.String("comp", "renderer.chrome"), logx.Int("browser", id)),
	}, nil
}

type chromeHandle struct {
	id          int
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         logx.Logger
	closeOnce   sync.Once
	closeErr    error
}

func (h *chromeHandle) ID() int { return h.id }

func (h *chromeHandle) NewPage(ctx context.Context) (Page, error) {
	if err := h.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser %d closed: %w", h.id, err)
	}
	// A context derived from the browser context opens a new tab. The first
	// Run binds the tab's event loop to its ctx, so it must be tabCtx itself.
	tabCtx, cancel := chromedp.NewContext(h.ctx)
	p := &chromePage{ctx: tabCtx, cancel: cancel}
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = errors.Join(ctx.Err(), err)
		}
		_ = p.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close shuts the browser down gracefully, then tears down the allocator.
func (h *chromeHandle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(h.ctx) }()
		select {
		case h.closeErr = <-done:
		case <-ctx.Done():
			h.closeErr = ctx.Err()
		}
		h.cancel()
		h.allocCancel()
	})
	return h.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// run executes actions on the open tab, aborting when the caller's ctx ends.
// Cancelling rctx only aborts these actions; the tab keeps running on p.ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Property(ctx context.Context, selector, prop string) (string, error) {
	var val string
	if err := p.run(ctx, chromedp.JavascriptAttribute(selector, prop, &val, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if val == "" {
		return "", fmt.Errorf("%s: property %q is empty", selector, prop)
	}
	return val, nil
}

func (p *chromePage) Attributes(ctx context.Context, selector, attr string) ([]string, error) {
	sel, _ := json.Marshal(selector)
	name, _ := json.Marshal(attr)
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.getAttribute(%s) || "").filter(Boolean)`, sel, name)
	var out []string
	if err := p.run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the tab. The browser stays up.
func (p *chromePage) Close() error {
	var err error
	p.once.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
	})
	return err
}
