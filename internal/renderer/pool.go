// Package renderer owns the long-lived headless browser instances used to
// render schedule pages.
//
// The pool hands out handles in strict rotation and does no admission
// control; callers bound concurrency themselves. A handle may be shared by
// several tasks at once, each working in its own Page.
package renderer

import (
	"context"
	"errors"
	"sync"
	"time"

	logx "schedbot/pkg/logx"
)

var (
	// ErrPoolExhausted means no handle could be started.
	ErrPoolExhausted = errors.New("renderer: no usable browser instances")
	ErrPoolClosed    = errors.New("renderer: pool is shut down")
)

// Handle is one long-lived browser instance.
type Handle interface {
	ID() int
	// NewPage opens a transient page. The caller must Close it.
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single tab on a Handle.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Property returns a JS property (e.g. "src") of the first element
	// matching selector, waiting for the element to appear.
	Property(ctx context.Context, selector, prop string) (string, error)
	// Attributes returns the named attribute of every element matching
	// selector, skipping elements where it is empty.
	Attributes(ctx context.Context, selector, attr string) ([]string, error)
	Close() error
}

// Launcher starts handles during warm-up.
type Launcher interface {
	Launch(ctx context.Context, id int) (Handle, error)
}

type LauncherFunc func(ctx context.Context, id int) (Handle, error)

func (f LauncherFunc) Launch(ctx context.Context, id int) (Handle, error) { return f(ctx, id) }

type Config struct {
	Size int
	// LaunchTimeout bounds each handle's start. Zero means no bound.
	LaunchTimeout time.Duration
}

type Pool struct {
	log logx.Logger

	mu      sync.Mutex
	handles []Handle
	cursor  int
	closed  bool

	requested int
}

// New starts cfg.Size handles in parallel and keeps those that came up,
// in id order. It fails with ErrPoolExhausted only when none did.
func New(ctx context.Context, cfg Config, l Launcher, log logx.Logger) (*Pool, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "renderer.pool"))
	size := max(cfg.Size, 1)

	started := make([]Handle, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lctx := ctx
			if cfg.LaunchTimeout > 0 {
				var cancel context.CancelFunc
				lctx, cancel = context.WithTimeout(ctx, cfg.LaunchTimeout)
				defer cancel()
			}
			t0 := time.Now()
			h, err := l.Launch(lctx, i)
			if err != nil {
				log.Warn("browser failed to start", logx.Int("id", i), logx.Err(err))
				return
			}
			log.Info("browser started", logx.Int("id", i), logx.Duration("took", time.Since(t0)))
			started[i] = h
		}()
	}
	wg.Wait()

	p := &Pool{log: log, requested: size}
	for _, h := range started {
		if h != nil {
			p.handles = append(p.handles, h)
		}
	}
	if len(p.handles) == 0 {
		return nil, ErrPoolExhausted
	}
	if len(p.handles) < size {
		log.Warn("renderer pool running degraded", logx.Int("ready", len(p.handles)), logx.Int("requested", size))
	} else {
		log.Info("renderer pool ready", logx.Int("size", len(p.handles)))
	}
	return p, nil
}

// AcquireNext returns the next handle in rotation. It never blocks.
func (p *Pool) AcquireNext() (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if len(p.handles) == 0 {
		return nil, ErrPoolExhausted
	}
	h := p.handles[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.handles)
	return h, nil
}

// Size is the number of usable handles.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return len(p.handles)
}

// Shutdown closes every handle concurrently. Close errors are logged and
// dropped so one stuck browser does not hold up the rest.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handles := p.handles
	p.handles = nil
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Close(ctx); err != nil {
				p.log.Warn("browser close failed", logx.Int("id", h.ID()), logx.Err(err))
				return
			}
			p.log.Debug("browser closed", logx.Int("id", h.ID()))
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("renderer pool shut down", logx.Int("closed", len(handles)))
	case <-ctx.Done():
		p.log.Warn("renderer pool shutdown timed out", logx.Err(ctx.Err()))
	}
}
