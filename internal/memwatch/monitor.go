// Package memwatch samples process memory on an interval and sheds cache
// entries when usage crosses a high watermark.
package memwatch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/internal/eventbus"
	logx "schedbot/pkg/logx"
)

// Sample is one reading of heap usage in bytes.
type Sample struct {
	Used  uint64
	Total uint64
}

// Ratio is Used/Total, or 0 when Total is unknown.
func (s Sample) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Total)
}

func (s Sample) UsedMB() float64  { return float64(s.Used) / (1 << 20) }
func (s Sample) TotalMB() float64 { return float64(s.Total) / (1 << 20) }

type Sampler interface {
	Sample() Sample
}

type SamplerFunc func() Sample

func (f SamplerFunc) Sample() Sample { return f() }

// RuntimeSampler reports live heap objects against heap memory currently
// obtained from the OS.
func RuntimeSampler() Sampler {
	return SamplerFunc(func() Sample {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		total := ms.HeapSys - ms.HeapReleased
		return Sample{Used: ms.HeapAlloc, Total: total}
	})
}

// Evictor is the part of the cache the monitor drives.
type Evictor interface {
	EvictExpired() int
	EvictOldestUntil(target int) int
	Len() int
	Cap() int
}

type Config struct {
	Interval time.Duration
	High     float64
	Low      float64
	// Target is the fraction of cache capacity kept after a pressure eviction.
	Target float64
}

type Action int

const (
	ActionNone Action = iota
	ActionPressure
	ActionRelief
)

func (a Action) String() string {
	switch a {
	case ActionPressure:
		return "pressure"
	case ActionRelief:
		return "relief"
	default:
		return "none"
	}
}

// Result describes one Check.
type Result struct {
	Sample  Sample
	Ratio   float64
	Action  Action
	Evicted int
}

type Monitor struct {
	sampler Sampler
	cache   Evictor
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	latched bool
	last    Sample
	c       *cron.Cron
	entry   cron.EntryID
	unbind  func() bool

	// serializes Check so two ticks never interleave on the latch
	checkMu sync.Mutex
}

// New builds a monitor. bus may be nil.
func New(cfg Config, sampler Sampler, cache Evictor, bus eventbus.Bus, log logx.Logger) *Monitor {
	if sampler == nil {
		sampler = RuntimeSampler()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		sampler: sampler,
		cache:   cache,
		bus:     bus,
		log:     log.With(logx.String("comp", "memwatch")),
		cfg:     cfg,
	}
}

// Start schedules Check every cfg.Interval until Stop is called or ctx
// ends. Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil {
		return
	}
	m.c = cron.New()
	m.entry = m.c.Schedule(cron.Every(m.cfg.Interval), cron.FuncJob(m.tick))
	m.c.Start()
	m.unbind = context.AfterFunc(ctx, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(stopCtx)
	})
	m.log.Info("monitor started",
		logx.Duration("interval", m.cfg.Interval),
		logx.Float64("high", m.cfg.High),
		logx.Float64("low", m.cfg.Low),
	)
}

// Stop halts the schedule and waits for a running check, bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	c, unbind := m.c, m.unbind
	m.c, m.unbind = nil, nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	if unbind != nil {
		unbind()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	m.log.Info("monitor stopped")
}

// Apply swaps thresholds and reschedules if the interval changed.
func (m *Monitor) Apply(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.cfg
	m.cfg = cfg
	if m.c != nil && old.Interval != cfg.Interval {
		m.c.Remove(m.entry)
		m.entry = m.c.Schedule(cron.Every(cfg.Interval), cron.FuncJob(m.tick))
		m.log.Info("interval changed", logx.Duration("from", old.Interval), logx.Duration("to", cfg.Interval))
	}
}

func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("check panicked", logx.Any("panic", r))
		}
	}()
	m.Check()
}

// Check samples once and acts on the watermarks. The latch is set on the
// first reading above High and cleared on the first reading below Low;
// eviction happens only when the latch is set.
func (m *Monitor) Check() Result {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	s := m.sampler.Sample()
	ratio := s.Ratio()

	m.mu.Lock()
	cfg := m.cfg
	m.last = s
	latched := m.latched
	m.mu.Unlock()

	res := Result{Sample: s, Ratio: ratio}

	switch {
	case ratio > cfg.High && !latched:
		m.setLatched(true)
		res.Action = ActionPressure
		res.Evicted = m.shed(cfg)
		m.log.Warn("memory pressure",
			logx.Float64("ratio", ratio),
			logx.Float64("used_mb", s.UsedMB()),
			logx.Float64("total_mb", s.TotalMB()),
			logx.Int("evicted", res.Evicted),
			logx.Int("cache_size", m.cache.Len()),
		)
		m.publish(eventbus.MemoryPressure, res)
	case ratio < cfg.Low && latched:
		m.setLatched(false)
		res.Action = ActionRelief
		m.log.Info("memory pressure cleared", logx.Float64("ratio", ratio))
		m.publish(eventbus.MemoryRelief, res)
	}

	if n, c := m.cache.Len(), m.cache.Cap(); c > 0 && n*5 > c*4 {
		m.log.Warn("cache near capacity", logx.Int("size", n), logx.Int("capacity", c))
	}
	return res
}

func (m *Monitor) shed(cfg Config) int {
	target := int(float64(m.cache.Cap()) * cfg.Target)
	n := m.cache.EvictExpired()
	return n + m.cache.EvictOldestUntil(target)
}

func (m *Monitor) setLatched(v bool) {
	m.mu.Lock()
	m.latched = v
	m.mu.Unlock()
}

func (m *Monitor) publish(typ string, res Result) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: res})
}

// Latched reports whether the monitor is inside a pressure episode.
func (m *Monitor) Latched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latched
}

// Last is the most recent sample, taken fresh if no check has run yet.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	s := m.last
	m.mu.Unlock()
	if s.Total == 0 {
		return m.sampler.Sample()
	}
	return s
}
