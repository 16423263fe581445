package schedule

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"schedbot/internal/cache"
	"schedbot/internal/eventbus"
	"schedbot/internal/gate"
	"schedbot/internal/memwatch"
	"schedbot/internal/renderer"
	logx "schedbot/pkg/logx"
)

// Scraper loads one day of one group's schedule using handle h.
type Scraper interface {
	Scrape(ctx context.Context, h renderer.Handle, group, date string) ([]Entry, error)
}

type Pool interface {
	AcquireNext() (renderer.Handle, error)
	Size() int
}

type Config struct {
	CacheCapacity int
	CacheTTL      time.Duration
	MaxConcurrent int
	QueueSize     int
	// Coalesce lets concurrent misses on the same key share one scrape.
	Coalesce bool
}

type Option func(*Service)

func WithLogger(l logx.Logger) Option       { return func(s *Service) { s.log = l } }
func WithBus(b eventbus.Bus) Option         { return func(s *Service) { s.bus = b } }
func WithSampler(m memwatch.Sampler) Option { return func(s *Service) { s.mem = m } }

// WithClock sets the cache clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Result is a fetch outcome. Entries is never nil.
type Result struct {
	Entries   []Entry
	FromCache bool
	// Failed is set when the scrape errored; the empty Entries is not cached.
	Failed bool
	Err    error
	RID    string
}

type Stats struct {
	PoolSize      int     `json:"pool_size"`
	CacheSize     int     `json:"cache_size"`
	CacheCapacity int     `json:"cache_capacity"`
	QueueDepth    int     `json:"queue_depth"`
	Running       int     `json:"running"`
	TotalRequests uint64  `json:"total_requests"`
	CacheHits     uint64  `json:"cache_hits"`
	Scrapes       uint64  `json:"scrapes"`
	Failures      uint64  `json:"failures"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
}

// MemoryPercent is used/total as a percentage.
func (s Stats) MemoryPercent() float64 {
	if s.MemoryTotalMB <= 0 {
		return 0
	}
	return s.MemoryUsedMB / s.MemoryTotalMB * 100
}

// Service is the single entry point for schedule lookups: cache first, then
// a scrape queued on the gate.
type Service struct {
	pool    Pool
	scraper Scraper
	cache   *cache.Cache[Key, []Entry]
	gate    *gate.Gate
	bus     eventbus.Bus
	mem     memwatch.Sampler
	log     logx.Logger
	now     func() time.Time

	coalesce atomic.Bool
	sf       singleflight.Group

	ridSeq   atomic.Uint64
	requests atomic.Uint64
	hits     atomic.Uint64
	scrapes  atomic.Uint64
	failures atomic.Uint64
}

func NewService(cfg Config, pool Pool, scraper Scraper, opts ...Option) *Service {
	s := &Service{pool: pool, scraper: scraper}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.mem == nil {
		s.mem = memwatch.RuntimeSampler()
	}
	var copts []cache.Option
	if s.now != nil {
		copts = append(copts, cache.WithClock(s.now))
	}
	s.cache = cache.New[Key, []Entry](cfg.CacheCapacity, cfg.CacheTTL, copts...)
	s.gate = gate.New(gate.Config{Workers: cfg.MaxConcurrent, QueueSize: cfg.QueueSize}, s.log)
	s.log = s.log.With(logx.String("comp", "schedule"))
	s.coalesce.Store(cfg.Coalesce)
	return s
}

// Cache exposes the entry cache for the memory monitor.
func (s *Service) Cache() *cache.Cache[Key, []Entry] { return s.cache }

func (s *Service) Start(ctx context.Context) {
	s.gate.Start(ctx)
	s.log.Info("service started",
		logx.Int("pool", s.pool.Size()),
		logx.Int("cache_capacity", s.cache.Cap()),
		logx.Duration("ttl", s.cache.TTL()),
		logx.Bool("coalesce", s.coalesce.Load()),
	)
}

// Stop stops accepting fetches; queued ones resolve as failures.
func (s *Service) Stop(ctx context.Context) {
	s.gate.Stop(ctx)
	s.log.Info("service stopped")
}

// Apply updates the settings that can change without a restart.
func (s *Service) Apply(ttl time.Duration, coalesce bool) {
	if ttl > 0 && ttl != s.cache.TTL() {
		s.cache.SetTTL(ttl)
		s.log.Info("cache ttl changed", logx.Duration("ttl", ttl))
	}
	s.coalesce.Store(coalesce)
}

// Fetch returns the entries for group on date. Failures and empty days both
// come back as an empty slice.
func (s *Service) Fetch(ctx context.Context, group string, date time.Time) []Entry {
	return s.FetchDetailed(ctx, group, date).Entries
}

// FetchDetailed is Fetch with the cache and failure flags exposed.
func (s *Service) FetchDetailed(ctx context.Context, group string, date time.Time) Result {
	s.requests.Add(1)
	key := NewKey(group, date)
	rid := "r" + strconv.FormatUint(s.ridSeq.Add(1), 36)
	log := s.log.With(logx.String("rid", rid), logx.String("key", key.String()))

	if v, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		log.Debug("cache hit", logx.Int("entries", len(v)))
		s.publish(eventbus.CacheHit, key, rid, nil)
		return Result{Entries: slices.Clone(v), FromCache: true, RID: rid}
	}

	start := time.Now()
	var (
		entries []Entry
		err     error
	)
	if s.coalesce.Load() {
		entries, err = s.fetchShared(ctx, key, rid, log)
	} else {
		entries, err = s.fetchOnce(ctx, key, rid, log)
	}
	if err != nil {
		s.failures.Add(1)
		log.Warn("fetch failed", logx.String("group", key.Group), logx.String("date", key.Date), logx.Duration("took", time.Since(start)), logx.Err(err))
		s.publish(eventbus.FetchFailed, key, rid, err)
		return Result{Entries: []Entry{}, Failed: true, Err: err, RID: rid}
	}
	if entries == nil {
		entries = []Entry{}
	}
	log.Info("fetch finished", logx.Int("entries", len(entries)), logx.Duration("took", time.Since(start)))
	s.publish(eventbus.FetchFinished, key, rid, nil)
	return Result{Entries: entries, RID: rid}
}

func (s *Service) fetchShared(ctx context.Context, key Key, rid string, log logx.Logger) ([]Entry, error) {
	ch := s.sf.DoChan(key.String(), func() (any, error) {
		// The first caller leaving must not fail the others.
		return s.fetchOnce(context.WithoutCancel(ctx), key, rid, log)
	})
	select {
	case r := <-ch:
		if r.Shared {
			log.Debug("joined in-flight fetch")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		// Each waiter gets its own copy of the shared result.
		return slices.Clone(r.Val.([]Entry)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) fetchOnce(ctx context.Context, key Key, rid string, log logx.Logger) ([]Entry, error) {
	fut, err := gate.Submit(ctx, s.gate, "fetch "+key.String(), func(tctx context.Context) ([]Entry, error) {
		h, err := s.pool.AcquireNext()
		if err != nil {
			return nil, err
		}
		s.scrapes.Add(1)
		log.Debug("scrape started", logx.Int("browser", h.ID()))
		entries, err := s.scraper.Scrape(tctx, h, key.Group, key.Date)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []Entry{}
		}
		// Cached entries are never handed out directly.
		s.cache.Put(key, slices.Clone(entries))
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("fetch queued", logx.String("task", fut.ID()))
	s.publish(eventbus.FetchQueued, key, rid, nil)
	return fut.Wait(ctx)
}

// FetchEvent is the payload of fetch and cache events.
type FetchEvent struct {
	Key Key
	RID string
	Err error
}

func (s *Service) publish(typ string, key Key, rid string, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: FetchEvent{Key: key, RID: rid, Err: err}})
}

func (s *Service) Stats() Stats {
	snap := s.gate.Snapshot()
	mem := s.mem.Sample()
	return Stats{
		PoolSize:      s.pool.Size(),
		CacheSize:     s.cache.Len(),
		CacheCapacity: s.cache.Cap(),
		QueueDepth:    snap.QueueLen,
		Running:       snap.Running,
		TotalRequests: s.requests.Load(),
		CacheHits:     s.hits.Load(),
		Scrapes:       s.scrapes.Load(),
		Failures:      s.failures.Load(),
		MemoryUsedMB:  mem.UsedMB(),
		MemoryTotalMB: mem.TotalMB(),
	}
}

// IsStopped reports whether err came from a fetch rejected during shutdown.
func IsStopped(err error) bool {
	return errors.Is(err, gate.ErrStopped) || errors.Is(err, gate.ErrStopping)
}
