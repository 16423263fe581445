package memwatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"schedbot/internal/cache"
	"schedbot/internal/eventbus"
	logx "schedbot/pkg/logx"
)

type seqSampler struct {
	mu     sync.Mutex
	ratios []float64
	i      int
}

func (s *seqSampler) Sample() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ratios[len(s.ratios)-1]
	if s.i < len(s.ratios) {
		r = s.ratios[s.i]
		s.i++
	}
	return Sample{Used: uint64(r * 1000), Total: 1000}
}

type countingEvictor struct {
	*cache.Cache[string, int]
	oldestCalls []int
}

func (e *countingEvictor) EvictOldestUntil(target int) int {
	e.oldestCalls = append(e.oldestCalls, target)
	return e.Cache.EvictOldestUntil(target)
}

func filledCache(t *testing.T, capacity int) *countingEvictor {
	t.Helper()
	c := cache.New[string, int](capacity, time.Hour)
	for i := 0; i < capacity; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	return &countingEvictor{Cache: c}
}

func testConfig() Config {
	return Config{Interval: time.Second, High: 0.6, Low: 0.4, Target: 0.7}
}

func TestCheck_Hysteresis(t *testing.T) {
	ev := filledCache(t, 10)
	s := &seqSampler{ratios: []float64{0.5, 0.65, 0.7, 0.5, 0.65, 0.3, 0.61}}
	m := New(testConfig(), s, ev, nil, logx.Nop())

	want := []Action{ActionNone, ActionPressure, ActionNone, ActionNone, ActionNone, ActionRelief, ActionPressure}
	for i, w := range want {
		if got := m.Check().Action; got != w {
			t.Fatalf("check %d: action = %v, want %v", i, got, w)
		}
	}
	if len(ev.oldestCalls) != 2 {
		t.Fatalf("evictions = %d, want 2", len(ev.oldestCalls))
	}
	if ev.oldestCalls[0] != 7 {
		t.Fatalf("target = %d, want 7", ev.oldestCalls[0])
	}
	if !m.Latched() {
		t.Fatalf("latch should be set after last crossing")
	}
}

func TestCheck_EvictsToTarget(t *testing.T) {
	ev := filledCache(t, 10)
	m := New(testConfig(), &seqSampler{ratios: []float64{0.9}}, ev, nil, logx.Nop())

	res := m.Check()
	if res.Evicted != 3 || ev.Len() != 7 {
		t.Fatalf("evicted=%d len=%d", res.Evicted, ev.Len())
	}
	// oldest keys go first
	if _, ok := ev.Get("k0"); ok {
		t.Fatalf("k0 should be evicted")
	}
	if _, ok := ev.Get("k9"); !ok {
		t.Fatalf("k9 should survive")
	}
}

func TestCheck_BelowTargetIsNoop(t *testing.T) {
	c := cache.New[string, int](10, time.Hour)
	c.Put("a", 1)
	m := New(testConfig(), &seqSampler{ratios: []float64{0.95}}, c, nil, logx.Nop())
	if res := m.Check(); res.Action != ActionPressure || res.Evicted != 0 || c.Len() != 1 {
		t.Fatalf("res=%+v len=%d", res, c.Len())
	}
}

func TestCheck_PublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	m := New(testConfig(), &seqSampler{ratios: []float64{0.8, 0.1}}, filledCache(t, 4), bus, logx.Nop())
	m.Check()
	m.Check()

	for _, want := range []string{eventbus.MemoryPressure, eventbus.MemoryRelief} {
		select {
		case e := <-ch:
			if e.Type != want {
				t.Fatalf("event = %s, want %s", e.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s", want)
		}
	}
}

func TestApply_ChangesThresholds(t *testing.T) {
	m := New(testConfig(), &seqSampler{ratios: []float64{0.55}}, filledCache(t, 4), nil, logx.Nop())
	cfg := testConfig()
	cfg.High = 0.5
	m.Apply(cfg)
	if got := m.Check().Action; got != ActionPressure {
		t.Fatalf("action = %v", got)
	}
}

func TestStartStop(t *testing.T) {
	m := New(testConfig(), &seqSampler{ratios: []float64{0.1}}, filledCache(t, 2), nil, logx.Nop())
	m.Start(context.Background())
	m.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
	m.Stop(ctx)
}

func running(m *Monitor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c != nil
}

func TestStart_StopsWhenContextEnds(t *testing.T) {
	m := New(testConfig(), &seqSampler{ratios: []float64{0.1}}, filledCache(t, 2), nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	if !running(m) {
		t.Fatalf("monitor not running after Start")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for running(m) {
		if time.Now().After(deadline) {
			t.Fatalf("monitor still running after ctx ended")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// a later Start on a live ctx works again
	m.Start(context.Background())
	if !running(m) {
		t.Fatalf("restart failed")
	}
	m.Stop(context.Background())
}

func TestSample_Ratio(t *testing.T) {
	if r := (Sample{}).Ratio(); r != 0 {
		t.Fatalf("zero total ratio = %v", r)
	}
	if r := (Sample{Used: 1, Total: 4}).Ratio(); r != 0.25 {
		t.Fatalf("ratio = %v", r)
	}
	s := RuntimeSampler().Sample()
	if s.Total == 0 {
		t.Fatalf("runtime sample = %+v", s)
	}
}
