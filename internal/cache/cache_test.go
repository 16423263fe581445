package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 12, 16, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestGetPut_HitAndMiss(t *testing.T) {
	c := New[string, int](4, time.Hour)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Put("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got %v ok=%v, want 1", v, ok)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 1 || st.Capacity != 4 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	clk := newFakeClock()
	c := New[string, string](4, time.Minute, WithClock(clk.Now))
	c.Put("k", "v")

	clk.Advance(time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry exactly at TTL must still hit")
	}
	clk.Advance(time.Nanosecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry not removed on read, len=%d", c.Len())
	}
	if c.Stats().Expired != 1 {
		t.Fatalf("expired counter = %d", c.Stats().Expired)
	}
}

func TestPut_EvictsOldestWhenFull(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](2, time.Hour, WithClock(clk.Now))
	c.Put("A", 1)
	clk.Advance(time.Second)
	c.Put("B", 2)
	clk.Advance(time.Second)
	c.Put("C", 3)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("A"); ok {
		t.Fatalf("A should have been evicted")
	}
	for _, k := range []string{"B", "C"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should be present", k)
		}
	}
}

func TestPut_SameTimestampEvictsFirstInserted(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](3, time.Hour, WithClock(clk.Now))
	for i, k := range []string{"x", "y", "z", "w"} {
		c.Put(k, i)
	}
	if _, ok := c.Get("x"); ok {
		t.Fatalf("x should have been evicted first")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestPut_ReplaceDoesNotEvict(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](2, time.Hour, WithClock(clk.Now))
	c.Put("a", 1)
	c.Put("b", 2)
	clk.Advance(time.Minute)
	c.Put("a", 10)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("a = %d, want 10", v)
	}
	// a was rewritten later, so b is now the oldest.
	c.Put("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should be evicted after a was replaced")
	}
}

func TestEvictExpired(t *testing.T) {
	clk := newFakeClock()
	c := New[int, int](10, time.Minute, WithClock(clk.Now))
	c.Put(1, 1)
	c.Put(2, 2)
	clk.Advance(2 * time.Minute)
	c.Put(3, 3)

	if n := c.EvictExpired(); n != 2 {
		t.Fatalf("evicted %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestEvictOldestUntil(t *testing.T) {
	clk := newFakeClock()
	c := New[int, int](10, time.Hour, WithClock(clk.Now))
	for i := 0; i < 10; i++ {
		c.Put(i, i)
		clk.Advance(time.Second)
	}
	if n := c.EvictOldestUntil(7); n != 3 {
		t.Fatalf("evicted %d, want 3", n)
	}
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(i); ok {
			t.Fatalf("key %d should be gone", i)
		}
	}
	// Already at or below target: no-op.
	if n := c.EvictOldestUntil(7); n != 0 || c.Len() != 7 {
		t.Fatalf("second call evicted %d, len %d", n, c.Len())
	}
	if n := c.EvictOldestUntil(100); n != 0 {
		t.Fatalf("target above size evicted %d", n)
	}
}

func TestSetTTL_AppliesToExisting(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](2, time.Hour, WithClock(clk.Now))
	c.Put("a", 1)
	clk.Advance(10 * time.Minute)
	c.SetTTL(5 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after shortening TTL")
	}
}

func TestConcurrentPutNeverExceedsCapacity(t *testing.T) {
	c := New[string, int](16, time.Hour)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(fmt.Sprintf("%d-%d", w, i), i)
				if n := c.Len(); n > 16 {
					t.Errorf("len %d exceeds capacity", n)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 16 {
		t.Fatalf("len = %d, want 16", c.Len())
	}
}
