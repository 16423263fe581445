package renderer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "schedbot/pkg/logx"
)

type fakeHandle struct {
	id     int
	closed atomic.Bool
	err    error
	block  chan struct{}
}

func (h *fakeHandle) ID() int { return h.id }

func (h *fakeHandle) NewPage(ctx context.Context) (Page, error) {
	return nil, errors.New("not implemented")
}

func (h *fakeHandle) Close(ctx context.Context) error {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.closed.Store(true)
	return h.err
}

func launchAll(handles map[int]*fakeHandle) Launcher {
	return LauncherFunc(func(ctx context.Context, id int) (Handle, error) {
		h, ok := handles[id]
		if !ok {
			return nil, errors.New("launch failed")
		}
		return h, nil
	})
}

func TestAcquireNext_RoundRobin(t *testing.T) {
	h0, h1 := &fakeHandle{id: 0}, &fakeHandle{id: 1}
	p, err := New(context.Background(), Config{Size: 2}, launchAll(map[int]*fakeHandle{0: h0, 1: h1}), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var got []int
	for i := 0; i < 4; i++ {
		h, err := p.AcquireNext()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		got = append(got, h.ID())
	}
	want := []int{0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}
}

func TestAcquireNext_Fairness(t *testing.T) {
	handles := map[int]*fakeHandle{}
	for i := 0; i < 3; i++ {
		handles[i] = &fakeHandle{id: i}
	}
	p, err := New(context.Background(), Config{Size: 3}, launchAll(handles), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	counts := map[int]int{}
	const n = 10
	for i := 0; i < n; i++ {
		h, _ := p.AcquireNext()
		if h.ID() != i%3 {
			t.Fatalf("call %d got handle %d, want %d", i, h.ID(), i%3)
		}
		counts[h.ID()]++
	}
	for id, c := range counts {
		if c < n/3 || c > n/3+1 {
			t.Fatalf("handle %d used %d times", id, c)
		}
	}
}

func TestNew_PartialFailureKeepsOrder(t *testing.T) {
	handles := map[int]*fakeHandle{0: {id: 0}, 2: {id: 2}, 3: {id: 3}}
	p, err := New(context.Background(), Config{Size: 4}, launchAll(handles), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Size() != 3 {
		t.Fatalf("size = %d, want 3", p.Size())
	}
	var got []int
	for i := 0; i < 3; i++ {
		h, _ := p.AcquireNext()
		got = append(got, h.ID())
	}
	if got[0] != 0 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order = %v", got)
	}
}

func TestNew_AllFailIsExhausted(t *testing.T) {
	_, err := New(context.Background(), Config{Size: 2}, launchAll(nil), logx.Nop())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestNew_LaunchTimeout(t *testing.T) {
	slow := LauncherFunc(func(ctx context.Context, id int) (Handle, error) {
		if id == 0 {
			return &fakeHandle{id: 0}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, err := New(context.Background(), Config{Size: 2, LaunchTimeout: 20 * time.Millisecond}, slow, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Size() != 1 {
		t.Fatalf("size = %d, want 1", p.Size())
	}
}

func TestShutdown_ClosesAllDespiteErrors(t *testing.T) {
	h0 := &fakeHandle{id: 0, err: errors.New("stuck")}
	h1 := &fakeHandle{id: 1}
	p, err := New(context.Background(), Config{Size: 2}, launchAll(map[int]*fakeHandle{0: h0, 1: h1}), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Shutdown(context.Background())
	if !h0.closed.Load() || !h1.closed.Load() {
		t.Fatalf("not every handle was closed")
	}
	if _, err := p.AcquireNext(); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("acquire after shutdown: %v", err)
	}
	if p.Size() != 0 {
		t.Fatalf("size after shutdown = %d", p.Size())
	}
	p.Shutdown(context.Background())
}

func TestShutdown_BoundedByContext(t *testing.T) {
	stuck := &fakeHandle{id: 0, block: make(chan struct{})}
	defer close(stuck.block)
	ok := &fakeHandle{id: 1}
	p, _ := New(context.Background(), Config{Size: 2}, launchAll(map[int]*fakeHandle{0: stuck, 1: ok}), logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	p.Shutdown(ctx)
	if time.Since(start) > time.Second {
		t.Fatalf("shutdown ignored context deadline")
	}
	if !ok.closed.Load() {
		t.Fatalf("healthy handle should still be closed")
	}
}
