// Package gate bounds how many fetch tasks execute at once.
//
// Submitted tasks wait in a FIFO queue and are picked up by a fixed set of
// workers, so they start in submission order and at most Workers of them
// run concurrently. Tasks may finish in any order.
package gate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	logx "schedbot/pkg/logx"
)

var (
	ErrStopped  = errors.New("gate stopped")
	ErrStopping = errors.New("gate stopping")
)

// PanicError is returned by a Future whose task panicked.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value) }

type Config struct {
	Workers   int
	QueueSize int
}

type Snapshot struct {
	Workers   int    `json:"workers"`
	QueueLen  int    `json:"queue_len"`
	QueueCap  int    `json:"queue_cap"`
	Running   int    `json:"running"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Panics    uint64 `json:"panics"`
	Stopping  bool   `json:"stopping,omitempty"`
	// LastWait is how long the most recently started task sat in the queue.
	LastWait time.Duration `json:"last_wait"`
}

type job struct {
	id         string
	name       string
	enqueuedAt time.Time
	run        func(ctx context.Context) error
	abort      func(err error)
}

type Gate struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	// sendMu is read-held by blocked submitters and write-held while the
	// queue is drained on stop, so no job lands after the drain.
	sendMu   sync.RWMutex
	q        chan job
	stopCh   chan struct{}
	stopDone chan struct{}
	sup      *rtsup.Supervisor

	running   atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
	lastWait  atomic.Int64
	idSeq     atomic.Uint64
}

func New(cfg Config, log logx.Logger) *Gate {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{cfg: cfg, log: log.With(logx.String("comp", "gate"))}
}

// Start launches the workers. It is idempotent.
func (g *Gate) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	if g.stopCh != nil {
		g.mu.Unlock()
		return
	}
	cfg := g.cfg
	g.q = make(chan job, cfg.QueueSize)
	g.stopCh = make(chan struct{})
	g.stopDone = nil
	g.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(g.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, stopCh := g.sup, g.q, g.stopCh
	g.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			g.worker(c, stopCh, q)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	g.log.Info("gate started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop stops the workers, waits for running tasks up to ctx, and fails
// every still-queued task with ErrStopped.
func (g *Gate) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	if g.stopCh == nil {
		g.mu.Unlock()
		return
	}
	if g.stopDone != nil {
		done := g.stopDone
		g.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	g.stopDone = done
	close(g.stopCh)
	sup, q := g.sup, g.q
	g.mu.Unlock()

	go func() {
		// Running tasks keep their context until they return.
		_ = sup.Wait(context.Background())
		sup.Cancel()
		g.sendMu.Lock()
		defer g.sendMu.Unlock()
		drained := 0
		for {
			select {
			case j := <-q:
				j.abort(ErrStopped)
				drained++
				continue
			default:
			}
			break
		}
		if drained > 0 {
			g.log.Warn("queued tasks dropped on stop", logx.Int("count", drained))
		}
		g.mu.Lock()
		g.q, g.stopCh, g.stopDone, g.sup = nil, nil, nil, nil
		g.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("gate stopped")
	case <-ctx.Done():
		sup.Cancel()
		g.log.Warn("gate stop timed out", logx.Err(ctx.Err()))
	}
}

// enqueue blocks until the job is accepted, ctx ends or the gate stops.
func (g *Gate) enqueue(ctx context.Context, j job) error {
	g.sendMu.RLock()
	defer g.sendMu.RUnlock()
	g.mu.Lock()
	q, stopCh, stopping := g.q, g.stopCh, g.stopDone != nil
	g.mu.Unlock()
	if q == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}
	j.enqueuedAt = time.Now()
	select {
	case q <- j:
		g.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return ErrStopping
	}
}

func (g *Gate) worker(ctx context.Context, stopCh <-chan struct{}, q <-chan job) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-q:
			g.exec(ctx, j)
		}
	}
}

func (g *Gate) exec(ctx context.Context, j job) {
	g.lastWait.Store(int64(time.Since(j.enqueuedAt)))
	g.running.Add(1)
	defer g.running.Add(-1)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.panics.Add(1)
				g.log.Error("task panicked", logx.String("task", j.name), logx.String("id", j.id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = &PanicError{Task: j.name, Value: r}
				j.abort(err)
			}
		}()
		return j.run(ctx)
	}()
	g.completed.Add(1)
	if err != nil {
		g.failed.Add(1)
	}
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	cfg, q, stopping := g.cfg, g.q, g.stopDone != nil
	g.mu.Unlock()
	s := Snapshot{
		Workers:   cfg.Workers,
		Stopping:  stopping,
		Running:   int(g.running.Load()),
		Submitted: g.submitted.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
		Panics:    g.panics.Load(),
		LastWait:  time.Duration(g.lastWait.Load()),
	}
	if q != nil {
		s.QueueLen, s.QueueCap = len(q), cap(q)
	}
	return s
}

func (g *Gate) newID() string {
	return fmt.Sprintf("job-%x", g.idSeq.Add(1))
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	id   string
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// ID identifies the task in logs.
func (f *Future[T]) ID() string { return f.id }

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finished or ctx ends. Abandoning a Future does
// not cancel its task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn on g and returns its Future. It blocks while the queue
// is full. fn receives the gate's context, not ctx.
func Submit[T any](ctx context.Context, g *Gate, name string, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	if fn == nil {
		return nil, errors.New("gate: task func is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "task"
	}
	f := &Future[T]{id: g.newID(), done: make(chan struct{})}
	j := job{
		id:   f.id,
		name: name,
		run: func(c context.Context) error {
			v, err := fn(c)
			f.resolve(v, err)
			return err
		},
		abort: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}
	if err := g.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}
