// Package router turns adapter updates into command, callback and plain-text
// handler calls, running them on a bounded worker pool.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Hidden commands work but are left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles callback data "<Prefix>:<Action>[:payload]".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	FromID    int64
	MessageID int
	Command   string
	Args      []string
	// Text is the full message text, trimmed.
	Text       string
	Payload    string
	CallbackID string
	ReqID      string

	Adapter kit.Adapter
	Logger  logx.Logger

	answered atomic.Bool
}

// Answer acknowledges the callback behind req. Only the first call reaches
// Telegram; the router sends an empty answer if the handler never does.
func (r *Request) Answer(ctx context.Context, text string, alert bool) error {
	if r.CallbackID == "" || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.CallbackID, text, alert)
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration

	HelpTitle  string
	HelpFooter []string

	UnknownCommand  string
	UnknownCallback string
	Busy            string
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HelpTitle == "" {
		c.HelpTitle = "📖 Commands"
	}
	if c.UnknownCommand == "" {
		c.UnknownCommand = "unknown command, try /help"
	}
	if c.UnknownCallback == "" {
		c.UnknownCallback = "unknown action"
	}
	if c.Busy == "" {
		c.Busy = "busy, try again"
	}
}

type Router struct {
	cfg     Config
	log     logx.Logger
	adapter kit.Adapter

	mu       sync.RWMutex
	cmds     map[string]*Command // name and aliases
	ordered  []*Command
	cbs      map[string]map[string]CallbackRoute
	fallback HandlerFunc

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Router {
	cfg.defaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		cmds:    map[string]*Command{},
		cbs:     map[string]map[string]CallbackRoute{},
		jobs:    make(chan func(), cfg.QueueSize),
	}
}

// Supervisor is the worker supervisor while DispatchLoop runs, else nil.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetRegistry replaces the routing table. A "help" command is added unless
// one is registered. fallback receives non-command text and may be nil.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute, fallback HandlerFunc) {
	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds)+1)
	add := func(c Command) {
		name := commandWord(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			return
		}
		c.Name = name
		cc := &c
		byName[name] = cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			a = commandWord(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, taken := byName[a]; !taken {
				byName[a] = cc
			}
		}
	}
	for _, c := range cmds {
		add(c)
	}
	if _, ok := byName["help"]; !ok {
		add(Command{
			Name:        "help",
			Description: "help",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Reply(ctx, r.helpText(), &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
				return err
			},
		})
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, rt := range cbs {
		p := strings.TrimSpace(rt.Prefix)
		a := strings.TrimSpace(rt.Action)
		if p == "" || a == "" || rt.Handle == nil {
			continue
		}
		if cb[p] == nil {
			cb[p] = map[string]CallbackRoute{}
		}
		cb[p][a] = rt
	}

	r.mu.Lock()
	r.cmds = byName
	r.ordered = ordered
	r.cbs = cb
	r.fallback = fallback
	r.mu.Unlock()
}

// PublishMenu pushes the visible commands to Telegram's "/" menu when the
// adapter supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	r.mu.RLock()
	menu := buildMenu(r.ordered)
	r.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, menu)
}

func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := r.cfg.Workers

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		r.setSupervisor(sup, false)
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("updates channel closed")
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route dispatches one update onto the worker queue.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmds, fallback := r.cmds, r.fallback
	r.mu.RUnlock()

	if !strings.HasPrefix(text, "/") {
		if fallback == nil {
			return
		}
		req := r.newRequest(up, chat, msg.FromID, "text")
		req.MessageID = msg.ID
		req.Text = text
		r.enqueue(ctx, req, fallback, r.cfg.DefaultTimeout)
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	cmd, ok := cmds[commandWord(parts[0])]
	if !ok {
		_, _ = r.adapter.SendText(ctx, chat, r.cfg.UnknownCommand, &kit.SendOptions{ParseMode: kit.ParseModeHTML})
		return
	}
	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	req.MessageID = msg.ID
	req.Text = text
	req.Args = parts[1:]
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	r.enqueue(ctx, req, cmd.Handle, timeout)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	prefix, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))

	var route CallbackRoute
	if ok {
		r.mu.RLock()
		route, ok = r.cbs[prefix][action]
		r.mu.RUnlock()
	}
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, r.cfg.UnknownCallback, false)
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+prefix+":"+action)
	req.MessageID = cb.MessageID
	req.Payload = payload
	req.CallbackID = cb.ID

	h := func(c context.Context, rq *Request) error {
		err := route.Handle(c, rq, payload)
		// stop the client's loading indicator
		_ = rq.Answer(c, "", false)
		return err
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	if !r.enqueue(ctx, req, h, timeout) {
		_ = req.Answer(ctx, r.cfg.Busy, false)
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, cmd string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", cmd),
		),
	}
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) bool {
	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	ok := r.tryEnqueue(func() { _ = final(ctx, req) })
	if !ok && req.CallbackID == "" {
		_, _ = r.adapter.SendText(ctx, req.Chat, r.cfg.Busy, nil)
	}
	return ok
}
