package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type answer struct {
	id, text string
	alert    bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	answers []answer
	menu    []kit.BotCommand
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }
func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}
func (a *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (a *fakeAdapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error { return nil }
func (a *fakeAdapter) AnswerCallback(ctx context.Context, id, text string, alert bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, answer{id, text, alert})
	return nil
}
func (a *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menu = cmds
	return nil
}

func (a *fakeAdapter) snapshot() ([]string, []answer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...), append([]answer(nil), a.answers...)
}

func runRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func msg(text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: 10, FromID: 20, Text: text}}
}

func TestRouter_CommandsAliasesAndFallback(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(Config{Workers: 2, UnknownCommand: "unknown"}, ad, logx.Nop())

	got := make(chan string, 8)
	r.SetRegistry([]Command{
		{Name: "start", Handle: func(ctx context.Context, req *Request) error {
			got <- "start:" + strings.Join(req.Args, ",")
			return nil
		}},
		{Name: "mygroup", Aliases: []string{"g"}, Handle: func(ctx context.Context, req *Request) error {
			got <- "mygroup"
			return nil
		}},
	}, nil, func(ctx context.Context, req *Request) error {
		got <- "text:" + req.Text
		return nil
	})
	updates := runRouter(t, r)

	cases := []struct{ in, want string }{
		{"/start a \"b c\"", "start:a,b c"},
		{"/START@schedbot", "start:"},
		{"/g", "mygroup"},
		{"  108 ", "text:108"},
	}
	for _, c := range cases {
		updates <- msg(c.in)
		select {
		case v := <-got:
			if v != c.want {
				t.Fatalf("%q routed to %q, want %q", c.in, v, c.want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%q not routed", c.in)
		}
	}

	updates <- msg("/nope")
	waitFor(t, func() bool {
		sent, _ := ad.snapshot()
		return len(sent) == 1 && sent[0] == "unknown"
	})
}

func TestRouter_CallbackAnswers(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(Config{Workers: 1, UnknownCallback: "?"}, ad, logx.Nop())
	payloads := make(chan string, 4)
	r.SetRegistry(nil, []CallbackRoute{
		{Prefix: "date", Action: "pick", Handle: func(ctx context.Context, req *Request, payload string) error {
			payloads <- payload
			return nil
		}},
		{Prefix: "date", Action: "bad", Handle: func(ctx context.Context, req *Request, payload string) error {
			return req.Answer(ctx, "bad date", true)
		}},
	}, nil)
	updates := runRouter(t, r)

	cb := func(id, data string) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: id, ChatID: 10, FromID: 20, Data: data}}
	}
	updates <- cb("1", "date:pick:2025-12-16")
	if p := <-payloads; p != "2025-12-16" {
		t.Fatalf("payload = %q", p)
	}
	updates <- cb("2", "date:bad")
	updates <- cb("3", "weird")

	waitFor(t, func() bool { _, a := ad.snapshot(); return len(a) == 3 })
	_, answers := ad.snapshot()
	byID := map[string]answer{}
	for _, a := range answers {
		if _, dup := byID[a.id]; dup {
			t.Fatalf("callback %s answered twice", a.id)
		}
		byID[a.id] = a
	}
	if byID["1"].text != "" || byID["2"].text != "bad date" || !byID["2"].alert || byID["3"].text != "?" {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestRouter_PanicAndTimeout(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(Config{Workers: 1}, ad, logx.Nop())
	errs := make(chan error, 2)
	r.SetRegistry([]Command{
		{Name: "boom", Handle: func(ctx context.Context, req *Request) error { panic("boom") }},
		{Name: "slow", Timeout: 10 * time.Millisecond, Handle: func(ctx context.Context, req *Request) error {
			<-ctx.Done()
			errs <- ctx.Err()
			return ctx.Err()
		}},
	}, nil, nil)
	updates := runRouter(t, r)

	updates <- msg("/boom")
	updates <- msg("/slow")
	select {
	case err := <-errs:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestRouter_HelpAndMenu(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(Config{Workers: 1, HelpTitle: "Команды", HelpFooter: []string{"a < b"}}, ad, logx.Nop())
	noop := func(ctx context.Context, req *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "start", Description: "начало работы", Handle: noop},
		{Name: "secret", Hidden: true, Handle: noop},
	}, nil, nil)

	help := r.helpText()
	if !strings.Contains(help, "<b>/start</b> — начало работы") || strings.Contains(help, "secret") || !strings.Contains(help, "a &lt; b") {
		t.Fatalf("help = %q", help)
	}
	if err := r.PublishMenu(context.Background()); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(ad.menu) != 2 || ad.menu[0].Command != "start" || ad.menu[1].Command != "help" {
		t.Fatalf("menu = %+v", ad.menu)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	tests := map[string]string{
		"Start":        "start",
		"change-group": "change_group",
		"9lives":       "cmd_9lives",
		"--":           "",
	}
	for in, want := range tests {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
