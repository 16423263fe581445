// Package bot is the Telegram conversation on top of the schedule service:
// remembering a chat's group, offering dates and rendering results.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	"schedbot/pkg/dates"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

// Schedule is what the bot needs from the schedule service.
type Schedule interface {
	FetchDetailed(ctx context.Context, group string, date time.Time) schedule.Result
	Stats() schedule.Stats
}

type Options struct {
	Location        *time.Location
	SupportedGroups []string
	// SpinnerEvery and SpinnerFrames drive the loading animation.
	SpinnerEvery  time.Duration
	SpinnerFrames int
	Now           func() time.Time
}

type Bot struct {
	svc    Schedule
	store  storage.Store
	states *States
	log    logx.Logger

	loc           *time.Location
	now           func() time.Time
	spinnerEvery  time.Duration
	spinnerFrames int

	mu      sync.RWMutex
	allowed map[string]bool
	listed  []string
}

func New(svc Schedule, store storage.Store, opt Options, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Location == nil {
		opt.Location = dates.LoadLocation("")
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.SpinnerEvery <= 0 {
		opt.SpinnerEvery = 500 * time.Millisecond
	}
	if opt.SpinnerFrames <= 0 {
		opt.SpinnerFrames = 20
	}
	b := &Bot{
		svc:           svc,
		store:         store,
		states:        NewStates(),
		log:           log.With(logx.String("comp", "bot")),
		loc:           opt.Location,
		now:           opt.Now,
		spinnerEvery:  opt.SpinnerEvery,
		spinnerFrames: opt.SpinnerFrames,
	}
	b.SetSupportedGroups(opt.SupportedGroups)
	return b
}

// SetSupportedGroups replaces the group allowlist; empty accepts any group.
func (b *Bot) SetSupportedGroups(groups []string) {
	allowed := map[string]bool{}
	listed := make([]string, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" && !allowed[g] {
			allowed[g] = true
			listed = append(listed, g)
		}
	}
	b.mu.Lock()
	b.allowed, b.listed = allowed, listed
	b.mu.Unlock()
}

func (b *Bot) groupAllowed(g string) (bool, []string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.allowed) == 0 {
		return true, nil
	}
	return b.allowed[g], b.listed
}

func (b *Bot) today() time.Time { return b.now().In(b.loc) }

// Commands is the bot's command table.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "начало работы", Handle: b.cmdStart},
		{Name: "schedule", Description: "быстрый доступ к расписанию", Handle: b.cmdSchedule},
		{Name: "mygroup", Description: "текущая группа", Handle: b.cmdMyGroup},
		{Name: "changegroup", Description: "изменить группу", Handle: b.cmdChangeGroup},
		{Name: "deletegroup", Description: "удалить группу", Handle: b.cmdDeleteGroup},
		{Name: "stats", Description: "статистика сервера", Handle: b.cmdStats},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: cbPrefix, Action: actionPick, Handle: b.cbPick},
		{Prefix: cbPrefix, Action: actionManual, Handle: b.cbManual},
	}
}

// RouterConfig carries the bot's texts for the router.
func RouterConfig(workers int, timeout time.Duration) router.Config {
	return router.Config{
		Workers:        workers,
		DefaultTimeout: timeout,
		HelpTitle:      "📖 ДОСТУПНЫЕ КОМАНДЫ",
		HelpFooter: []string{
			"✨ Советы:",
			"• Используйте кнопки для навигации",
			"• Повторные запросы работают из кеша",
			"• Первый запрос займёт около 8 секунд",
		},
		UnknownCommand:  "❓ Неизвестная команда. Используйте /help",
		UnknownCallback: "❓ Неизвестная команда",
		Busy:            "⏳ Бот перегружен, попробуйте через минуту",
	}
}

func htmlOpts(kb *tgui.Inline) *kit.SendOptions {
	opt := &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb.Markup()
	}
	return opt
}

func (b *Bot) reply(ctx context.Context, req *router.Request, text string, kb *tgui.Inline) error {
	_, err := req.Reply(ctx, text, htmlOpts(kb))
	return err
}

// savedGroup returns "" when the chat has none.
func (b *Bot) savedGroup(ctx context.Context, chatID int64) (string, error) {
	g, err := b.store.GetGroup(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return g, err
}

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	chat := req.Chat.ChatID
	g, err := b.savedGroup(ctx, chat)
	if err != nil {
		return err
	}
	if g != "" {
		b.states.Set(chat, State{Step: StepAskDate, Group: g})
		return b.reply(ctx, req, welcomeBackText(g), dateKeyboard(b.today()))
	}
	b.states.Reset(chat)
	b.states.Set(chat, State{Step: StepAskGroup})
	return b.reply(ctx, req, welcomeText(), nil)
}

func (b *Bot) cmdSchedule(ctx context.Context, req *router.Request) error {
	chat := req.Chat.ChatID
	g, err := b.savedGroup(ctx, chat)
	if err != nil {
		return err
	}
	if g == "" {
		return b.reply(ctx, req, noGroupText(), nil)
	}
	b.states.Set(chat, State{Step: StepAskDate, Group: g})
	return b.reply(ctx, req, pickDateText(g), dateKeyboard(b.today()))
}

func (b *Bot) cmdMyGroup(ctx context.Context, req *router.Request) error {
	g, err := b.savedGroup(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if g == "" {
		return b.reply(ctx, req, noSavedGroupText(), nil)
	}
	return b.reply(ctx, req, myGroupText(g), nil)
}

func (b *Bot) cmdChangeGroup(ctx context.Context, req *router.Request) error {
	chat := req.Chat.ChatID
	b.states.Reset(chat)
	b.states.Set(chat, State{Step: StepAskGroup})
	return b.reply(ctx, req, changeGroupText(), nil)
}

func (b *Bot) cmdDeleteGroup(ctx context.Context, req *router.Request) error {
	chat := req.Chat.ChatID
	if err := b.store.DeleteGroup(ctx, chat); err != nil {
		return err
	}
	b.states.Reset(chat)
	req.Logger.Info("group deleted")
	return b.reply(ctx, req, groupDeletedText(), nil)
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	return b.reply(ctx, req, statsText(b.svc.Stats()), nil)
}

// HandleText drives the conversation for plain messages.
func (b *Bot) HandleText(ctx context.Context, req *router.Request) error {
	chat := req.Chat.ChatID
	text := strings.TrimSpace(req.Text)
	st := b.states.Get(chat)

	switch st.Step {
	case StepNone:
		g, err := b.savedGroup(ctx, chat)
		if err != nil {
			return err
		}
		if g != "" {
			b.states.Set(chat, State{Step: StepAskDate, Group: g})
			return b.reply(ctx, req, pickDateText(g), dateKeyboard(b.today()))
		}
		b.states.Set(chat, State{Step: StepAskGroup})
		return b.reply(ctx, req, welcomeText(), nil)

	case StepAskGroup:
		ok, listed := b.groupAllowed(text)
		if !ok {
			return b.reply(ctx, req, groupRejectedText(listed), nil)
		}
		if err := b.store.SaveGroup(ctx, chat, text); err != nil {
			return err
		}
		b.states.Set(chat, State{Step: StepAskDate, Group: text})
		req.Logger.Info("group saved", logx.String("group", text))
		return b.reply(ctx, req, groupSavedText(text), dateKeyboard(b.today()))

	case StepAskDate:
		day, err := dates.Parse(text, b.loc)
		if err != nil {
			return b.reply(ctx, req, badDateText(), nil)
		}
		g := st.Group
		if g == "" {
			if g, err = b.savedGroup(ctx, chat); err != nil {
				return err
			}
		}
		if g == "" {
			b.states.Set(chat, State{Step: StepAskGroup})
			return b.reply(ctx, req, noGroupText(), nil)
		}
		return b.fetchAndSend(ctx, req, g, day)
	}
	return b.reply(ctx, req, notUnderstoodText(), nil)
}

func (b *Bot) cbManual(ctx context.Context, req *router.Request, _ string) error {
	b.states.Set(req.Chat.ChatID, State{Step: StepAskDate})
	_ = req.Answer(ctx, "", false)
	return b.reply(ctx, req, manualDateText(), nil)
}

func (b *Bot) cbPick(ctx context.Context, req *router.Request, payload string) error {
	day, err := dates.Parse(payload, b.loc)
	if err != nil {
		return req.Answer(ctx, "❌ Ошибка даты", true)
	}
	chat := req.Chat.ChatID
	g := b.states.Get(chat).Group
	if g == "" {
		if g, err = b.savedGroup(ctx, chat); err != nil {
			return err
		}
	}
	if g == "" {
		return req.Answer(ctx, "❌ Группа не выбрана. Выполните /start", true)
	}
	_ = req.Answer(ctx, "", false)
	return b.fetchAndSend(ctx, req, g, day)
}
