// Package transport holds the chat-platform neutral types shared by the
// Telegram adapter, the router and the bot.
package transport

import "context"

// ParseModeHTML is the only rich-text mode the bot sends.
const ParseModeHTML = "HTML"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update carries exactly one of Message or Callback, matching Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	Text         string
}

// Callback is an inline keyboard press. Data is the button payload.
type Callback struct {
	ID        string
	ChatID    int64
	ThreadID  int
	FromID    int64
	MessageID int
	Data      string
}

// ChatTarget addresses a chat, or a forum topic inside it when ThreadID is set.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a sent message for edits and deletes.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkupAdapter is passed through untouched (*telebot.ReplyMarkup for Telegram).
	ReplyMarkupAdapter any
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// AnswerCallback stops the button spinner; alert shows text as a modal.
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a "/" command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
