package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetGroup when the chat has no saved group.
var ErrNotFound = errors.New("storage: group not found")

var errClosed = errors.New("storage: closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists one group per chat.
type Store interface {
	GetGroup(ctx context.Context, chatID int64) (string, error)
	SaveGroup(ctx context.Context, chatID int64, group string) error
	DeleteGroup(ctx context.Context, chatID int64) error
	Close() error
}
