package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "schedbot/pkg/logx"
)

// fileStore keeps every chat's group in one JSON object:
//
//	{"123456789": "108", "-100200300": "205"}
//
// The whole file is rewritten through a temp file and rename on each change.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	groups map[int64]string
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	groups, err := loadGroups(path)
	if err != nil {
		// A damaged file should not keep the bot down; users re-pick their group.
		log.Warn("group file unreadable, starting empty", logx.String("path", path), logx.Err(err))
		groups = map[int64]string{}
	}
	log.Info("group file loaded", logx.String("path", path), logx.Int("chats", len(groups)))
	return &fileStore{log: log, path: path, groups: groups}, nil
}

func loadGroups(path string) (map[int64]string, error) {
	out := map[int64]string{}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return out, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			out[id] = v
		}
	}
	return out, nil
}

func (s *fileStore) GetGroup(ctx context.Context, chatID int64) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	g, ok := s.groups[chatID]
	if !ok {
		return "", ErrNotFound
	}
	return g, nil
}

func (s *fileStore) SaveGroup(ctx context.Context, chatID int64, group string) error {
	_ = ctx
	group = strings.TrimSpace(group)
	if group == "" {
		return errors.New("storage: empty group")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	prev, had := s.groups[chatID]
	if had && prev == group {
		return nil
	}
	s.groups[chatID] = group
	if err := s.flushLocked(); err != nil {
		if had {
			s.groups[chatID] = prev
		} else {
			delete(s.groups, chatID)
		}
		return err
	}
	return nil
}

func (s *fileStore) DeleteGroup(ctx context.Context, chatID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	prev, had := s.groups[chatID]
	if !had {
		return nil
	}
	delete(s.groups, chatID)
	if err := s.flushLocked(); err != nil {
		s.groups[chatID] = prev
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) flushLocked() error {
	raw := make(map[string]string, len(s.groups))
	for id, g := range s.groups {
		raw[strconv.FormatInt(id, 10)] = g
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.log.Debug("group file written", logx.Int("chats", len(raw)))
	return nil
}
