package bot

import "sync"

type Step string

const (
	StepNone     Step = ""
	StepAskGroup Step = "ASK_GROUP"
	StepAskDate  Step = "ASK_DATE"
)

// State is one chat's position in the conversation.
type State struct {
	Step  Step
	Group string
}

// States holds conversational state per chat, in memory only.
type States struct {
	mu sync.Mutex
	m  map[int64]State
}

func NewStates() *States {
	return &States{m: map[int64]State{}}
}

func (s *States) Get(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[chatID]
}

// Set merges patch into the chat's state; empty fields keep their value.
func (s *States) Set(chatID int64, patch State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.m[chatID]
	if patch.Step != StepNone {
		cur.Step = patch.Step
	}
	if patch.Group != "" {
		cur.Group = patch.Group
	}
	s.m[chatID] = cur
	return cur
}

func (s *States) Reset(chatID int64) {
	s.mu.Lock()
	delete(s.m, chatID)
	s.mu.Unlock()
}

func (s *States) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
