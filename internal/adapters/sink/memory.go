package sink

import (
	"context"
	"sync"
	"time"

	"github.com/okian/zen/internal/domain/model"
)

// MemorySink records actions in memory. Failures can be injected per action type.
type MemorySink struct {
	mu      sync.Mutex
	actions []Action
	fail    map[ActionType]error
}

// NewMemorySink returns an empty recorder.
func NewMemorySink() *MemorySink {
	return &MemorySink{fail: make(map[ActionType]error)}
}

// FailWith makes every subsequent action of type t return err. A nil err clears it.
func (s *MemorySink) FailWith(t ActionType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, t)
		return
	}
	s.fail[t] = err
}

func (s *MemorySink) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return s.record(Action{Type: ActionDeleteMessage, ChannelID: channelID, MessageID: messageID})
}

func (s *MemorySink) SendWarning(_ context.Context, channelID, userID, text string) error {
	return s.record(Action{Type: ActionSendWarning, ChannelID: channelID, UserID: userID, Text: text})
}

func (s *MemorySink) NotifyGrant(_ context.Context, n model.Notice) error {
	return s.record(Action{Type: ActionNotify, ChannelID: n.ChannelID, UserID: n.UserID, Notice: &n})
}

// Actions returns a copy of the successfully recorded actions in order.
func (s *MemorySink) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

// Count returns how many recorded actions have type t.
func (s *MemorySink) Count(t ActionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actions {
		if a.Type == t {
			n++
		}
	}
	return n
}

func (s *MemorySink) record(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[a.Type]; err != nil {
		return err
	}
	a.At = time.Now()
	s.actions = append(s.actions, a)
	return nil
}
