package chat

import (
	"context"
	"fmt"
	"sync"
)

// StubRole is a deterministic role for tests. It replays a scripted sequence
// of replies; once the script is exhausted it repeats the final entry.
type StubRole struct {
	name    RoleID
	replies []string
	calls   int
	err     error
	mu      sync.Mutex
}

// NewStubRole creates a stub that replies with the given contents in order.
func NewStubRole(name RoleID, replies ...string) *StubRole {
	return &StubRole{name: name, replies: replies}
}

// NewFailingRole creates a stub whose Invoke always returns err.
func NewFailingRole(name RoleID, err error) *StubRole {
	return &StubRole{name: name, err: err}
}

// Name implements Role.
func (s *StubRole) Name() RoleID {
	return s.name
}

// Invoke implements Role.
func (s *StubRole) Invoke(ctx context.Context, _ []Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, fmt.Errorf("stub role %s cancelled: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return Message{}, s.err
	}
	if len(s.replies) == 0 {
		return Message{}, fmt.Errorf("stub role %s has no scripted replies", s.name)
	}

	idx := s.calls
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	s.calls++

	return NewMessage(s.name, s.replies[idx]), nil
}

// Calls returns how many times the stub has been invoked.
func (s *StubRole) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
