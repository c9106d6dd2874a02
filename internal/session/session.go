package session

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies one recording run and carries its frame-index counter.
// It is created on start and owned by the recording controller; the counter
// only moves forward.
type Session struct {
	ID        uuid.UUID
	Root      string
	StartedAt time.Time

	next int
}

// New returns a session rooted at root with its counter at 0.
func New(root string, startedAt time.Time) *Session {
	return &Session{ID: uuid.New(), Root: root, StartedAt: startedAt}
}

// NextIndex is the index the next recorded frame will use.
func (s *Session) NextIndex() int { return s.next }

// Advance returns the current index and moves the counter on by one.
func (s *Session) Advance() int {
	i := s.next
	s.next++
	return i
}
