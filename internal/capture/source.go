// Package capture provides the frame sources the capture loop pulls from.
// A source is polled once per tick; a miss is transient and never an error.
package capture

import (
	"errors"
	"sync"

	"github.com/banshee-data/pulse.report/internal/frame"
)

// ErrClosed is returned when opening or reading from a closed source.
var ErrClosed = errors.New("capture source closed")

// Source yields frames on demand.
type Source interface {
	// TryReadFrame returns the next frame, or false when none is available
	// right now. A false return is a transient miss, not a failure.
	TryReadFrame() (*frame.Frame, bool)

	// Close releases the underlying device.
	Close() error
}

// Sequence is a Source that replays a fixed list of frames, one per read,
// then reports misses. Nil entries produce a miss at that position.
type Sequence struct {
	mu     sync.Mutex
	frames []*frame.Frame
	next   int
	reads  int
	closed bool
}

// NewSequence creates a Sequence over the given frames.
func NewSequence(frames ...*frame.Frame) *Sequence {
	return &Sequence{frames: frames}
}

// TryReadFrame returns the next queued frame.
func (s *Sequence) TryReadFrame() (*frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.closed || s.next >= len(s.frames) {
		return nil, false
	}
	f := s.frames[s.next]
	s.next++
	if f == nil {
		return nil, false
	}
	return f, true
}

// Push appends frames to the end of the queue.
func (s *Sequence) Push(frames ...*frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

// Remaining reports how many queued entries have not been read.
func (s *Sequence) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.next
}

// Reads reports how many times TryReadFrame was called.
func (s *Sequence) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close marks the sequence closed; further reads miss.
func (s *Sequence) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
