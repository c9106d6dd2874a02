package capture

import (
	"image"
	"sync"
	"time"

	"github.com/vova616/screenshot"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/monitoring"
)

// ScreenSource captures a rectangle of the desktop, for beam profilers whose
// vendor software only offers an on-screen live view.
type ScreenSource struct {
	mu     sync.Mutex
	rect   image.Rectangle
	grab   func(image.Rectangle) (*image.RGBA, error)
	seq    uint64
	closed bool
	misses uint64
}

// NewScreenSource captures rect; an empty rect selects the whole primary screen.
func NewScreenSource(rect image.Rectangle) (*ScreenSource, error) {
	if rect.Empty() {
		full, err := screenshot.ScreenRect()
		if err != nil {
			return nil, err
		}
		rect = full
	}
	return &ScreenSource{rect: rect, grab: screenshot.CaptureRect}, nil
}

// TryReadFrame grabs the rectangle. Grab failures are logged and reported as
// misses; the display server may be momentarily unavailable.
func (s *ScreenSource) TryReadFrame() (*frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	img, err := s.grab(s.rect)
	if err != nil || img == nil {
		s.misses++
		if s.misses == 1 || s.misses%100 == 0 {
			monitoring.Logf("screen capture miss #%d: %v", s.misses, err)
		}
		return nil, false
	}
	s.seq++
	f := frame.FromImage(img)
	f.Seq = s.seq
	f.CapturedAt = time.Now()
	return f, true
}

// Rect returns the captured rectangle.
func (s *ScreenSource) Rect() image.Rectangle { return s.rect }

// Close stops capturing.
func (s *ScreenSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
