package recording

import (
	"time"

	"github.com/banshee-data/pulse.report/internal/session"
)

// DirectoryChooser picks the base directory a new session is created in.
// It returns false when the user cancelled.
type DirectoryChooser interface {
	ChooseDirectory() (string, bool)
}

// StaticChooser always chooses the same directory; empty means cancelled.
type StaticChooser string

// ChooseDirectory implements DirectoryChooser.
func (s StaticChooser) ChooseDirectory() (string, bool) {
	return string(s), s != ""
}

// ChooserFunc adapts a function to DirectoryChooser.
type ChooserFunc func() (string, bool)

// ChooseDirectory implements DirectoryChooser.
func (f ChooserFunc) ChooseDirectory() (string, bool) { return f() }

// FrameEntry is one processed frame as seen by a Journal.
type FrameEntry struct {
	Index       int
	At          time.Time
	Fitted      bool
	Extracted   bool
	Measurement session.Measurement
}

// Journal observes the session lifecycle. Journal errors are logged and
// never interrupt recording.
type Journal interface {
	SessionStarted(s *session.Session) error
	FrameRecorded(s *session.Session, e FrameEntry) error
	SessionEnded(s *session.Session, stats session.Stats, at time.Time) error
}

type nopJournal struct{}

func (nopJournal) SessionStarted(*session.Session) error { return nil }

func (nopJournal) FrameRecorded(*session.Session, FrameEntry) error { return nil }

func (nopJournal) SessionEnded(*session.Session, session.Stats, time.Time) error { return nil }
