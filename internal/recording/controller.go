// Package recording implements the Idle/Recording state machine that owns the
// active session and turns per-tick frames into persisted artifacts.
package recording

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/session"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// TimestampLayout names session directories.
const TimestampLayout = "2006-01-02_15-04-05"

var (
	// ErrSessionStart means the session layout or video could not be
	// created. The controller stays Idle.
	ErrSessionStart = errors.New("session start failed")

	// ErrNoSession refuses extraction before any session has been started.
	ErrNoSession = errors.New("no recording directory found, start recording first")

	// ErrNoFrame means the source had no frame for a single-sample extraction.
	ErrNoFrame = errors.New("no frame available")
)

// State of the controller.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameSource supplies the fresh frame for a single-sample extraction.
type FrameSource interface {
	TryReadFrame() (*frame.Frame, bool)
}

// Outcome describes what was persisted for one frame.
type Outcome struct {
	Index int
	// Fitted is false when the fit did not converge; Result and
	// Measurement are then zero.
	Fitted      bool
	Result      fit.Result
	Measurement session.Measurement
}

// Status is a point-in-time view for control surfaces.
type Status struct {
	State     State
	SessionID string
	Root      string
	NextIndex int
	Stats     session.Stats
	LastRoot  string
}

// Config wires a Controller.
type Config struct {
	FS        fsutil.FileSystem
	Clock     timeutil.Clock
	Store     session.Options
	Fitter    *fit.Fitter
	Extractor *profile.Extractor
	// Journal observes sessions and frames. Nil discards.
	Journal Journal
}

// Controller owns at most one active session. Its methods are called from
// the capture loop goroutine; Status may be called from anywhere.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	state State
	sess  *session.Session
	store *session.Store
	// last is the most recent session, kept after stop for extraction.
	last *session.Session
}

// New returns an Idle controller. Zero-valued collaborators take defaults.
func New(cfg Config) *Controller {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Fitter == nil {
		cfg.Fitter = fit.NewFitter(fit.DefaultOptions())
	}
	if cfg.Extractor == nil {
		cfg.Extractor = profile.NewExtractor(profile.DefaultOptions())
	}
	if cfg.Journal == nil {
		cfg.Journal = nopJournal{}
	}
	return &Controller{cfg: cfg}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the active session, or nil when Idle.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Status reports the controller state and active session counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	if c.sess != nil {
		st.SessionID = c.sess.ID.String()
		st.Root = c.sess.Root
		st.NextIndex = c.sess.NextIndex()
		st.Stats = c.store.Stats()
	}
	if c.last != nil {
		st.LastRoot = c.last.Root
	}
	return st
}

// Start begins a session under a timestamped directory inside the chosen
// base directory. Starting while Recording, or a cancelled choice, is a
// no-op. Failures wrap ErrSessionStart and leave the controller Idle.
func (c *Controller) Start(chooser DirectoryChooser) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Recording {
		return nil
	}
	base, ok := chooser.ChooseDirectory()
	if !ok {
		monitoring.Logf("No directory selected.")
		return nil
	}

	now := c.cfg.Clock.Now()
	root := c.uniqueRoot(filepath.Join(base, now.Format(TimestampLayout)))
	sess := session.New(root, now)
	store, err := session.Begin(c.cfg.FS, sess, c.cfg.Store)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionStart, err)
	}

	c.sess, c.store, c.state = sess, store, Recording
	c.last = sess
	if err := c.cfg.Journal.SessionStarted(sess); err != nil {
		monitoring.Logf("journal: session %s start: %v", sess.ID, err)
	}
	monitoring.Logf("Recording started: %s", root)
	return nil
}

// uniqueRoot appends _1, _2... when root already exists so a restart within
// the same second never reuses a prior session's directory.
func (c *Controller) uniqueRoot(root string) string {
	candidate := root
	for i := 1; c.cfg.FS.Exists(candidate); i++ {
		candidate = fmt.Sprintf("%s_%d", root, i)
	}
	return candidate
}

// Stop ends the active session. Stopping while Idle is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Idle {
		return nil
	}
	sess, store := c.sess, c.store
	c.sess, c.store, c.state = nil, nil, Idle

	err := store.End()
	if jerr := c.cfg.Journal.SessionEnded(sess, store.Stats(), c.cfg.Clock.Now()); jerr != nil {
		monitoring.Logf("journal: session %s end: %v", sess.ID, jerr)
	}
	monitoring.Logf("Recording stopped: %s (%d frames)", sess.Root, sess.NextIndex())
	if err != nil {
		return fmt.Errorf("end session %s: %w", sess.Root, err)
	}
	return nil
}

// Toggle starts when Idle and stops when Recording.
func (c *Controller) Toggle(chooser DirectoryChooser) error {
	if c.State() == Recording {
		return c.Stop()
	}
	return c.Start(chooser)
}

// ProcessFrame records one tick's frame when Recording: video and still
// always, then a row and plot if the fit converges. The index advances
// either way. It returns false when Idle.
func (c *Controller) ProcessFrame(f *frame.Frame, prof profile.Profile) (Outcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return Outcome{}, false, nil
	}
	idx := c.sess.Advance()
	if err := c.store.AppendFrame(f, idx); err != nil {
		return Outcome{Index: idx}, true, fmt.Errorf("frame %s: %w", monitoring.FrameLabel(idx), err)
	}
	out, err := c.measure(c.store.AppendMeasurement, c.sess, idx, prof, false)
	return out, true, err
}

// ExtractSample pulls one fresh frame from src, fits it and appends a row
// and an extraction plot to the active session, or to the last session once
// stopped. The row carries the session's next periodic index without
// consuming it, so video frame k, Frames/frame_k.jpg and Plots/frame_k.png
// stay aligned. It never writes video or stills.
func (c *Controller) ExtractSample(src FrameSource) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, store := c.sess, c.store
	if sess == nil {
		sess = c.last
	}
	if sess == nil {
		return Outcome{}, ErrNoSession
	}

	f, ok := src.TryReadFrame()
	if !ok {
		return Outcome{}, ErrNoFrame
	}

	if store == nil {
		var err error
		store, err = session.Reopen(c.cfg.FS, sess, c.cfg.Store)
		if err != nil {
			return Outcome{}, err
		}
		defer func() {
			if err := store.End(); err != nil {
				monitoring.Logf("close reopened session %s: %v", sess.Root, err)
			}
		}()
	}

	idx := sess.NextIndex()
	out, err := c.measure(store.AppendExtraction, sess, idx, c.cfg.Extractor.Extract(f), true)
	if err == nil && out.Fitted {
		monitoring.Logf("Data extracted and saved: frame %s", monitoring.FrameLabel(idx))
	}
	return out, err
}

// appendFunc persists one converged fit.
type appendFunc func(index int, profile []float64, res fit.Result) (session.Measurement, error)

// measure fits prof and persists the result under idx with persist. A
// non-converging fit is logged and journaled but is not an error. Caller
// holds c.mu.
func (c *Controller) measure(persist appendFunc, sess *session.Session, idx int, prof profile.Profile, extracted bool) (Outcome, error) {
	out := Outcome{Index: idx}
	entry := FrameEntry{Index: idx, At: c.cfg.Clock.Now(), Extracted: extracted}

	res, err := c.cfg.Fitter.Fit(prof)
	switch {
	case errors.Is(err, fit.ErrNoConvergence):
		monitoring.Logf("Error processing frame %s: %v", monitoring.FrameLabel(idx), err)
		c.journal(sess, entry)
		return out, nil
	case err != nil:
		return out, err
	}

	m, err := persist(idx, prof, res)
	if err != nil {
		return out, fmt.Errorf("frame %s: %w", monitoring.FrameLabel(idx), err)
	}
	out.Fitted, out.Result, out.Measurement = true, res, m
	entry.Fitted, entry.Measurement = true, m
	c.journal(sess, entry)
	return out, nil
}

func (c *Controller) journal(sess *session.Session, e FrameEntry) {
	if err := c.cfg.Journal.FrameRecorded(sess, e); err != nil {
		monitoring.Logf("journal: frame %s: %v", monitoring.FrameLabel(e.Index), err)
	}
}

// Close stops any active session.
func (c *Controller) Close() error {
	return c.Stop()
}

