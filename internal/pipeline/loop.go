// Package pipeline drives the fixed-period capture loop: pull a frame,
// extract its profile, update the displays and, while recording, hand the
// frame to the recording controller. Control commands are queued and run on
// the loop goroutine between ticks, so at most one tick is ever in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pulse.report/internal/capture"
	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// DefaultInterval is the tick period, about 20 Hz.
const DefaultInterval = 50 * time.Millisecond

// ErrStopped is returned by Submit once the loop has exited.
var ErrStopped = errors.New("capture loop stopped")

// Display receives the live view. It must not block for long: it runs
// inside the tick.
type Display interface {
	ShowProfile(p profile.Profile)
	ShowFrame(f *frame.Frame)
}

// MeasurementDisplay is implemented by displays that also want each
// recorded frame's outcome.
type MeasurementDisplay interface {
	ShowOutcome(o recording.Outcome)
}

// Config wires a Loop.
type Config struct {
	Source     capture.Source
	Extractor  *profile.Extractor
	Controller *recording.Controller
	Displays   []Display
	Clock      timeutil.Clock
	Interval   time.Duration
	// Chooser is used by toggle requests that do not carry their own.
	Chooser recording.DirectoryChooser
}

// Stats are loop counters.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Frames   uint64 `json:"frames"`
	Misses   uint64 `json:"misses"`
	Commands uint64 `json:"commands"`
}

// Loop is the single driver goroutine.
type Loop struct {
	cfg  Config
	reqs chan request
	done chan struct{}

	ticks, frames, misses, commands atomic.Uint64
}

// New returns a loop; call Run to start it.
func New(cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Extractor == nil {
		cfg.Extractor = profile.NewExtractor(profile.DefaultOptions())
	}
	if cfg.Chooser == nil {
		cfg.Chooser = recording.StaticChooser("")
	}
	return &Loop{
		cfg:  cfg,
		reqs: make(chan request),
		done: make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled or an Exit command arrives. Any active
// session is stopped on the way out.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case req := <-l.reqs:
			l.commands.Add(1)
			rep := l.handle(req)
			req.reply <- rep
			if req.cmd == CmdExit {
				return nil
			}
		case <-ticker.C():
			l.Tick()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Tick runs one iteration. It returns false when the source had no frame,
// in which case nothing else happens. Tick must only be called from the
// goroutine that owns the loop; tests call it directly instead of Run.
func (l *Loop) Tick() bool {
	l.ticks.Add(1)
	f, ok := l.cfg.Source.TryReadFrame()
	if !ok || f == nil {
		l.misses.Add(1)
		return false
	}
	l.frames.Add(1)

	prof := l.cfg.Extractor.Extract(f)
	for _, d := range l.cfg.Displays {
		d.ShowProfile(prof)
		d.ShowFrame(f)
	}

	if l.cfg.Controller == nil {
		return true
	}
	out, recorded, err := l.cfg.Controller.ProcessFrame(f, prof)
	if err != nil {
		monitoring.Logf("capture loop: %v", err)
	}
	if recorded {
		l.showOutcome(out)
	}
	return true
}

func (l *Loop) showOutcome(o recording.Outcome) {
	for _, d := range l.cfg.Displays {
		if md, ok := d.(MeasurementDisplay); ok {
			md.ShowOutcome(o)
		}
	}
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:    l.ticks.Load(),
		Frames:   l.frames.Load(),
		Misses:   l.misses.Load(),
		Commands: l.commands.Load(),
	}
}

func (l *Loop) shutdown() {
	if l.cfg.Controller == nil {
		return
	}
	if err := l.cfg.Controller.Stop(); err != nil {
		monitoring.Logf("capture loop: stop on exit: %v", err)
	}
}

func (l *Loop) handle(req request) Reply {
	var rep Reply
	ctrl := l.cfg.Controller
	if ctrl == nil && req.cmd != CmdExit {
		rep.Err = fmt.Errorf("%s: no recording controller", req.cmd)
		return rep
	}

	if ctrl != nil {
		rep.Before = ctrl.State()
	}
	switch req.cmd {
	case CmdToggle:
		chooser := req.chooser
		if chooser == nil {
			chooser = l.cfg.Chooser
		}
		if chooser == nil {
			chooser = recording.StaticChooser("")
		}
		rep.Err = ctrl.Toggle(chooser)
	case CmdExtract:
		rep.Outcome, rep.Err = ctrl.ExtractSample(l.cfg.Source)
		if rep.Err == nil {
			l.showOutcome(rep.Outcome)
		}
	case CmdExit:
		l.shutdown()
	default:
		rep.Err = fmt.Errorf("unknown command %d", int(req.cmd))
	}
	if ctrl != nil {
		rep.Status = ctrl.Status()
	}
	return rep
}
