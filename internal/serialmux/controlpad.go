package serialmux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/security"
	"github.com/banshee-data/pulse.report/internal/units"
)

// LineDevice is a line-oriented port, satisfied by *SerialMux.
type LineDevice interface {
	Subscribe() (string, <-chan string)
	Unsubscribe(id string)
	SendLine(line string) error
}

// Commander runs commands on the capture loop, satisfied by *pipeline.Loop.
type Commander interface {
	Submit(ctx context.Context, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, error)
}

// CommanderFunc adapts a function to Commander, so a pad can be built before
// the loop it drives.
type CommanderFunc func(ctx context.Context, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, error)

func (f CommanderFunc) Submit(ctx context.Context, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, error) {
	return f(ctx, cmd, chooser)
}

// ControlPadConfig wires a ControlPad.
type ControlPadConfig struct {
	Device LineDevice
	Loop   Commander
	// OutputDir bounds a directory given as "TOGGLE <dir>". A bare TOGGLE
	// uses the loop's default chooser.
	OutputDir      string
	DisplayUnit    string
	CommandTimeout time.Duration
}

// ControlPad turns pad lines into loop commands and echoes results. It is
// also a pipeline display: every recorded outcome is written to the pad.
type ControlPad struct {
	cfg ControlPadConfig
}

// NewControlPad returns a pad for cfg.
func NewControlPad(cfg ControlPadConfig) *ControlPad {
	if !units.IsValid(cfg.DisplayUnit) {
		cfg.DisplayUnit = units.FS
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	return &ControlPad{cfg: cfg}
}

// Run handles lines until ctx is cancelled or the device closes.
func (p *ControlPad) Run(ctx context.Context) error {
	id, lines := p.cfg.Device.Subscribe()
	defer p.cfg.Device.Unsubscribe(id)
	return p.runLines(ctx, lines)
}

func (p *ControlPad) runLines(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			p.send(p.Handle(ctx, line))
		}
	}
}

// Handle runs one pad line and returns the reply line.
func (p *ControlPad) Handle(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}
	cmd, err := pipeline.ParseCommand(fields[0])
	if err != nil {
		return "ERR " + err.Error()
	}

	var chooser recording.DirectoryChooser
	if cmd == pipeline.CmdToggle && len(fields) > 1 {
		dir, err := security.ResolveWithinDirectory(strings.Join(fields[1:], " "), p.cfg.OutputDir)
		if err != nil {
			return "ERR " + err.Error()
		}
		chooser = recording.StaticChooser(dir)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CommandTimeout)
	defer cancel()
	rep, err := p.cfg.Loop.Submit(ctx, cmd, chooser)
	if err != nil {
		return fmt.Sprintf("ERR %s: %v", cmd, err)
	}
	if rep.Err != nil {
		return "ERR " + rep.Err.Error()
	}

	switch cmd {
	case pipeline.CmdExtract:
		// the measurement itself reaches the pad through ShowOutcome
		return "OK extract " + monitoring.FrameLabel(rep.Outcome.Index)
	case pipeline.CmdExit:
		return "OK exit"
	}
	if rep.Status.State == recording.Recording {
		return "OK recording " + rep.Status.Root
	}
	return "OK idle"
}

// OutcomeLine formats a recorded frame for the pad display.
func OutcomeLine(o recording.Outcome, unit string) string {
	label := monitoring.FrameLabel(o.Index)
	if !o.Fitted {
		return "NOFIT " + label
	}
	m := o.Measurement
	return fmt.Sprintf("MEAS %s fwhm=%.2fpx duration=%s peak=%.1f",
		label, m.FWHM, units.FormatDuration(m.PulseDuration, unit), m.PeakIntensity)
}

// ShowProfile is a no-op; the pad has no graph.
func (p *ControlPad) ShowProfile(profile.Profile) {}

// ShowFrame is a no-op.
func (p *ControlPad) ShowFrame(*frame.Frame) {}

// ShowOutcome writes the outcome line to the pad.
func (p *ControlPad) ShowOutcome(o recording.Outcome) {
	p.send(OutcomeLine(o, p.cfg.DisplayUnit))
}

func (p *ControlPad) send(line string) {
	if err := p.cfg.Device.SendLine(line); err != nil {
		monitoring.Logf("control pad write %q: %v", line, err)
	}
}
