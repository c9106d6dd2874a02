package serialmux

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/session"
)

type call struct {
	cmd     pipeline.Command
	chooser recording.DirectoryChooser
}

type fakeLoop struct {
	mu    sync.Mutex
	calls []call
	reply pipeline.Reply
	err   error
}

func (f *fakeLoop) Submit(_ context.Context, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{cmd, chooser})
	return f.reply, f.err
}

func fittedOutcome(index int) recording.Outcome {
	res := fit.NewFitter(fit.Options{CalibrationFactor: 0.00373}).Measure(fit.Params{Amplitude: 200, Center: 64, Sigma: 20})
	return recording.Outcome{Index: index, Fitted: true, Result: res, Measurement: session.MeasurementFromFit(index, res)}
}

func TestOutcomeLine(t *testing.T) {
	assert.Equal(t, "MEAS 00003 fwhm=47.10px duration=0.18 fs peak=200.0", OutcomeLine(fittedOutcome(3), "fs"))
	assert.Equal(t, "MEAS 00003 fwhm=47.10px duration=175.67 as peak=200.0", OutcomeLine(fittedOutcome(3), "as"))
	assert.Equal(t, "NOFIT 00012", OutcomeLine(recording.Outcome{Index: 12}, "fs"))
}

func TestHandle(t *testing.T) {
	out := t.TempDir()

	tests := []struct {
		name    string
		line    string
		reply   pipeline.Reply
		err     error
		want    string
		cmd     pipeline.Command
		chooser recording.DirectoryChooser
	}{
		{
			name:  "toggle starts with default chooser",
			line:  "TOGGLE",
			reply: pipeline.Reply{Status: recording.Status{State: recording.Recording, Root: "out/2026-10-15_09-00-00"}},
			want:  "OK recording out/2026-10-15_09-00-00",
			cmd:   pipeline.CmdToggle,
		},
		{
			name:    "toggle with dir",
			line:    "toggle bench a",
			reply:   pipeline.Reply{Status: recording.Status{State: recording.Recording, Root: "r"}},
			want:    "OK recording r",
			cmd:     pipeline.CmdToggle,
			chooser: recording.StaticChooser(filepath.Join(out, "bench a")),
		},
		{
			name:  "toggle stops",
			line:  "TOGGLE",
			reply: pipeline.Reply{Status: recording.Status{State: recording.Idle}},
			want:  "OK idle",
			cmd:   pipeline.CmdToggle,
		},
		{
			name:  "extract fitted",
			line:  "EXTRACT",
			reply: pipeline.Reply{Outcome: fittedOutcome(7)},
			want:  "OK extract 00007",
			cmd:   pipeline.CmdExtract,
		},
		{
			name:  "extract without fit",
			line:  "extract",
			reply: pipeline.Reply{Outcome: recording.Outcome{Index: 8}},
			want:  "OK extract 00008",
			cmd:   pipeline.CmdExtract,
		},
		{
			name:  "extract before any session",
			line:  "EXTRACT",
			reply: pipeline.Reply{Err: recording.ErrNoSession},
			want:  "ERR no recording directory found, start recording first",
			cmd:   pipeline.CmdExtract,
		},
		{
			name: "exit",
			line: "QUIT",
			want: "OK exit",
			cmd:  pipeline.CmdExit,
		},
		{
			name: "loop stopped",
			line: "EXIT",
			err:  pipeline.ErrStopped,
			want: "ERR exit: " + pipeline.ErrStopped.Error(),
			cmd:  pipeline.CmdExit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := &fakeLoop{reply: tt.reply, err: tt.err}
			pad := NewControlPad(ControlPadConfig{Device: NewSerialMux(newPipePort()), Loop: loop, OutputDir: out})

			assert.Equal(t, tt.want, pad.Handle(context.Background(), tt.line))
			require.Len(t, loop.calls, 1)
			assert.Equal(t, tt.cmd, loop.calls[0].cmd)
			assert.Equal(t, tt.chooser, loop.calls[0].chooser)
		})
	}
}

func TestHandle_Rejected(t *testing.T) {
	loop := &fakeLoop{}
	pad := NewControlPad(ControlPadConfig{Device: NewSerialMux(newPipePort()), Loop: loop, OutputDir: t.TempDir()})

	assert.Equal(t, "ERR empty command", pad.Handle(context.Background(), "   "))
	assert.Equal(t, `ERR unknown command "FIRE"`, pad.Handle(context.Background(), "FIRE now"))
	assert.Contains(t, pad.Handle(context.Background(), "TOGGLE ../../etc"), "ERR path escapes base directory")
	assert.Empty(t, loop.calls)
}

func TestRun_RepliesAndOutcomes(t *testing.T) {
	port := newPipePort()
	m := NewSerialMux(port)
	loop := &fakeLoop{reply: pipeline.Reply{Status: recording.Status{State: recording.Idle}}}
	pad := NewControlPad(ControlPadConfig{Device: m, Loop: loop, OutputDir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monDone := make(chan error, 1)
	padDone := make(chan error, 1)
	go func() { monDone <- m.Monitor(ctx) }()

	// subscribe before any input reaches the mux
	id, lines := m.Subscribe()
	go func() { padDone <- pad.runLines(ctx, lines) }()

	port.Input("TOGGLE\n")
	require.Eventually(t, func() bool { return len(port.Output()) == 1 }, 2*time.Second, 5*time.Millisecond)

	pad.ShowOutcome(fittedOutcome(0))
	pad.ShowOutcome(recording.Outcome{Index: 1})
	assert.Equal(t, []string{"OK idle", "MEAS 00000 fwhm=47.10px duration=0.18 fs peak=200.0", "NOFIT 00001"}, port.Output())

	m.Unsubscribe(id)
	select {
	case err := <-padDone:
		assert.NoError(t, err, "closed device ends Run")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	cancel()
	assert.ErrorIs(t, <-monDone, context.Canceled)
}

type brokenDevice struct{}

func (brokenDevice) Subscribe() (string, <-chan string) { return "", nil }

func (brokenDevice) Unsubscribe(string) {}

func (brokenDevice) SendLine(string) error { return errors.New("unplugged") }

func TestShowOutcome_WriteErrorIsLogged(t *testing.T) {
	pad := NewControlPad(ControlPadConfig{Device: brokenDevice{}, Loop: &fakeLoop{}})
	assert.NotPanics(t, func() { pad.ShowOutcome(fittedOutcome(1)) })
	pad.ShowProfile(nil)
	pad.ShowFrame(nil)
}

func TestCommanderFunc(t *testing.T) {
	var got pipeline.Command
	c := CommanderFunc(func(_ context.Context, cmd pipeline.Command, _ recording.DirectoryChooser) (pipeline.Reply, error) {
		got = cmd
		return pipeline.Reply{}, nil
	})
	pad := NewControlPad(ControlPadConfig{Device: brokenDevice{}, Loop: c})
	assert.Equal(t, "OK exit", pad.Handle(context.Background(), "exit"))
	assert.Equal(t, pipeline.CmdExit, got)
}
