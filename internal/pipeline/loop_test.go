package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/capture"
	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/session"
	"github.com/banshee-data/pulse.report/internal/testutil"
	"github.com/banshee-data/pulse.report/internal/timeutil"
	"github.com/banshee-data/pulse.report/internal/video"
)

const (
	testW = 160
	testH = 48
)

var epoch = time.Date(2025, 2, 25, 9, 0, 0, 0, time.UTC)

type recordingDisplay struct {
	mu       sync.Mutex
	profiles []profile.Profile
	frames   []*frame.Frame
	outcomes []recording.Outcome
}

func (d *recordingDisplay) ShowProfile(p profile.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles = append(d.profiles, p)
}

func (d *recordingDisplay) ShowFrame(f *frame.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, f)
}

func (d *recordingDisplay) ShowOutcome(o recording.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, o)
}

type harness struct {
	fs      *fsutil.MemoryFileSystem
	clock   *timeutil.MockClock
	src     *capture.Sequence
	ctrl    *recording.Controller
	display *recordingDisplay
	loop    *Loop
}

func newHarness(t *testing.T, frames ...*frame.Frame) *harness {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	h := &harness{
		fs:      fsutil.NewMemoryFileSystem(),
		clock:   timeutil.NewMockClock(epoch),
		src:     capture.NewSequence(frames...),
		display: &recordingDisplay{},
	}
	require.NoError(t, h.fs.MkdirAll("out", 0o755))

	ext := profile.NewExtractor(profile.DefaultOptions())
	h.ctrl = recording.New(recording.Config{
		FS:    h.fs,
		Clock: h.clock,
		Store: session.Options{
			Video:       video.Options{FPS: 15, Width: testW, Height: testH, Quality: 75},
			JPEGQuality: 75,
		},
		Fitter:    fit.NewFitter(fit.DefaultOptions()),
		Extractor: ext,
	})
	h.loop = New(Config{
		Source:     h.src,
		Extractor:  ext,
		Controller: h.ctrl,
		Displays:   []Display{h.display},
		Clock:      h.clock,
		Chooser:    recording.StaticChooser("out"),
	})
	return h
}

func TestTick_EndToEndRecording(t *testing.T) {
	h := newHarness(t, testutil.RecordingFrames(10, testW, testH)...)
	require.NoError(t, h.ctrl.Start(recording.StaticChooser("out")))
	sess := h.ctrl.Session()

	for i := 0; i < 10; i++ {
		assert.True(t, h.loop.Tick(), "tick %d", i)
	}
	assert.False(t, h.loop.Tick(), "source exhausted")
	require.NoError(t, h.ctrl.Stop())

	stills, err := h.fs.List(filepath.Join(sess.Root, session.FramesDir))
	require.NoError(t, err)
	assert.Len(t, stills, 10)

	plots, err := h.fs.List(filepath.Join(sess.Root, session.PlotsDir))
	require.NoError(t, err)
	assert.Len(t, plots, 9)
	assert.NotContains(t, plots, session.PlotName(9))

	data, err := h.fs.ReadFile(video.Path(sess.Root))
	require.NoError(t, err)
	assert.Len(t, video.SplitMJPEG(data), 10)

	rows, err := session.ReadMeasurements(h.fs, sess.Root)
	require.NoError(t, err)
	got := make([]int, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Index)
		assert.Positive(t, r.FWHM)
		assert.InDelta(t, r.FWHM*0.00373, r.PulseDuration, 1e-12)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7, 8}, got); diff != "" {
		t.Errorf("row indices (-want +got):\n%s", diff)
	}

	assert.Len(t, h.display.profiles, 10)
	assert.Len(t, h.display.frames, 10)
	require.Len(t, h.display.outcomes, 10)
	assert.False(t, h.display.outcomes[9].Fitted)
	assert.Equal(t, Stats{Ticks: 11, Frames: 10, Misses: 1}, h.loop.Stats())
}

func TestTick_MissSkipsEverything(t *testing.T) {
	good := testutil.GaussianFrame(testW, testH, 200, 80, 10)
	h := newHarness(t, nil, good, nil)
	require.NoError(t, h.ctrl.Start(recording.StaticChooser("out")))
	sess := h.ctrl.Session()

	assert.False(t, h.loop.Tick())
	assert.Equal(t, 0, sess.NextIndex())
	assert.Empty(t, h.display.profiles)

	assert.True(t, h.loop.Tick())
	assert.Equal(t, 1, sess.NextIndex())

	assert.False(t, h.loop.Tick())
	assert.Equal(t, 1, sess.NextIndex())
}

func TestTick_IdleOnlyDisplays(t *testing.T) {
	good := testutil.GaussianFrame(testW, testH, 200, 80, 10)
	h := newHarness(t, good)

	assert.True(t, h.loop.Tick())
	assert.Len(t, h.display.profiles, 1)
	assert.Len(t, h.display.profiles[0], testW)
	assert.Empty(t, h.display.outcomes)
	assert.False(t, h.fs.Exists(filepath.Join("out", recordingDirName(epoch))))
}

func recordingDirName(t time.Time) string { return t.Format(recording.TimestampLayout) }

func TestRun_CommandsBetweenTicks(t *testing.T) {
	frames := make([]*frame.Frame, 0, 4)
	for i := 0; i < 4; i++ {
		frames = append(frames, testutil.GaussianFrame(testW, testH, 200, 80, 10))
	}
	h := newHarness(t, frames...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- h.loop.Run(ctx) }()
	require.Eventually(t, func() bool { return len(h.clock.Tickers()) == 1 }, time.Second, time.Millisecond)

	rep, err := h.loop.Toggle(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rep.Err)
	assert.Equal(t, recording.Idle, rep.Before)
	assert.Equal(t, recording.Recording, rep.Status.State)
	assert.Equal(t, filepath.Join("out", recordingDirName(epoch)), rep.Status.Root)

	for i := 1; i <= 3; i++ {
		h.clock.Advance(DefaultInterval)
		want := uint64(i)
		require.Eventually(t, func() bool { return h.loop.Stats().Ticks == want }, time.Second, time.Millisecond)
	}

	rep, err = h.loop.Extract(ctx)
	require.NoError(t, err)
	require.NoError(t, rep.Err)
	assert.Equal(t, 3, rep.Outcome.Index)
	assert.True(t, rep.Outcome.Fitted)
	assert.Equal(t, 3, rep.Status.NextIndex, "extraction leaves the periodic counter alone")

	rep, err = h.loop.Exit(ctx)
	require.NoError(t, err)
	assert.Equal(t, recording.Recording, rep.Before)
	assert.Equal(t, recording.Idle, rep.Status.State)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after exit")
	}
	assert.True(t, h.clock.Tickers()[0].Stopped())

	_, err = h.loop.Toggle(ctx, nil)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRun_CancelStopsRecording(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.loop.Run(ctx) }()

	rep, err := h.loop.Toggle(ctx, recording.StaticChooser("out"))
	require.NoError(t, err)
	require.Equal(t, recording.Recording, rep.Status.State)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, recording.Idle, h.ctrl.State())
	<-h.loop.Done()
}

func TestRun_ToggleCancelledChoice(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	rep, err := h.loop.Toggle(ctx, recording.StaticChooser(""))
	require.NoError(t, err)
	assert.NoError(t, rep.Err)
	assert.Equal(t, recording.Idle, rep.Status.State)

	rep, err = h.loop.Extract(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Err, recording.ErrNoSession)
}

func TestParseCommand(t *testing.T) {
	for in, want := range map[string]Command{
		"toggle":    CmdToggle,
		" EXTRACT ": CmdExtract,
		"Exit":      CmdExit,
		"quit":      CmdExit,
	} {
		got, err := ParseCommand(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCommand("record")
	assert.Error(t, err)
	assert.Equal(t, "extract", CmdExtract.String())
}
