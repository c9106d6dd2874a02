package session

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/testutil"
	"github.com/banshee-data/pulse.report/internal/video"
)

var epoch = time.Date(2025, 2, 25, 14, 30, 0, 0, time.UTC)

func smallOptions() Options {
	return Options{Video: video.Options{FPS: 15, Width: 64, Height: 48, Quality: 80}, JPEGQuality: 80}
}

func fitted(t *testing.T) ([]float64, fit.Result) {
	t.Helper()
	params := fit.Params{Amplitude: 180, Center: 32, Sigma: 6}
	ys := params.Curve(64)
	res, err := fit.NewFitter(fit.Options{CalibrationFactor: 0.00373}).Fit(ys)
	require.NoError(t, err)
	return ys, res
}

func TestNames(t *testing.T) {
	assert.Equal(t, "frame_00000.jpg", FrameName(0))
	assert.Equal(t, "frame_00042.png", PlotName(42))
	assert.Equal(t, filepath.Join("r", "Frames", "frame_00007.jpg"), FramePath("r", 7))
	assert.Equal(t, filepath.Join("r", "Plots", "frame_00007.png"), PlotPath("r", 7))
	assert.Equal(t, filepath.Join("r", "intensity_data.csv"), TablePath("r"))
	assert.Equal(t, filepath.Join("r", "Plots", "extract_00007.png"), ExtractPlotPath("r", 7))
	assert.Equal(t, "Frame, FWHM (px), Pulse Duration (fs), Peak Intensity", Header)
}

func TestSession_Advance(t *testing.T) {
	s := New("root", epoch)
	assert.NotEqual(t, s.ID, New("root", epoch).ID)
	assert.Equal(t, 0, s.NextIndex())
	assert.Equal(t, 0, s.Advance())
	assert.Equal(t, 1, s.Advance())
	assert.Equal(t, 2, s.NextIndex())
}

func TestMeasurement_Row(t *testing.T) {
	m := Measurement{Index: 3, FWHM: 47.5, PulseDuration: 0.177175, PeakIntensity: 199}
	assert.Equal(t, "00003, 47.5, 0.177175, 199", m.Row())
}

func TestStore_FullLifecycle(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	sess := New("out/2025-02-25_14-30-00", epoch)
	require.NoError(t, fsys.MkdirAll("out", 0o755))

	st, err := Begin(fsys, sess, smallOptions())
	require.NoError(t, err)
	assert.True(t, st.Recording())
	assert.Same(t, sess, st.Session())

	ys, res := fitted(t)
	for i := 0; i < 3; i++ {
		idx := sess.Advance()
		require.NoError(t, st.AppendFrame(testutil.GaussianFrame(64, 48, 180, 32, 6), idx))
		if i == 1 {
			continue // unfitted frame keeps its still and video frame only
		}
		m, err := st.AppendMeasurement(idx, ys, res)
		require.NoError(t, err)
		assert.Equal(t, idx, m.Index)
	}
	require.NoError(t, st.End())
	require.NoError(t, st.End(), "second End is a no-op")

	assert.Equal(t, Stats{VideoFrames: 3, Stills: 3, Measurements: 2, Plots: 2}, st.Stats())

	stills, err := fsys.List(filepath.Join(sess.Root, FramesDir))
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_00000.jpg", "frame_00001.jpg", "frame_00002.jpg"}, stills)

	plots, err := fsys.List(filepath.Join(sess.Root, PlotsDir))
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_00000.png", "frame_00002.png"}, plots)

	rows, err := ReadMeasurements(fsys, sess.Root)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 2, rows[1].Index)
	assert.Equal(t, res.FWHM, rows[0].FWHM, "shortest float form round-trips")
	assert.Equal(t, res.PulseDuration, rows[0].PulseDuration)
	assert.Equal(t, res.Amplitude, rows[0].PeakIntensity)

	data, err := fsys.ReadFile(video.Path(sess.Root))
	require.NoError(t, err)
	assert.Len(t, video.SplitMJPEG(data), st.Stats().VideoFrames, "video count comes from the encoder")
}

func TestStore_WritesAfterEnd(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	st, err := Begin(fsys, New("s", epoch), smallOptions())
	require.NoError(t, err)
	require.NoError(t, st.End())

	ys, res := fitted(t)
	assert.ErrorIs(t, st.AppendFrame(testutil.FlatFrame(64, 48, 0), 0), ErrEnded)
	_, err = st.AppendMeasurement(0, ys, res)
	assert.ErrorIs(t, err, ErrEnded)
}

func TestReopen_AppendsToTable(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	sess := New("s", epoch)
	ys, res := fitted(t)

	st, err := Begin(fsys, sess, smallOptions())
	require.NoError(t, err)
	_, err = st.AppendMeasurement(sess.Advance(), ys, res)
	require.NoError(t, err)
	require.NoError(t, st.End())

	re, err := Reopen(fsys, sess, smallOptions())
	require.NoError(t, err)
	assert.False(t, re.Recording())
	assert.Error(t, re.AppendFrame(testutil.FlatFrame(64, 48, 0), 5), "no video after stop")

	idx := sess.NextIndex()
	m, err := re.AppendExtraction(idx, ys, res)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Index)
	assert.Equal(t, 1, sess.NextIndex(), "extraction does not consume the index")
	require.NoError(t, re.End())
	assert.Equal(t, Stats{Extractions: 1}, re.Stats())
	assert.True(t, fsys.Exists(ExtractPlotPath(sess.Root, 1)))
	assert.False(t, fsys.Exists(PlotPath(sess.Root, 1)))
	assert.False(t, fsys.Exists(FramePath(sess.Root, 1)))

	rows, err := ReadMeasurements(fsys, sess.Root)
	require.NoError(t, err)
	got := []int{}
	for _, r := range rows {
		got = append(got, r.Index)
	}
	if diff := cmp.Diff([]int{0, 1}, got); diff != "" {
		t.Errorf("row indices mismatch (-want +got):\n%s", diff)
	}
}

func TestReopen_MissingTable(t *testing.T) {
	_, err := Reopen(fsutil.NewMemoryFileSystem(), New("nope", epoch), smallOptions())
	assert.Error(t, err)
}

// failingFS wraps a filesystem and fails selected operations.
type failingFS struct {
	fsutil.FileSystem
	mkdirErr  error
	createErr map[string]error
}

func (f *failingFS) MkdirAll(path string, perm os.FileMode) error {
	if f.mkdirErr != nil {
		return f.mkdirErr
	}
	return f.FileSystem.MkdirAll(path, perm)
}

func (f *failingFS) Create(name string) (io.WriteCloser, error) {
	for suffix, err := range f.createErr {
		if strings.HasSuffix(name, suffix) {
			return nil, err
		}
	}
	return f.FileSystem.Create(name)
}

func TestBegin_Failures(t *testing.T) {
	denied := errors.New("permission denied")

	tests := []struct {
		name string
		fsys *failingFS
	}{
		{"mkdir", &failingFS{FileSystem: fsutil.NewMemoryFileSystem(), mkdirErr: denied}},
		{"table", &failingFS{FileSystem: fsutil.NewMemoryFileSystem(), createErr: map[string]error{MeasurementsFile: denied}}},
		{"video", &failingFS{FileSystem: fsutil.NewMemoryFileSystem(), createErr: map[string]error{video.Container: denied}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Begin(tt.fsys, New("s", epoch), smallOptions())
			assert.ErrorIs(t, err, denied)
		})
	}

	_, err := Begin(fsutil.NewMemoryFileSystem(), New("", epoch), smallOptions())
	assert.Error(t, err)
}

func TestStore_PlotFailureWritesNoRow(t *testing.T) {
	denied := errors.New("disk full")
	fsys := &failingFS{FileSystem: fsutil.NewMemoryFileSystem()}
	sess := New("s", epoch)
	st, err := Begin(fsys, sess, smallOptions())
	require.NoError(t, err)

	fsys.createErr = map[string]error{".png": denied}
	ys, res := fitted(t)
	_, err = st.AppendMeasurement(0, ys, res)
	assert.ErrorIs(t, err, denied)
	require.NoError(t, st.End())

	rows, err := ReadMeasurements(fsys, sess.Root)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_OnDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session")
	fsys := fsutil.OSFileSystem{}
	sess := New(root, epoch)

	st, err := Begin(fsys, sess, smallOptions())
	require.NoError(t, err)
	ys, res := fitted(t)
	idx := sess.Advance()
	require.NoError(t, st.AppendFrame(testutil.GaussianFrame(64, 48, 180, 32, 6), idx))
	_, err = st.AppendMeasurement(idx, ys, res)
	require.NoError(t, err)
	require.NoError(t, st.End())

	for _, p := range []string{FramePath(root, 0), PlotPath(root, 0), TablePath(root), video.Path(root)} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size(), p)
	}

	raw, err := os.ReadFile(TablePath(root))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, Header, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "00000, "))
}

func TestParseMeasurements_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":      "",
		"bad header": "a, b, c, d\n",
		"bad index":  Header + "\nx, 1, 2, 3\n",
		"bad float":  Header + "\n00001, 1, nope, 3\n",
		"short row":  Header + "\n00001, 1, 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMeasurements(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}
