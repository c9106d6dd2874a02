package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/plotter"
	"github.com/banshee-data/pulse.report/internal/video"
)

// ErrEnded is returned by writes to a store after End.
var ErrEnded = errors.New("session store ended")

// Options configure the artifacts a store writes.
type Options struct {
	Video video.Options
	// JPEGQuality for still frames (1-100).
	JPEGQuality int
	// Plotter renders the per-measurement plot. Nil uses plotter.New().
	Plotter *plotter.ProfilePlotter
}

// DefaultOptions returns the lab defaults.
func DefaultOptions() Options {
	return Options{Video: video.DefaultOptions(), JPEGQuality: 95}
}

// Stats counts what a store has written. VideoFrames, Stills and Plots
// cover periodic frames only; Extractions counts single-sample rows, each
// with its own extraction plot.
type Stats struct {
	VideoFrames  int `json:"video_frames"`
	Stills       int `json:"stills"`
	Measurements int `json:"measurements"`
	Plots        int `json:"plots"`
	Extractions  int `json:"extractions"`
}

// Store writes the artifacts of one session. A store is used from the
// capture loop goroutine; the mutex only guards Stats readers elsewhere.
type Store struct {
	mu    sync.Mutex
	fsys  fsutil.FileSystem
	sess  *Session
	opts  Options
	plot  *plotter.ProfilePlotter
	video video.Encoder // nil when reopened for extraction
	table io.WriteCloser
	stats Stats
	ended bool
}

// Begin creates the session layout under sess.Root, writes the table header
// and opens the video stream. Any failure leaves nothing open.
func Begin(fsys fsutil.FileSystem, sess *Session, opts Options) (*Store, error) {
	st, err := newStore(fsys, sess, opts)
	if err != nil {
		return nil, err
	}

	table, err := fsys.Create(TablePath(sess.Root))
	if err != nil {
		return nil, fmt.Errorf("create measurement table: %w", err)
	}
	if _, err := io.WriteString(table, Header+"\n"); err != nil {
		table.Close()
		return nil, fmt.Errorf("write measurement header: %w", err)
	}

	enc, err := video.Open(fsys, sess.Root, opts.Video)
	if err != nil {
		table.Close()
		return nil, fmt.Errorf("open video: %w", err)
	}

	st.table = table
	st.video = enc
	return st, nil
}

// Reopen attaches to an ended session so single-sample extraction can keep
// appending rows and extraction plots. The video stream is not reopened.
func Reopen(fsys fsutil.FileSystem, sess *Session, opts Options) (*Store, error) {
	if !fsys.Exists(TablePath(sess.Root)) {
		return nil, fmt.Errorf("reopen session %s: no measurement table", sess.Root)
	}
	st, err := newStore(fsys, sess, opts)
	if err != nil {
		return nil, err
	}
	table, err := fsys.Append(TablePath(sess.Root))
	if err != nil {
		return nil, fmt.Errorf("reopen measurement table: %w", err)
	}
	st.table = table
	return st, nil
}

func newStore(fsys fsutil.FileSystem, sess *Session, opts Options) (*Store, error) {
	if sess == nil || sess.Root == "" {
		return nil, errors.New("session root is empty")
	}
	for _, dir := range []string{FramesDir, PlotsDir} {
		if err := fsys.MkdirAll(filepath.Join(sess.Root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	pp := opts.Plotter
	if pp == nil {
		pp = plotter.New()
	}
	return &Store{fsys: fsys, sess: sess, opts: opts, plot: pp}, nil
}

// Session returns the session this store writes.
func (st *Store) Session() *Session { return st.sess }

// Recording reports whether the store has a live video stream.
func (st *Store) Recording() bool { return st.video != nil }

// AppendFrame writes f to the video stream and as the still for index.
func (st *Store) AppendFrame(f *frame.Frame, index int) error {
	if st.isEnded() {
		return ErrEnded
	}
	if st.video == nil {
		return fmt.Errorf("frame %05d: session has no video stream", index)
	}
	if err := st.video.WriteFrame(f); err != nil {
		return err
	}
	return st.writeStill(f, index)
}

// writeStill saves f as Frames/frame_NNNNN.jpg.
func (st *Store) writeStill(f *frame.Frame, index int) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.Image(), imaging.JPEG, imaging.JPEGQuality(st.opts.JPEGQuality)); err != nil {
		return fmt.Errorf("encode still %05d: %w", index, err)
	}
	if err := st.writeFile(FramePath(st.sess.Root, index), buf.Bytes()); err != nil {
		return fmt.Errorf("write still %05d: %w", index, err)
	}
	st.mu.Lock()
	st.stats.Stills++
	st.mu.Unlock()
	return nil
}

// AppendMeasurement saves the plot for index and appends its table row. The
// row is only written once the plot is on disk, so every row has a plot.
func (st *Store) AppendMeasurement(index int, profile []float64, res fit.Result) (Measurement, error) {
	m, err := st.appendRow(PlotPath(st.sess.Root, index), index, profile, res)
	if err != nil {
		return Measurement{}, err
	}
	st.mu.Lock()
	st.stats.Plots++
	st.stats.Measurements++
	st.mu.Unlock()
	return m, nil
}

// AppendExtraction records a single-sample fit taken at index, the session's
// next periodic index, without consuming it. The plot goes to
// Plots/extract_NNNNN.png so the periodic plot for index is never replaced.
func (st *Store) AppendExtraction(index int, profile []float64, res fit.Result) (Measurement, error) {
	m, err := st.appendRow(ExtractPlotPath(st.sess.Root, index), index, profile, res)
	if err != nil {
		return Measurement{}, err
	}
	st.mu.Lock()
	st.stats.Extractions++
	st.mu.Unlock()
	return m, nil
}

func (st *Store) appendRow(plotPath string, index int, profile []float64, res fit.Result) (Measurement, error) {
	if st.isEnded() {
		return Measurement{}, ErrEnded
	}
	m := MeasurementFromFit(index, res)

	var buf bytes.Buffer
	if err := st.plot.Render(&buf, index, profile, res); err != nil {
		return Measurement{}, err
	}
	if err := st.writeFile(plotPath, buf.Bytes()); err != nil {
		return Measurement{}, fmt.Errorf("write plot %05d: %w", index, err)
	}
	if _, err := io.WriteString(st.table, m.Row()+"\n"); err != nil {
		return Measurement{}, fmt.Errorf("append row %05d: %w", index, err)
	}
	return m, nil
}

// End closes the video stream and table. Calling End again is a no-op.
func (st *Store) End() error {
	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return nil
	}
	st.ended = true
	st.mu.Unlock()

	var errs []error
	if st.video != nil {
		if err := st.video.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close video: %w", err))
		}
	}
	if err := st.table.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close measurement table: %w", err))
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the artifact counts. The video count comes
// from the encoder, so it only includes frames it accepted.
func (st *Store) Stats() Stats {
	st.mu.Lock()
	stats := st.stats
	st.mu.Unlock()
	if st.video != nil {
		stats.VideoFrames = st.video.Frames()
	}
	return stats
}

func (st *Store) isEnded() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ended
}

func (st *Store) writeFile(path string, data []byte) error {
	w, err := st.fsys.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
