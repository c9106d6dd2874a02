package video

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

// soi is the JPEG start-of-image marker followed by the first marker prefix.
var soi = []byte{0xFF, 0xD8, 0xFF}

// MJPEGWriter writes a motion-JPEG stream: back-to-back baseline JPEG images
// with no container. Most players and ffmpeg read it with -f mjpeg.
type MJPEGWriter struct {
	mu     sync.Mutex
	w      io.WriteCloser
	opts   Options
	frames int
	closed bool
}

// NewMJPEGWriter creates (or truncates) path on fsys.
func NewMJPEGWriter(fsys fsutil.FileSystem, path string, opts Options) (*MJPEGWriter, error) {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	w, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create video %s: %w", path, err)
	}
	return &MJPEGWriter{w: w, opts: opts}, nil
}

// WriteFrame encodes f as one JPEG image in the stream.
func (m *MJPEGWriter) WriteFrame(f *frame.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	img := conform(f, m.opts).Image()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(m.opts.Quality)); err != nil {
		return fmt.Errorf("encode video frame %d: %w", m.frames, err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write video frame %d: %w", m.frames, err)
	}
	m.frames++
	return nil
}

// Frames returns the number of frames written.
func (m *MJPEGWriter) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Close closes the underlying file.
func (m *MJPEGWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.w.Close()
}

// SplitMJPEG splits a motion-JPEG stream into its images. Entropy-coded JPEG
// data byte-stuffs 0xFF, so a start-of-image marker only occurs at an image
// boundary.
func SplitMJPEG(data []byte) [][]byte {
	var images [][]byte
	start := bytes.Index(data, soi)
	for start >= 0 {
		next := bytes.Index(data[start+len(soi):], soi)
		if next < 0 {
			images = append(images, data[start:])
			break
		}
		end := start + len(soi) + next
		images = append(images, data[start:end])
		start = end
	}
	return images
}
