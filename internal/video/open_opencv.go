//go:build opencv
// +build opencv

package video

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

// Container is the file extension of session videos written through OpenCV.
const Container = ".mp4"

// open ignores fsys: OpenCV writes straight to the OS path.
func open(_ fsutil.FileSystem, path string, opts Options) (Encoder, error) {
	return NewCVWriter(path, opts)
}

// CVWriter encodes an mp4v stream through OpenCV.
// This type is only available when building with the 'opencv' build tag.
type CVWriter struct {
	mu     sync.Mutex
	vw     *gocv.VideoWriter
	opts   Options
	frames int
	closed bool
}

// NewCVWriter opens an mp4v writer at path. Width and Height must be set.
func NewCVWriter(path string, opts Options) (*CVWriter, error) {
	def := DefaultOptions()
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.FPS <= 0 {
		opts.FPS = def.FPS
	}
	vw, err := gocv.VideoWriterFile(path, "mp4v", opts.FPS, opts.Width, opts.Height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("open video writer %s: codec mp4v unavailable", path)
	}
	return &CVWriter{vw: vw, opts: opts}, nil
}

// WriteFrame appends f, resized to the stream resolution.
func (c *CVWriter) WriteFrame(f *frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	f = conform(f, c.opts)
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return fmt.Errorf("wrap video frame %d: %w", c.frames, err)
	}
	defer mat.Close()
	if err := c.vw.Write(mat); err != nil {
		return fmt.Errorf("write video frame %d: %w", c.frames, err)
	}
	c.frames++
	return nil
}

// Frames returns the number of frames written.
func (c *CVWriter) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Close finalises the container.
func (c *CVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.vw.Close()
}
