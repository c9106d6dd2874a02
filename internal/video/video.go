// Package video encodes the recorded frame stream of a session.
package video

import (
	"errors"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

// BaseName is the file name of a session video, without the container
// extension.
const BaseName = "Recorded_Video"

// ErrClosed is returned when writing to an encoder after Close.
var ErrClosed = errors.New("video encoder closed")

// Encoder appends frames to a video stream.
type Encoder interface {
	// WriteFrame appends one frame, resizing it to the configured
	// resolution when it differs.
	WriteFrame(f *frame.Frame) error
	// Frames returns the number of frames written so far.
	Frames() int
	// Close flushes and releases the stream. Closing twice is a no-op.
	Close() error
}

// Options describe the stream every frame is conformed to.
type Options struct {
	FPS float64
	// Width and Height of the encoded stream. Zero keeps each frame's size.
	Width, Height int
	// Quality is the JPEG quality (1-100) for MJPEG streams.
	Quality int
}

// DefaultOptions match the lab camera setup.
func DefaultOptions() Options {
	return Options{FPS: 15, Width: 1280, Height: 720, Quality: 95}
}

// Path returns where the session video lives under root for the compiled
// container.
func Path(root string) string {
	return filepath.Join(root, BaseName+Container)
}

// Open starts the session video under root using the compiled backend.
func Open(fsys fsutil.FileSystem, root string, opts Options) (Encoder, error) {
	return open(fsys, Path(root), opts)
}

// conform resizes f to the stream resolution. Frames already at that size are
// returned unchanged.
func conform(f *frame.Frame, opts Options) *frame.Frame {
	if opts.Width <= 0 || opts.Height <= 0 {
		return f
	}
	if f.Width == opts.Width && f.Height == opts.Height {
		return f
	}
	resized := imaging.Resize(f.Image(), opts.Width, opts.Height, imaging.Linear)
	out := frame.FromImage(resized)
	out.Seq = f.Seq
	out.CapturedAt = f.CapturedAt
	return out
}
