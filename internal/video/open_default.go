//go:build !opencv
// +build !opencv

package video

import "github.com/banshee-data/pulse.report/internal/fsutil"

// Container is the file extension of session videos. Without OpenCV the
// stream is motion-JPEG.
const Container = ".mjpeg"

func open(fsys fsutil.FileSystem, path string, opts Options) (Encoder, error) {
	return NewMJPEGWriter(fsys, path, opts)
}
