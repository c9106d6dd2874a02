//go:build opencv
// +build opencv

package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pulse.report/internal/frame"
)

// CameraSource reads frames from a local camera through OpenCV.
// This type is only available when building with the 'opencv' build tag.
type CameraSource struct {
	mu     sync.Mutex
	dev    *gocv.VideoCapture
	mat    gocv.Mat
	seq    uint64
	closed bool
}

// OpenCamera opens the device at index and requests the given resolution.
// The driver may negotiate a different size; frames report what was delivered.
func OpenCamera(index, width, height int) (Source, error) {
	dev, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	dev.Set(gocv.VideoCaptureFrameWidth, float64(width))
	dev.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return &CameraSource{dev: dev, mat: gocv.NewMat()}, nil
}

// TryReadFrame grabs one frame from the device.
func (c *CameraSource) TryReadFrame() (*frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	if ok := c.dev.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}
	if c.mat.Channels() != frame.Channels {
		return nil, false
	}
	f, err := frame.FromBGR(c.mat.Cols(), c.mat.Rows(), c.mat.ToBytes())
	if err != nil {
		return nil, false
	}
	c.seq++
	f.Seq = c.seq
	f.CapturedAt = time.Now()
	return f, true
}

// Close releases the device.
func (c *CameraSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.dev.Close()
}
