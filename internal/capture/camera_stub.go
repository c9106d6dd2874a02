//go:build !opencv
// +build !opencv

package capture

import "fmt"

// OpenCamera is a stub implementation when OpenCV support is disabled.
// Build with -tags=opencv to enable camera capture.
func OpenCamera(index, width, height int) (Source, error) {
	return nil, fmt.Errorf("camera support not enabled: rebuild with -tags=opencv to open camera %d", index)
}
