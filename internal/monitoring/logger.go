// Package monitoring holds the diagnostic logging hook shared by the capture
// pipeline packages.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger used by the pipeline. It
// defaults to log.Printf but may be replaced by SetLogger so tests or the
// entrypoint can redirect or mute per-frame diagnostics.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// FrameLabel formats a frame index the way artifact filenames do, so a log
// line can be matched to the files on disk.
func FrameLabel(index int) string {
	return fmt.Sprintf("%05d", index)
}
