package capture

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/monitoring"
)

// ReplaySource plays back still images from a directory in filename order,
// typically the Frames directory of an earlier session. It only reads.
type ReplaySource struct {
	mu     sync.Mutex
	fs     fsutil.FileSystem
	dir    string
	files  []string
	next   int
	loop   bool
	closed bool
}

// NewReplaySource lists the .jpg/.jpeg/.png files in dir. When loop is set
// playback wraps around instead of running dry.
func NewReplaySource(fsys fsutil.FileSystem, dir string, loop bool) (*ReplaySource, error) {
	names, err := fsys.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list replay directory: %w", err)
	}
	var files []string
	for _, name := range names {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return &ReplaySource{fs: fsys, dir: dir, files: files, loop: loop}, nil
}

// Len returns the number of images available for playback.
func (r *ReplaySource) Len() int { return len(r.files) }

// TryReadFrame decodes the next image. Unreadable files are skipped with a
// log line and reported as a miss.
func (r *ReplaySource) TryReadFrame() (*frame.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	if r.next >= len(r.files) {
		if !r.loop {
			return nil, false
		}
		r.next = 0
	}
	name := r.files[r.next]
	r.next++

	data, err := r.fs.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		monitoring.Logf("replay: read %s: %v", name, err)
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		monitoring.Logf("replay: decode %s: %v", name, err)
		return nil, false
	}
	f := frame.FromImage(img)
	f.Seq = uint64(r.next)
	f.CapturedAt = time.Now()
	return f, true
}

// Close stops playback.
func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
