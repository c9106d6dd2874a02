package monitor

import (
	"bytes"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/recording"
)

// Preview thumbnail bounds.
const (
	previewWidth   = 640
	previewHeight  = 360
	previewQuality = 80
)

// LiveView is the display sink behind the web page. It keeps only the
// latest profile, frame and recorded outcome.
type LiveView struct {
	mu        sync.RWMutex
	profile   profile.Profile
	frame     *frame.Frame
	outcome   *recording.Outcome
	updatedAt time.Time
	now       func() time.Time
}

// NewLiveView returns an empty view.
func NewLiveView() *LiveView {
	return &LiveView{now: time.Now}
}

// ShowProfile stores the latest profile. Profiles are immutable so the slice
// is kept as is.
func (v *LiveView) ShowProfile(p profile.Profile) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.profile = p
	v.updatedAt = v.now()
}

// ShowFrame stores the latest frame.
func (v *LiveView) ShowFrame(f *frame.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frame = f
}

// ShowOutcome stores the latest recorded outcome.
func (v *LiveView) ShowOutcome(o recording.Outcome) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outcome = &o
}

// Snapshot is a consistent copy of the view.
type Snapshot struct {
	Profile   profile.Profile
	Outcome   *recording.Outcome
	UpdatedAt time.Time
	HasFrame  bool
}

// Snapshot returns the current view.
func (v *LiveView) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s := Snapshot{Profile: v.profile, UpdatedAt: v.updatedAt, HasFrame: v.frame != nil}
	if v.outcome != nil {
		o := *v.outcome
		s.Outcome = &o
	}
	return s
}

// PreviewJPEG encodes a thumbnail of the latest frame. It returns false
// before the first frame.
func (v *LiveView) PreviewJPEG() ([]byte, bool, error) {
	v.mu.RLock()
	f := v.frame
	v.mu.RUnlock()
	if f == nil {
		return nil, false, nil
	}

	var img image.Image = f.Image()
	if f.Width > previewWidth || f.Height > previewHeight {
		img = imaging.Fit(img, previewWidth, previewHeight, imaging.Box)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), true, nil
}
