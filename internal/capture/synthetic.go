package capture

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/frame"
)

// Beam describes a horizontal Gaussian stripe rendered into a frame.
type Beam struct {
	Amplitude float64 // peak intensity above background, 0-255
	Center    float64 // column of the peak
	Sigma     float64 // standard deviation in columns
}

// RenderBeam writes the beam into every row of channel ch. Values are
// rounded and clamped to the byte range; other channels are left alone.
func RenderBeam(f *frame.Frame, ch int, b Beam) {
	col := make([]byte, f.Width)
	for x := range col {
		d := float64(x) - b.Center
		v := b.Amplitude * math.Exp(-d*d/(2*b.Sigma*b.Sigma))
		col[x] = clampByte(v)
	}
	for y := 0; y < f.Height; y++ {
		for x, v := range col {
			f.Set(x, y, ch, v)
		}
	}
}

// RenderNoise fills channel ch with uniform noise in [0, max].
func RenderNoise(f *frame.Frame, ch int, max int, rng *rand.Rand) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Set(x, y, ch, byte(rng.IntN(max+1)))
		}
	}
}

func clampByte(v float64) byte {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// SyntheticSource generates beam frames for development without a camera.
// The beam width breathes slowly so the live plot and recorded FWHM move.
type SyntheticSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq uint64
	now func() time.Time

	closed bool

	// Configuration
	Width      int
	Height     int
	Channel    int
	Beam       Beam
	NoiseLevel int     // peak-to-peak additive noise, 0 disables
	WidthDrift float64 // fractional sigma modulation amplitude
	DriftCycle int     // frames per drift cycle
	// MissEvery makes every Nth read a miss, simulating a camera that is
	// slower than the tick rate. 0 disables.
	MissEvery int
}

// NewSyntheticSource creates a generator with a centred beam.
func NewSyntheticSource(width, height int, seed uint64) *SyntheticSource {
	return &SyntheticSource{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:        time.Now,
		Width:      width,
		Height:     height,
		Beam:       Beam{Amplitude: 180, Center: float64(width) / 2, Sigma: float64(width) / 25},
		NoiseLevel: 12,
		WidthDrift: 0.15,
		DriftCycle: 200,
	}
}

// TryReadFrame renders the next frame.
func (s *SyntheticSource) TryReadFrame() (*frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	s.seq++
	if s.MissEvery > 0 && s.seq%uint64(s.MissEvery) == 0 {
		return nil, false
	}

	f := frame.New(s.Width, s.Height)
	beam := s.Beam
	if s.DriftCycle > 0 && s.WidthDrift != 0 {
		phase := 2 * math.Pi * float64(s.seq%uint64(s.DriftCycle)) / float64(s.DriftCycle)
		beam.Sigma *= 1 + s.WidthDrift*math.Sin(phase)
	}
	RenderBeam(f, s.Channel, beam)

	if s.NoiseLevel > 0 {
		half := s.NoiseLevel / 2
		for i := s.Channel; i < len(f.Pix); i += frame.Channels {
			n := s.rng.IntN(s.NoiseLevel+1) - half
			f.Pix[i] = clampByte(float64(int(f.Pix[i]) + n))
		}
	}

	f.Seq = s.seq
	f.CapturedAt = s.now()
	return f, true
}

// Close stops the generator.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
