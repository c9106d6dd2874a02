// Package profile reduces a raw frame to the smoothed 1-D horizontal
// intensity curve the fitter works on.
package profile

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pulse.report/internal/frame"
)

// Profile is one intensity sample per pixel column. It is produced fresh on
// every tick and must not be modified once returned.
type Profile []float64

// Len returns the number of columns.
func (p Profile) Len() int { return len(p) }

// Max returns the largest sample, or 0 for an empty profile.
func (p Profile) Max() float64 {
	if len(p) == 0 {
		return 0
	}
	return floats.Max(p)
}

// Positions returns the column indices 0..Len-1 as floats.
func (p Profile) Positions() []float64 {
	xs := make([]float64, len(p))
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

// Options controls band selection and smoothing.
type Options struct {
	// BandHalfHeight is the number of rows taken above and below the
	// vertical midpoint.
	BandHalfHeight int
	// Channel is the BGR channel index sampled (0 is blue).
	Channel int
	// Sigma is the Gaussian smoothing width in samples; 0 disables smoothing.
	Sigma float64
}

// DefaultOptions returns a 40-row band on the blue channel smoothed with σ=2.
func DefaultOptions() Options {
	return Options{BandHalfHeight: 20, Channel: 0, Sigma: 2}
}

// Extractor computes profiles. It holds the precomputed smoothing kernel and
// is safe for concurrent use.
type Extractor struct {
	opts   Options
	kernel []float64
}

// NewExtractor builds an extractor for the given options.
func NewExtractor(opts Options) *Extractor {
	if opts.BandHalfHeight <= 0 {
		opts.BandHalfHeight = DefaultOptions().BandHalfHeight
	}
	if opts.Channel < 0 || opts.Channel >= frame.Channels {
		opts.Channel = 0
	}
	return &Extractor{opts: opts, kernel: gaussianKernel(opts.Sigma)}
}

// Band returns the half-open row range [lo, hi) averaged for a frame of the
// given height. The band is centred on height/2 and clipped to the frame.
func (e *Extractor) Band(height int) (lo, hi int) {
	center := height / 2
	lo = center - e.opts.BandHalfHeight
	hi = center + e.opts.BandHalfHeight
	if lo < 0 {
		lo = 0
	}
	if hi > height {
		hi = height
	}
	return lo, hi
}

// Extract averages the centre band column-wise and smooths the result. The
// returned profile always has exactly f.Width samples.
func (e *Extractor) Extract(f *frame.Frame) Profile {
	raw := make([]float64, f.Width)
	lo, hi := e.Band(f.Height)
	rows := hi - lo
	if rows <= 0 {
		return Profile(raw)
	}

	ch := e.opts.Channel
	for y := lo; y < hi; y++ {
		base := y * f.Width * frame.Channels
		for x := 0; x < f.Width; x++ {
			raw[x] += float64(f.Pix[base+x*frame.Channels+ch])
		}
	}
	floats.Scale(1/float64(rows), raw)

	return Profile(smooth(raw, e.kernel))
}

// gaussianKernel returns normalised weights truncated at 4σ, the same support
// scipy.ndimage uses, so profiles match lab tooling.
func gaussianKernel(sigma float64) []float64 {
	if !(sigma > 0) {
		return []float64{1}
	}
	radius := int(4*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// smooth convolves data with a symmetric kernel using half-sample symmetric
// reflection at both edges (d c b a | a b c d | d c b a).
func smooth(data, kernel []float64) []float64 {
	n := len(data)
	if n == 0 || len(kernel) == 1 {
		return data
	}
	radius := len(kernel) / 2
	padded := make([]float64, n+2*radius)
	for i := range padded {
		padded[i] = data[reflect(i-radius, n)]
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = floats.Dot(kernel, padded[i:i+len(kernel)])
	}
	return out
}

func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}
