package profile

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/frame"
	"github.com/banshee-data/pulse.report/internal/testutil"
)

func TestExtract_LengthMatchesWidth(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	for _, size := range [][2]int{{1280, 720}, {640, 480}, {17, 40}, {3, 1}, {1, 100}} {
		f := frame.New(size[0], size[1])
		p := e.Extract(f)
		assert.Equal(t, size[0], p.Len(), "width %d height %d", size[0], size[1])
	}
}

func TestBand_CentredAndClipped(t *testing.T) {
	e := NewExtractor(DefaultOptions())

	lo, hi := e.Band(720)
	assert.Equal(t, 340, lo)
	assert.Equal(t, 380, hi)

	// short frames clip symmetrically to what exists
	lo, hi = e.Band(30)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 30, hi)

	lo, hi = e.Band(0)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)
}

func TestExtract_AveragesOnlyTheBand(t *testing.T) {
	f := frame.New(4, 100)
	// rows outside [30, 70) are saturated; inside they are 10
	for y := 0; y < f.Height; y++ {
		v := byte(255)
		if y >= 30 && y < 70 {
			v = 10
		}
		for x := 0; x < f.Width; x++ {
			f.Set(x, y, 0, v)
			f.Set(x, y, 2, 99) // red channel is ignored
		}
	}

	e := NewExtractor(Options{BandHalfHeight: 20, Channel: 0, Sigma: 0})
	got := e.Extract(f)
	want := Profile{10, 10, 10, 10}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_SmoothingPreservesConstant(t *testing.T) {
	f := testutil.FlatFrame(50, 60, 120)
	p := NewExtractor(DefaultOptions()).Extract(f)
	for i, v := range p {
		require.InDelta(t, 120, v, 1e-9, "column %d", i)
	}
}

func TestExtract_SmoothingSuppressesSpike(t *testing.T) {
	f := frame.New(41, 40)
	for y := 0; y < f.Height; y++ {
		f.Set(20, y, 0, 200)
	}
	p := NewExtractor(DefaultOptions()).Extract(f)

	assert.Less(t, p[20], 200.0)
	assert.Greater(t, p[20], 0.0)
	assert.InDelta(t, p[19], p[21], 1e-9, "kernel is symmetric")
	// smoothing conserves mass away from the edges
	var sum float64
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 200, sum, 1e-9)
}

func TestExtract_GaussianBumpKeepsPeak(t *testing.T) {
	f := testutil.GaussianFrame(320, 120, 200, 150, 20)
	p := NewExtractor(DefaultOptions()).Extract(f)

	maxIdx := 0
	for i, v := range p {
		if v > p[maxIdx] {
			maxIdx = i
		}
	}
	assert.Equal(t, 150, maxIdx)
	assert.InDelta(t, 200, p.Max(), 3)
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(2)
	require.Len(t, k, 17, "radius is int(4σ+0.5)")
	var sum float64
	for _, w := range k {
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.Equal(t, []float64{1}, gaussianKernel(0))
	assert.Equal(t, []float64{1}, gaussianKernel(math.NaN()))
}

func TestReflect(t *testing.T) {
	// d c b a | a b c d | d c b a
	got := make([]int, 0, 12)
	for i := -4; i < 8; i++ {
		got = append(got, reflect(i, 4))
	}
	want := []int{3, 2, 1, 0, 0, 1, 2, 3, 3, 2, 1, 0}
	assert.Equal(t, want, got)
}

func TestProfileHelpers(t *testing.T) {
	var empty Profile
	assert.Equal(t, 0.0, empty.Max())
	assert.Equal(t, []float64{0, 1, 2}, Profile{5, 6, 7}.Positions())
}
