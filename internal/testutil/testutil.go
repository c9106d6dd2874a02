// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic frames used across the pipeline
// tests so every package exercises the same beam shapes.
package testutil

import (
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/pulse.report/internal/capture"
	"github.com/banshee-data/pulse.report/internal/frame"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// FlatFrame returns a frame whose blue channel is v everywhere.
func FlatFrame(width, height int, v byte) *frame.Frame {
	f := frame.New(width, height)
	for i := 0; i < len(f.Pix); i += frame.Channels {
		f.Pix[i] = v
	}
	return f
}

// GaussianFrame returns a frame whose blue channel carries a clean vertical
// Gaussian stripe, identical in every row.
func GaussianFrame(width, height int, amplitude, center, sigma float64) *frame.Frame {
	f := frame.New(width, height)
	capture.RenderBeam(f, 0, capture.Beam{Amplitude: amplitude, Center: center, Sigma: sigma})
	return f
}

// NoiseFrame returns a frame whose blue channel is uniform noise with no
// discernible peak. The seed makes it reproducible.
func NoiseFrame(width, height int, seed uint64) *frame.Frame {
	f := frame.New(width, height)
	capture.RenderNoise(f, 0, 255, rand.New(rand.NewPCG(seed, seed+1)))
	return f
}

// RecordingFrames returns n frames where all but the last carry a clean beam
// and the last is pure noise.
func RecordingFrames(n, width, height int) []*frame.Frame {
	frames := make([]*frame.Frame, 0, n)
	for i := 0; i < n-1; i++ {
		// small width drift so rows differ
		frames = append(frames, GaussianFrame(width, height, 200, float64(width)/2-10, 18+float64(i)*0.5))
	}
	if n > 0 {
		frames = append(frames, NoiseFrame(width, height, 99))
	}
	return frames
}
