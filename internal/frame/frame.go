// Package frame defines the raw 2-D frame handed from a capture source to the
// capture loop. Pixels are stored interleaved in BGR order, matching what
// camera drivers deliver, so channel 0 is blue.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

// Channels is the number of colour channels in a Frame.
const Channels = 3

// Frame is one captured image. It is owned by the capture loop for the
// duration of a tick and is not retained unless persisted.
type Frame struct {
	Width  int
	Height int
	// Pix holds Height*Width*Channels bytes, row-major, BGR interleaved.
	Pix []byte

	Seq        uint64
	CapturedAt time.Time
}

// New allocates a zeroed frame of the given size.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

// FromBGR wraps an existing BGR buffer, validating its length.
func FromBGR(width, height int, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if want := width * height * Channels; len(pix) != want {
		return nil, fmt.Errorf("frame buffer has %d bytes, want %d for %dx%d", len(pix), want, width, height)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image into a BGR frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			f.Pix[i] = c.B
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.R
			i += Channels
		}
	}
	return f
}

// At returns the sample at column x, row y, channel c.
func (f *Frame) At(x, y, c int) byte {
	return f.Pix[(y*f.Width+x)*Channels+c]
}

// Set writes the sample at column x, row y, channel c.
func (f *Frame) Set(x, y, c int, v byte) {
	f.Pix[(y*f.Width+x)*Channels+c] = v
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Image converts the frame to an RGBA image for encoding.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(f.Bounds())
	src, dst := 0, 0
	for n := f.Width * f.Height; n > 0; n-- {
		img.Pix[dst] = f.Pix[src+2]
		img.Pix[dst+1] = f.Pix[src+1]
		img.Pix[dst+2] = f.Pix[src]
		img.Pix[dst+3] = 0xff
		src += Channels
		dst += 4
	}
	return img
}

// Clone returns a deep copy, used when a frame must outlive its tick.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]byte(nil), f.Pix...)
	return &c
}
