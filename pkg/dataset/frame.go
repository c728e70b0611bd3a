package dataset

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/bfvos/pkg/stats"
)

// NChan is the number of color channels in a Frame
const NChan = 3

// Frame is an RGB image in channel-major (CHW) order, with values in [0,1]
// before normalization.
type Frame struct {
	Width  int
	Height int
	Pix    []float32 // len = NChan * Width * Height
}

func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]float32, NChan*width*height),
	}
}

// FromRGB converts interleaved 8-bit RGB pixels into a Frame
func FromRGB(width, height, stride int, rgb []byte) (*Frame, error) {
	if stride < width*NChan || len(rgb) < stride*(height-1)+width*NChan {
		return nil, fmt.Errorf("RGB buffer of %v bytes is too small for %vx%v (stride %v)", len(rgb), width, height, stride)
	}
	f := NewFrame(width, height)
	plane := width * height
	for y := 0; y < height; y++ {
		src := rgb[y*stride:]
		for x := 0; x < width; x++ {
			for c := 0; c < NChan; c++ {
				f.Pix[c*plane+y*width+x] = float32(src[x*NChan+c]) / 255
			}
		}
	}
	return f, nil
}

// At returns channel c at (x, y)
func (f *Frame) At(c, x, y int) float32 {
	return f.Pix[c*f.Width*f.Height+y*f.Width+x]
}

// Channel returns a slice of one color plane. It aliases the frame's storage.
func (f *Frame) Channel(c int) []float32 {
	plane := f.Width * f.Height
	return f.Pix[c*plane : (c+1)*plane]
}

// Normalize standardizes every channel to zero mean and unit variance.
// A constant channel is only centered.
func (f *Frame) Normalize() {
	for c := 0; c < NChan; c++ {
		ch := f.Channel(c)
		mean, variance := stats.MeanVar(ch)
		std := math32.Sqrt(float32(variance))
		m := float32(mean)
		for i := range ch {
			if std > 1e-6 {
				ch[i] = (ch[i] - m) / std
			} else {
				ch[i] = ch[i] - m
			}
		}
	}
}
