package dataset

import (
	"fmt"
	"math/rand"

	"github.com/cyclopcam/bfvos/pkg/mask"
)

// SyntheticOptions describe a generated video sequence
type SyntheticOptions struct {
	Width     int
	Height    int
	NumFrames int // Number of frames in the sequence, which is also the number of triplets per epoch
	Seed      int64
}

// Synthetic is a deterministic in-memory source.
// Each frame is noise with a bright rectangle moving across it, and the rectangle is the foreground.
type Synthetic struct {
	opt     SyntheticOptions
	sampler *TripletSampler
}

func NewSynthetic(opt SyntheticOptions) (*Synthetic, error) {
	if opt.Width <= 0 || opt.Height <= 0 {
		return nil, fmt.Errorf("Invalid synthetic image size %v x %v", opt.Width, opt.Height)
	}
	if opt.NumFrames < 3 {
		return nil, fmt.Errorf("Synthetic sequence needs at least 3 frames, but %v requested", opt.NumFrames)
	}
	seq := make([]int, opt.NumFrames)
	for i := range seq {
		seq[i] = i
	}
	return &Synthetic{
		opt:     opt,
		sampler: NewTripletSampler([][]int{seq}, false, opt.Seed),
	}, nil
}

func (s *Synthetic) Triplets(epoch int) ([]Triplet, error) {
	return s.sampler.Triplets(epoch)
}

func (s *Synthetic) Load(t Triplet) (*Sample, error) {
	sample := &Sample{}
	for i, idx := range t.Indices() {
		if idx < 0 || idx >= s.opt.NumFrames {
			return nil, fmt.Errorf("Synthetic frame index %v out of range [0, %v)", idx, s.opt.NumFrames)
		}
		sample.Frames[i], sample.Masks[i] = s.Generate(idx)
	}
	return sample, nil
}

// Generate produces frame 'idx' and its annotation
func (s *Synthetic) Generate(idx int) (*Frame, mask.Mask) {
	w, h := s.opt.Width, s.opt.Height
	rng := rand.New(rand.NewSource(s.opt.Seed*7919 + int64(idx)))

	// The rectangle covers a quarter of each dimension, and slides one pixel per frame
	rw := max(w/4, 1)
	rh := max(h/4, 1)
	x0 := idx % max(w-rw+1, 1)
	y0 := (h - rh) / 2

	m := mask.New(w, h)
	frame := NewFrame(w, h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inside := x >= x0 && x < x0+rw && y >= y0 && y < y0+rh
			for c := 0; c < NChan; c++ {
				v := rng.Float32() * 0.3
				if inside {
					v += 0.6
				}
				frame.Pix[c*plane+y*w+x] = v
			}
			if inside {
				m.Set(y, x, 1)
			}
		}
	}
	frame.Normalize()
	return frame, m
}
