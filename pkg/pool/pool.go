package pool

import (
	"fmt"

	"github.com/cyclopcam/bfvos/pkg/embedding"
	"github.com/cyclopcam/bfvos/pkg/mask"
)

// Pool is the combined embedding surface of the two pooling frames, placed side by side,
// along with the foreground and background coordinates on that surface.
type Pool struct {
	Combined *embedding.Tensor
	Mask     mask.Mask    // Combined mask, at embedding resolution
	FG       []mask.Coord // Foreground coordinates on Combined (row major)
	BG       []mask.Coord // Background coordinates on Combined (row major)
	width1   int          // Width of the first pooling frame's embedding
}

// Build concatenates the two pooling frame embeddings along the width axis, and derives
// foreground/background coordinate sets from their masks.
// The masks are at the native frame resolution. Each one is brought down to embedding
// resolution by 'stride' before the masks are stacked, so that the first column of
// frame 2's embedding lines up with the first cell of frame 2's mask.
func Build(e1, e2 *embedding.Tensor, m1, m2 mask.Mask, stride int) (*Pool, error) {
	combined, err := embedding.ConcatWidth(e1, e2)
	if err != nil {
		return nil, err
	}
	d1 := mask.Downsample(m1, stride)
	d2 := mask.Downsample(m2, stride)
	if d1.Width() != e1.Width || d1.Height() != e1.Height {
		return nil, fmt.Errorf("%w: pool frame 1 mask %vx%v (stride %v) does not match embedding %v", embedding.ErrShapeMismatch, m1.Width(), m1.Height(), stride, e1)
	}
	if d2.Width() != e2.Width || d2.Height() != e2.Height {
		return nil, fmt.Errorf("%w: pool frame 2 mask %vx%v (stride %v) does not match embedding %v", embedding.ErrShapeMismatch, m2.Width(), m2.Height(), stride, e2)
	}
	combinedMask, err := mask.ConcatWidth(d1, d2)
	if err != nil {
		return nil, err
	}
	fg, bg := mask.Extract(combinedMask)
	return &Pool{
		Combined: combined,
		Mask:     combinedMask,
		FG:       fg,
		BG:       bg,
		width1:   e1.Width,
	}, nil
}

// Gather reads the embedding vectors at coords from the combined surface
func (p *Pool) Gather(coords []mask.Coord) embedding.Batch {
	return embedding.Gather(p.Combined, coords)
}

// Foreground returns the embedding vectors of every foreground pool pixel
func (p *Pool) Foreground() embedding.Batch {
	return p.Gather(p.FG)
}

// Background returns the embedding vectors of every background pool pixel
func (p *Pool) Background() embedding.Batch {
	return p.Gather(p.BG)
}

// SplitGrad splits a gradient with respect to the combined surface into
// per-frame gradients for the two pooling frames.
func (p *Pool) SplitGrad(grad *embedding.Tensor) (*embedding.Tensor, *embedding.Tensor, error) {
	if !embedding.SameShape(grad, p.Combined) {
		return nil, nil, fmt.Errorf("%w: gradient %v does not match pool %v", embedding.ErrShapeMismatch, grad, p.Combined)
	}
	return embedding.SplitWidth(grad, p.width1)
}
