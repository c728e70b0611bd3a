package train

import (
	"fmt"

	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/embedding"
	"github.com/cyclopcam/bfvos/pkg/loss"
	"github.com/cyclopcam/bfvos/pkg/mask"
	"github.com/cyclopcam/bfvos/pkg/pool"
)

// Step is the loss of one triplet, and the gradient of the total loss
// with respect to each of the three embeddings.
type Step struct {
	Fg    loss.Result // Foreground anchors against the pool
	Bg    loss.Result // Background anchors against the pool, with positive and negative swapped
	Total float64     // Fg.Value + Bg.Value
	Grads [3]*embedding.Tensor
}

// BuildStep computes the foreground and background losses of a triplet.
// emb holds the embeddings of the anchor frame and the two pooling frames, and masks
// holds their annotations at frame resolution. stride is the network's downsampling factor.
func BuildStep(ctx device.Context, emb [3]*embedding.Tensor, masks [3]mask.Mask, stride int, lossFn loss.Function) (*Step, error) {
	anchorMask := mask.Downsample(masks[0], stride)
	if anchorMask.Width() != emb[0].Width || anchorMask.Height() != emb[0].Height {
		return nil, fmt.Errorf("%w: anchor mask %vx%v (stride %v) does not match embedding %v", embedding.ErrShapeMismatch, masks[0].Width(), masks[0].Height(), stride, emb[0])
	}
	fgAnchor, bgAnchor := mask.Extract(anchorMask)

	p, err := pool.Build(emb[1], emb[2], masks[1], masks[2], stride)
	if err != nil {
		return nil, err
	}
	fgPool := p.Foreground()
	bgPool := p.Background()

	s := &Step{}
	s.Fg = lossFn.Loss(embedding.Gather(emb[0], fgAnchor), fgPool, bgPool)
	s.Bg = lossFn.Loss(embedding.Gather(emb[0], bgAnchor), bgPool, fgPool)
	s.Total = s.Fg.Value + s.Bg.Value

	gradAnchor := embedding.ZerosLike(ctx, emb[0])
	embedding.ScatterAdd(gradAnchor, fgAnchor, s.Fg.GradAnchor)
	embedding.ScatterAdd(gradAnchor, bgAnchor, s.Bg.GradAnchor)

	gradPool := embedding.ZerosLike(ctx, p.Combined)
	embedding.ScatterAdd(gradPool, p.FG, s.Fg.GradPositive)
	embedding.ScatterAdd(gradPool, p.BG, s.Fg.GradNegative)
	embedding.ScatterAdd(gradPool, p.BG, s.Bg.GradPositive)
	embedding.ScatterAdd(gradPool, p.FG, s.Bg.GradNegative)

	g1, g2, err := p.SplitGrad(gradPool)
	if err != nil {
		return nil, err
	}
	s.Grads = [3]*embedding.Tensor{gradAnchor, g1, g2}
	return s, nil
}
