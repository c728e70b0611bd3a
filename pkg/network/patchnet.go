package network

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cyclopcam/bfvos/pkg/dataset"
	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/embedding"
	"github.com/cyclopcam/logs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const ArchitecturePatchNet = "patchnet"

// PatchNetOptions describe the shape of a PatchNet
type PatchNetOptions struct {
	Dims   int   // Embedding vector length
	Hidden int   // Hidden layer width
	Stride int   // Patch size and stride
	Seed   int64 // Weight initialization seed
}

func DefaultPatchNetOptions(dims int) PatchNetOptions {
	return PatchNetOptions{
		Dims:   dims,
		Hidden: 64,
		Stride: 8,
		Seed:   1,
	}
}

// Activations of one frame, kept between Forward and Backward
type frameCache struct {
	patches *mat.Dense // fanIn x N
	hidden  *mat.Dense // Hidden x N, post ReLU
}

// PatchNet is a two layer convolutional embedding network.
// Layer 1 is a Stride x Stride convolution with stride Stride (each non-overlapping
// patch is projected to Hidden channels), followed by a ReLU.
// Layer 2 is a 1x1 convolution from Hidden to Dims channels.
// The three frames of a triplet share weights.
type PatchNet struct {
	log      logs.Log
	config   ModelConfig
	ctx      device.Context
	training bool
	conv1W   *Param // Hidden x fanIn
	conv1B   *Param // Hidden x 1
	conv2W   *Param // Dims x Hidden
	conv2B   *Param // Dims x 1
	cache    [3]*frameCache
}

func NewPatchNet(log logs.Log, ctx device.Context, opt PatchNetOptions) (*PatchNet, error) {
	if opt.Dims <= 0 || opt.Hidden <= 0 || opt.Stride <= 0 {
		return nil, fmt.Errorf("Invalid PatchNet options %+v", opt)
	}
	fanIn := dataset.NChan * opt.Stride * opt.Stride
	n := &PatchNet{
		log: log,
		config: ModelConfig{
			Architecture: ArchitecturePatchNet,
			Dims:         opt.Dims,
			Hidden:       opt.Hidden,
			Stride:       opt.Stride,
			Channels:     dataset.NChan,
		},
		ctx:      ctx,
		training: true,
		conv1W:   newParam(ctx, "conv1.weight", opt.Hidden, fanIn),
		conv1B:   newParam(ctx, "conv1.bias", opt.Hidden, 1),
		conv2W:   newParam(ctx, "conv2.weight", opt.Dims, opt.Hidden),
		conv2B:   newParam(ctx, "conv2.bias", opt.Dims, 1),
	}
	rng := rand.New(rand.NewSource(opt.Seed))
	heUniform(rng, n.conv1W.Value, fanIn)
	heUniform(rng, n.conv2W.Value, opt.Hidden)
	log.Infof("Created %v network (dims %v, hidden %v, stride %v) on %v", ArchitecturePatchNet, opt.Dims, opt.Hidden, opt.Stride, ctx)
	return n, nil
}

func heUniform(rng *rand.Rand, w *mat.Dense, fanIn int) {
	limit := math.Sqrt(6 / float64(fanIn))
	raw := w.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (n *PatchNet) Params() []*Param {
	return []*Param{n.conv1W, n.conv1B, n.conv2W, n.conv2B}
}

func (n *PatchNet) Config() *ModelConfig {
	return &n.config
}

func (n *PatchNet) Train() {
	n.training = true
}

func (n *PatchNet) Eval() {
	n.training = false
	n.cache = [3]*frameCache{}
}

func (n *PatchNet) IsTraining() bool {
	return n.training
}

// To moves the parameters to a device. gonum matrices always live in host memory,
// so this only records the new device.
func (n *PatchNet) To(ctx device.Context) {
	if ctx != n.ctx {
		n.log.Debugf("Moving %v parameters from %v to %v", ArchitecturePatchNet, n.ctx, ctx)
	}
	n.ctx = ctx
}

func (n *PatchNet) Device() device.Context {
	return n.ctx
}

// Build the im2col matrix of a frame. Column j holds the patch at (x, y),
// where j = x*outHeight + y, matching the layout of embedding.Tensor.
func (n *PatchNet) patches(f *dataset.Frame) (*mat.Dense, int, int, error) {
	s := n.config.Stride
	ow, oh := n.config.OutputSize(f.Width, f.Height)
	if ow == 0 || oh == 0 {
		return nil, 0, 0, fmt.Errorf("%w: frame %vx%v is smaller than the network stride %v", embedding.ErrShapeMismatch, f.Width, f.Height, s)
	}
	if len(f.Pix) != dataset.NChan*f.Width*f.Height {
		return nil, 0, 0, fmt.Errorf("%w: frame %vx%v has %v values, expected %v", embedding.ErrShapeMismatch, f.Width, f.Height, len(f.Pix), dataset.NChan*f.Width*f.Height)
	}
	fanIn := dataset.NChan * s * s
	p := n.ctx.NewDense(fanIn, ow*oh)
	for x := 0; x < ow; x++ {
		for y := 0; y < oh; y++ {
			col := x*oh + y
			for c := 0; c < dataset.NChan; c++ {
				for dy := 0; dy < s; dy++ {
					for dx := 0; dx < s; dx++ {
						p.Set(c*s*s+dy*s+dx, col, float64(f.At(c, x*s+dx, y*s+dy)))
					}
				}
			}
		}
	}
	return p, ow, oh, nil
}

func addBias(m *mat.Dense, bias *mat.Dense) {
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		floats.AddConst(bias.At(r, 0), m.RawRowView(r))
	}
}

// Adds the row sums of g into the column vector dst
func addRowSums(dst *mat.Dense, g *mat.Dense) {
	rows, _ := g.Dims()
	for r := 0; r < rows; r++ {
		dst.Set(r, 0, dst.At(r, 0)+floats.Sum(g.RawRowView(r)))
	}
}

func (n *PatchNet) Forward(frames [3]*dataset.Frame) ([3]*embedding.Tensor, error) {
	out := [3]*embedding.Tensor{}
	for i, f := range frames {
		if f == nil {
			return out, fmt.Errorf("Frame %v of triplet is missing", i)
		}
		p, ow, oh, err := n.patches(f)
		if err != nil {
			return out, err
		}
		h := &mat.Dense{}
		h.Mul(n.conv1W.Value, p)
		addBias(h, n.conv1B.Value)
		h.Apply(func(_, _ int, v float64) float64 {
			return math.Max(v, 0)
		}, h)

		e := &mat.Dense{}
		e.Mul(n.conv2W.Value, h)
		addBias(e, n.conv2B.Value)

		out[i], err = embedding.FromDense(e, ow, oh)
		if err != nil {
			return out, err
		}
		if n.training {
			n.cache[i] = &frameCache{patches: p, hidden: h}
		}
	}
	return out, nil
}

func (n *PatchNet) Backward(grads [3]*embedding.Tensor) error {
	for i, g := range grads {
		c := n.cache[i]
		if c == nil {
			return fmt.Errorf("Backward called without a training mode Forward for frame %v", i)
		}
		_, cols := c.hidden.Dims()
		if g == nil || g.Dims != n.config.Dims || g.Width*g.Height != cols {
			return fmt.Errorf("%w: gradient for frame %v does not match the forward output", embedding.ErrShapeMismatch, i)
		}
		G := g.Data

		// Layer 2
		dw := &mat.Dense{}
		dw.Mul(G, c.hidden.T())
		n.conv2W.Grad.Add(n.conv2W.Grad, dw)
		addRowSums(n.conv2B.Grad, G)

		// Through the ReLU. A hidden unit that was clamped to zero passes no gradient.
		dh := &mat.Dense{}
		dh.Mul(n.conv2W.Value.T(), G)
		dh.Apply(func(r, col int, v float64) float64 {
			if c.hidden.At(r, col) <= 0 {
				return 0
			}
			return v
		}, dh)

		// Layer 1
		dw1 := &mat.Dense{}
		dw1.Mul(dh, c.patches.T())
		n.conv1W.Grad.Add(n.conv1W.Grad, dw1)
		addRowSums(n.conv1B.Grad, dh)
	}
	n.cache = [3]*frameCache{}
	return nil
}
