package train

import (
	"math/rand"
	"testing"

	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/embedding"
	"github.com/cyclopcam/bfvos/pkg/loss"
	"github.com/cyclopcam/bfvos/pkg/mask"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type lossCall struct {
	anchor, positive, negative embedding.Batch
}

// recordingLoss remembers its inputs, and returns a fixed value with zero gradients
type recordingLoss struct {
	calls []lossCall
	value float64
}

func (r *recordingLoss) Loss(anchor, positive, negative embedding.Batch) loss.Result {
	r.calls = append(r.calls, lossCall{anchor, positive, negative})
	return loss.Result{
		Value:        r.value,
		Anchors:      anchor.Len(),
		GradAnchor:   embedding.ZeroBatchLike(anchor),
		GradPositive: embedding.ZeroBatchLike(positive),
		GradNegative: embedding.ZeroBatchLike(negative),
	}
}

func randomTensor(rng *rand.Rand, dims, width, height int) *embedding.Tensor {
	t := embedding.New(device.CPUContext, dims, width, height)
	for c := 0; c < dims; c++ {
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				t.Set(c, x, y, rng.NormFloat64())
			}
		}
	}
	return t
}

func randomMask(rng *rand.Rand, width, height int) mask.Mask {
	m := mask.New(width, height)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			m.Set(r, c, uint8(rng.Intn(2)))
		}
	}
	return m
}

func mustMask(t *testing.T, rows [][]uint8) mask.Mask {
	m, err := mask.FromRows(rows)
	require.NoError(t, err)
	return m
}

func batchEqual(a, b embedding.Batch) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Len() == 0 {
		return true
	}
	return mat.Equal(a.Matrix(), b.Matrix())
}

func TestBuildStepSwapsPools(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	emb := [3]*embedding.Tensor{
		randomTensor(rng, 3, 2, 2),
		randomTensor(rng, 3, 2, 1),
		randomTensor(rng, 3, 2, 1),
	}
	masks := [3]mask.Mask{
		mustMask(t, [][]uint8{{1, 0}, {0, 1}}),
		mustMask(t, [][]uint8{{1, 0}}),
		mustMask(t, [][]uint8{{0, 1}}),
	}
	rec := &recordingLoss{value: 0.25}
	step, err := BuildStep(device.CPUContext, emb, masks, 1, rec)
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	require.Equal(t, 0.5, step.Total)

	fg := rec.calls[0]
	bg := rec.calls[1]
	require.True(t, batchEqual(fg.positive, bg.negative))
	require.True(t, batchEqual(fg.negative, bg.positive))

	// Anchors: fg (0,0),(1,1) and bg (0,1),(1,0), in (row, col)
	require.Equal(t, 2, fg.anchor.Len())
	require.Equal(t, 2, bg.anchor.Len())
	require.Equal(t, emb[0].Vector(0, 0), fg.anchor.Row(0))
	require.Equal(t, emb[0].Vector(1, 1), fg.anchor.Row(1))
	require.Equal(t, emb[0].Vector(1, 0), bg.anchor.Row(0))
	require.Equal(t, emb[0].Vector(0, 1), bg.anchor.Row(1))

	// Combined pool mask is [1,0,0,1]: fg at columns 0 and 3, bg at columns 1 and 2
	require.Equal(t, emb[1].Vector(0, 0), fg.positive.Row(0))
	require.Equal(t, emb[2].Vector(1, 0), fg.positive.Row(1))
	require.Equal(t, emb[1].Vector(1, 0), fg.negative.Row(0))
	require.Equal(t, emb[2].Vector(0, 0), fg.negative.Row(1))
}

func TestBuildStepEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	emb := [3]*embedding.Tensor{
		randomTensor(rng, 4, 3, 3),
		randomTensor(rng, 4, 3, 2),
		randomTensor(rng, 4, 3, 2),
	}
	// No foreground anywhere in the pool, so both losses are zero
	masks := [3]mask.Mask{
		randomMask(rng, 3, 3),
		mask.New(3, 2),
		mask.New(3, 2),
	}
	step, err := BuildStep(device.CPUContext, emb, masks, 1, loss.NewMinTriplet(1))
	require.NoError(t, err)
	require.Equal(t, 0.0, step.Total)
	for _, g := range step.Grads {
		require.Equal(t, 0.0, mat.Sum(g.Data))
	}
}

func TestBuildStepGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	emb := [3]*embedding.Tensor{
		randomTensor(rng, 4, 3, 3),
		randomTensor(rng, 4, 3, 2),
		randomTensor(rng, 4, 2, 2),
	}
	masks := [3]mask.Mask{
		mustMask(t, [][]uint8{{1, 1, 0}, {0, 1, 0}, {0, 0, 0}}),
		mustMask(t, [][]uint8{{1, 0, 0}, {1, 1, 0}}),
		mustMask(t, [][]uint8{{0, 1}, {0, 0}}),
	}
	lossFn := loss.NewMinTriplet(5)
	step, err := BuildStep(device.CPUContext, emb, masks, 1, lossFn)
	require.NoError(t, err)
	require.Greater(t, step.Total, 0.0)

	const eps = 1e-6
	for k := 0; k < 3; k++ {
		e := emb[k]
		for c := 0; c < e.Dims; c++ {
			for x := 0; x < e.Width; x++ {
				for y := 0; y < e.Height; y++ {
					orig := e.At(c, x, y)
					e.Set(c, x, y, orig+eps)
					plus, err := BuildStep(device.CPUContext, emb, masks, 1, lossFn)
					require.NoError(t, err)
					e.Set(c, x, y, orig-eps)
					minus, err := BuildStep(device.CPUContext, emb, masks, 1, lossFn)
					require.NoError(t, err)
					e.Set(c, x, y, orig)
					numeric := (plus.Total - minus.Total) / (2 * eps)
					require.InDelta(t, numeric, step.Grads[k].At(c, x, y), 1e-5, "tensor %v, c=%v x=%v y=%v", k, c, x, y)
				}
			}
		}
	}
}

func TestBuildStepStride(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	// 16x8 frames at stride 8 give 2x1 embeddings
	emb := [3]*embedding.Tensor{
		randomTensor(rng, 2, 2, 1),
		randomTensor(rng, 2, 2, 1),
		randomTensor(rng, 2, 2, 1),
	}
	masks := [3]mask.Mask{mask.New(16, 8), mask.New(16, 8), mask.New(16, 8)}
	// Foreground on the left half of the anchor
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			masks[0].Set(r, c, 1)
		}
	}
	rec := &recordingLoss{}
	_, err := BuildStep(device.CPUContext, emb, masks, 8, rec)
	require.NoError(t, err)
	require.Equal(t, 1, rec.calls[0].anchor.Len())
	require.Equal(t, 1, rec.calls[1].anchor.Len())
	require.Equal(t, 0, rec.calls[0].positive.Len())
	require.Equal(t, 4, rec.calls[0].negative.Len())
}

func TestBuildStepShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	emb := [3]*embedding.Tensor{
		randomTensor(rng, 2, 2, 2),
		randomTensor(rng, 2, 2, 2),
		randomTensor(rng, 2, 2, 2),
	}
	masks := [3]mask.Mask{mask.New(3, 2), mask.New(2, 2), mask.New(2, 2)}
	_, err := BuildStep(device.CPUContext, emb, masks, 1, loss.NewMinTriplet(1))
	require.ErrorIs(t, err, embedding.ErrShapeMismatch)

	masks = [3]mask.Mask{mask.New(2, 2), mask.New(2, 2), mask.New(2, 3)}
	_, err = BuildStep(device.CPUContext, emb, masks, 1, loss.NewMinTriplet(1))
	require.ErrorIs(t, err, embedding.ErrShapeMismatch)
}
