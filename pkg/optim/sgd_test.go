package optim

import (
	"testing"

	"github.com/cyclopcam/bfvos/pkg/network"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSGDMomentum(t *testing.T) {
	p := &network.Param{
		Name:  "w",
		Value: mat.NewDense(1, 2, []float64{1, 2}),
		Grad:  mat.NewDense(1, 2, nil),
	}
	opt := NewSGD([]*network.Param{p}, 0.1, 0.5)

	p.Grad.Set(0, 0, 1)
	p.Grad.Set(0, 1, -2)
	require.NoError(t, opt.Step())
	// v = g
	require.InDeltaSlice(t, []float64{0.9, 2.2}, p.Value.RawMatrix().Data, 1e-12)

	// Same gradient again: v = 0.5*v + g = 1.5*g
	require.NoError(t, opt.Step())
	require.InDeltaSlice(t, []float64{0.75, 2.5}, p.Value.RawMatrix().Data, 1e-12)

	opt.ZeroGrad()
	require.Equal(t, []float64{0, 0}, p.Grad.RawMatrix().Data)

	// Zero gradient still moves the parameter by the remaining velocity
	require.NoError(t, opt.Step())
	require.InDeltaSlice(t, []float64{0.675, 2.65}, p.Value.RawMatrix().Data, 1e-12)
}

func TestSGDShapeMismatch(t *testing.T) {
	p := &network.Param{
		Name:  "w",
		Value: mat.NewDense(1, 2, nil),
		Grad:  mat.NewDense(2, 1, nil),
	}
	require.Error(t, NewSGD([]*network.Param{p}, 0.1, 0).Step())
}
