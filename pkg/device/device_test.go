package device

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	k, err := Parse("cpu")
	require.NoError(t, err)
	require.Equal(t, CPU, k)

	k, err = Parse(" CUDA ")
	require.NoError(t, err)
	require.Equal(t, CUDA, k)

	_, err = Parse("tpu")
	require.Error(t, err)
}

func TestResolveFallsBackToCPU(t *testing.T) {
	ctx, err := Resolve(logs.NewTestingLog(t), "cuda")
	require.NoError(t, err)
	require.Equal(t, CPU, ctx.Kind)
	require.Equal(t, Float64, ctx.Precision)

	m := ctx.NewDense(2, 3)
	r, c := m.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
}
