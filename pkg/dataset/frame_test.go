package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromRGB(t *testing.T) {
	// 2x1 image with a padded stride
	rgb := []byte{
		255, 0, 51, 0, 255, 102, 9, 9,
	}
	f, err := FromRGB(2, 1, 8, rgb)
	require.NoError(t, err)
	require.Equal(t, float32(1), f.At(0, 0, 0))
	require.Equal(t, float32(0), f.At(1, 0, 0))
	require.InDelta(t, 0.2, f.At(2, 0, 0), 1e-6)
	require.Equal(t, float32(0), f.At(0, 1, 0))
	require.Equal(t, float32(1), f.At(1, 1, 0))
	require.InDelta(t, 0.4, f.At(2, 1, 0), 1e-6)

	_, err = FromRGB(4, 2, 12, rgb)
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	f := NewFrame(4, 1)
	copy(f.Channel(0), []float32{1, 2, 3, 4})
	copy(f.Channel(1), []float32{5, 5, 5, 5})
	f.Normalize()

	var sum, sumSq float32
	for _, v := range f.Channel(0) {
		sum += v
		sumSq += v * v
	}
	require.InDelta(t, 0, sum, 1e-5)
	require.InDelta(t, 4, sumSq, 1e-4)

	// Constant channels are only centered
	for _, v := range f.Channel(1) {
		require.Equal(t, float32(0), v)
	}
}
