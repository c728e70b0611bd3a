package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSynthetic(t *testing.T) {
	s, err := NewSynthetic(SyntheticOptions{Width: 16, Height: 16, NumFrames: 5, Seed: 3})
	require.NoError(t, err)

	triplets, err := s.Triplets(0)
	require.NoError(t, err)
	require.Len(t, triplets, 5)

	sample, err := s.Load(triplets[0])
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.Equal(t, 16, sample.Frames[i].Width)
		require.Equal(t, 16, sample.Masks[i].Width())
		require.Equal(t, 16, sample.Masks[i].Height())
		require.Equal(t, 16, sample.Masks[i].CountForeground())
	}

	// Deterministic
	again, err := s.Load(triplets[0])
	require.NoError(t, err)
	require.Equal(t, sample.Frames[0].Pix, again.Frames[0].Pix)

	_, err = s.Load(Triplet{0, 1, 5})
	require.Error(t, err)

	_, err = NewSynthetic(SyntheticOptions{Width: 16, Height: 16, NumFrames: 2})
	require.Error(t, err)
}
