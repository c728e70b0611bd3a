package mask

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustRows(t *testing.T, rows [][]uint8) Mask {
	m, err := FromRows(rows)
	require.NoError(t, err)
	return m
}

func TestExtractDiagonal(t *testing.T) {
	m := mustRows(t, [][]uint8{
		{1, 0},
		{0, 1},
	})
	fg, bg := Extract(m)
	require.Equal(t, []Coord{{0, 0}, {1, 1}}, fg)
	require.Equal(t, []Coord{{0, 1}, {1, 0}}, bg)
}

func TestExtractPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		w := 1 + rng.Intn(13)
		h := 1 + rng.Intn(9)
		m := New(w, h)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				m.Set(r, c, uint8(rng.Intn(3)))
			}
		}
		fg, bg := Extract(m)
		require.Equal(t, w*h, len(fg)+len(bg))
		require.Equal(t, m.CountForeground(), len(fg))
		seen := map[Coord]int{}
		for _, c := range fg {
			require.True(t, m.At(c.Row, c.Col))
			seen[c]++
		}
		for _, c := range bg {
			require.False(t, m.At(c.Row, c.Col))
			seen[c]++
		}
		require.Equal(t, w*h, len(seen))
		for _, n := range seen {
			require.Equal(t, 1, n)
		}
	}
}

func TestExtractAllOneClass(t *testing.T) {
	m := mustRows(t, [][]uint8{{1, 1, 1}})
	fg, bg := Extract(m)
	require.Len(t, fg, 3)
	require.Len(t, bg, 0)

	m = New(3, 2)
	fg, bg = Extract(m)
	require.Len(t, fg, 0)
	require.Len(t, bg, 6)
}

func TestConcatWidth(t *testing.T) {
	a := mustRows(t, [][]uint8{{1, 0}})
	b := mustRows(t, [][]uint8{{0, 1}})
	m, err := ConcatWidth(a, b)
	require.NoError(t, err)
	require.Equal(t, 4, m.Width())
	require.Equal(t, 1, m.Height())
	fg, bg := Extract(m)
	require.Equal(t, []Coord{{0, 0}, {0, 3}}, fg)
	require.Equal(t, []Coord{{0, 1}, {0, 2}}, bg)

	_, err = ConcatWidth(a, New(2, 2))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFromRowsRagged(t *testing.T) {
	_, err := FromRows([][]uint8{{1, 0}, {1}})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDownsample(t *testing.T) {
	m := New(50, 50)
	// Foreground block covering the second 8x8 cell of the first cell-row
	for r := 0; r < 8; r++ {
		for c := 8; c < 16; c++ {
			m.Set(r, c, 1)
		}
	}
	d := Downsample(m, 8)
	require.Equal(t, 6, d.Width())
	require.Equal(t, 6, d.Height())
	fg, _ := Extract(d)
	require.Equal(t, []Coord{{0, 1}}, fg)

	require.Equal(t, m, Downsample(m, 1))
}

func TestFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(2, 1, color.Gray{Y: 255})
	m := FromImage(img)
	require.Equal(t, 3, m.Width())
	require.Equal(t, 2, m.Height())
	fg, _ := Extract(m)
	require.Equal(t, []Coord{{1, 2}}, fg)
}
