package dataset

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// Write a tiny DAVIS tree with one sequence of 3 frames.
// Frames are 16x12, and the left half of every annotation is foreground.
func makeDavis(t *testing.T) string {
	base := t.TempDir()
	lines := []string{}
	for i := 0; i < 3; i++ {
		name := []string{"00000", "00001", "00002"}[i]
		jpgRel := "/JPEGImages/480p/bear/" + name + ".jpg"
		pngRel := "/Annotations/480p/bear/" + name + ".png"
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(base, jpgRel)), 0755))
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(base, pngRel)), 0755))

		img := cimg.NewImage(16, 12, cimg.PixelFormatRGB)
		for j := range img.Pixels {
			img.Pixels[j] = byte(j * 7)
		}
		require.NoError(t, img.WriteJPEG(filepath.Join(base, jpgRel), cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644))

		ann := imaging.New(16, 12, color.Black)
		for y := 0; y < 12; y++ {
			for x := 0; x < 8; x++ {
				ann.Set(x, y, color.White)
			}
		}
		require.NoError(t, imaging.Save(ann, filepath.Join(base, pngRel)))
		lines = append(lines, jpgRel+" "+pngRel)
	}
	setFile := ImageSetPath(base, 2016, "train")
	require.NoError(t, os.MkdirAll(filepath.Dir(setFile), 0755))
	require.NoError(t, os.WriteFile(setFile, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return base
}

func TestDavis(t *testing.T) {
	base := makeDavis(t)
	d, err := NewDavis(logs.NewTestingLog(t), DavisOptions{
		BaseDir: base,
		Width:   8,
		Height:  8,
		Year:    2016,
		Phase:   "train",
	})
	require.NoError(t, err)
	require.Len(t, d.Frames, 3)
	require.Equal(t, "bear", d.Frames[0].Sequence)

	triplets, err := d.Triplets(0)
	require.NoError(t, err)
	require.Len(t, triplets, 3)

	sample, err := d.Load(triplets[1])
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.Equal(t, 8, sample.Frames[i].Width)
		require.Equal(t, 8, sample.Frames[i].Height)
		require.Equal(t, 8, sample.Masks[i].Width())
		require.Equal(t, 8, sample.Masks[i].Height())
		require.True(t, sample.Masks[i].At(0, 0))
		require.False(t, sample.Masks[i].At(7, 7))
	}
}

func TestDavisMissingImageSet(t *testing.T) {
	_, err := NewDavis(logs.NewTestingLog(t), DavisOptions{BaseDir: t.TempDir(), Width: 8, Height: 8, Year: 2016, Phase: "train"})
	require.Error(t, err)
}

func TestDavisBadImageSet(t *testing.T) {
	base := t.TempDir()
	setFile := ImageSetPath(base, 2016, "val")
	require.NoError(t, os.MkdirAll(filepath.Dir(setFile), 0755))
	require.NoError(t, os.WriteFile(setFile, []byte("/JPEGImages/480p/bear/00000.jpg\n"), 0644))
	_, err := NewDavis(logs.NewTestingLog(t), DavisOptions{BaseDir: base, Width: 8, Height: 8, Year: 2016, Phase: "val"})
	require.Error(t, err)
}
