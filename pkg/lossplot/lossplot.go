package lossplot

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// Point is the running average loss at one log interval
type Point struct {
	Epoch int     `json:"epoch"`
	Batch int     `json:"batch"`
	Fg    float64 `json:"fg"`
	Bg    float64 `json:"bg"`
	Total float64 `json:"total"`
}

const margin = 20

// Render draws the fg (red), bg (blue) and total (black) loss curves, one sample per point.
// The vertical axis runs from zero to the largest finite loss.
func Render(points []Point, width, height int) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// axes
	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetLineWidth(1)
	dc.DrawLine(margin, margin, margin, float64(height-margin))
	dc.DrawLine(margin, float64(height-margin), float64(width-margin), float64(height-margin))
	dc.Stroke()

	if len(points) == 0 {
		return dc.Image()
	}

	maxLoss := 0.0
	for _, p := range points {
		for _, v := range []float64{p.Fg, p.Bg, p.Total} {
			if isFinite(v) && v > maxLoss {
				maxLoss = v
			}
		}
	}
	if maxLoss == 0 {
		maxLoss = 1
	}

	plotW := float64(width - 2*margin)
	plotH := float64(height - 2*margin)
	x := func(i int) float64 {
		if len(points) == 1 {
			return margin + plotW/2
		}
		return margin + plotW*float64(i)/float64(len(points)-1)
	}
	y := func(v float64) float64 {
		return float64(height-margin) - plotH*v/maxLoss
	}

	curve := func(r, g, b float64, value func(p Point) float64) {
		dc.SetRGB(r, g, b)
		dc.SetLineWidth(2)
		started := false
		for i, p := range points {
			v := value(p)
			if !isFinite(v) {
				started = false
				continue
			}
			if started {
				dc.LineTo(x(i), y(v))
			} else {
				dc.MoveTo(x(i), y(v))
				started = true
			}
		}
		dc.Stroke()
		if len(points) == 1 && isFinite(value(points[0])) {
			dc.DrawCircle(x(0), y(value(points[0])), 2)
			dc.Fill()
		}
	}
	curve(0.85, 0.1, 0.1, func(p Point) float64 { return p.Fg })
	curve(0.1, 0.2, 0.85, func(p Point) float64 { return p.Bg })
	curve(0, 0, 0, func(p Point) float64 { return p.Total })
	return dc.Image()
}

// WritePNG renders the curves and encodes them as PNG
func WritePNG(w io.Writer, points []Point, width, height int) error {
	if width <= 2*margin || height <= 2*margin {
		return fmt.Errorf("Plot size %v x %v is too small", width, height)
	}
	dc := gg.NewContextForImage(Render(points, width, height))
	return dc.EncodePNG(w)
}

// SavePNG renders the curves into a PNG file
func SavePNG(filename string, points []Point, width, height int) error {
	if width <= 2*margin || height <= 2*margin {
		return fmt.Errorf("Plot size %v x %v is too small", width, height)
	}
	dc := gg.NewContextForImage(Render(points, width, height))
	return dc.SavePNG(filename)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
