// Package mask holds binary foreground/background annotation grids, and
// partitions them into coordinate sets.
package mask

import (
	"errors"
	"fmt"
	"image"
)

var ErrShapeMismatch = errors.New("Mask shape mismatch")

// Coord is a position inside a mask. Row is the Y axis, Col is the X axis.
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%v,%v)", c.Row, c.Col)
}

// Mask is a binary grid of Height rows by Width columns.
// Zero is background, and any other value is foreground.
type Mask struct {
	width  int
	height int
	pix    []uint8 // Row major, len = width * height
}

// Create an all-background mask
func New(width, height int) Mask {
	if width < 0 || height < 0 {
		panic("Negative mask dimensions")
	}
	return Mask{
		width:  width,
		height: height,
		pix:    make([]uint8, width*height),
	}
}

// FromRows builds a mask from a grid of rows. All rows must have the same length.
func FromRows(rows [][]uint8) (Mask, error) {
	if len(rows) == 0 {
		return Mask{}, nil
	}
	m := New(len(rows[0]), len(rows))
	for r, row := range rows {
		if len(row) != m.width {
			return Mask{}, fmt.Errorf("%w: row %v has %v columns, but row 0 has %v", ErrShapeMismatch, r, len(row), m.width)
		}
		for c, v := range row {
			m.Set(r, c, v)
		}
	}
	return m, nil
}

// FromImage binarizes an image. Any pixel with a nonzero color channel is foreground.
func FromImage(img image.Image) Mask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if r != 0 || g != 0 || bl != 0 {
				m.pix[y*m.width+x] = 1
			}
		}
	}
	return m
}

func (m Mask) Width() int {
	return m.width
}

func (m Mask) Height() int {
	return m.height
}

func (m Mask) Empty() bool {
	return m.width == 0 || m.height == 0
}

// At returns true if the pixel at (row, col) is foreground
func (m Mask) At(row, col int) bool {
	return m.pix[row*m.width+col] != 0
}

func (m Mask) Set(row, col int, v uint8) {
	if v != 0 {
		v = 1
	}
	m.pix[row*m.width+col] = v
}

func (m Mask) CountForeground() int {
	n := 0
	for _, v := range m.pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Extract partitions every coordinate of the mask into foreground and background sets.
// Both sets are in row-major order, and together they contain every coordinate exactly once.
func Extract(m Mask) (fg, bg []Coord) {
	nfg := m.CountForeground()
	fg = make([]Coord, 0, nfg)
	bg = make([]Coord, 0, len(m.pix)-nfg)
	for r := 0; r < m.height; r++ {
		row := m.pix[r*m.width : (r+1)*m.width]
		for c, v := range row {
			if v != 0 {
				fg = append(fg, Coord{Row: r, Col: c})
			} else {
				bg = append(bg, Coord{Row: r, Col: c})
			}
		}
	}
	return
}

// ConcatWidth stacks two masks side by side (a on the left, b on the right).
func ConcatWidth(a, b Mask) (Mask, error) {
	if a.height != b.height {
		return Mask{}, fmt.Errorf("%w: cannot concatenate masks of height %v and %v", ErrShapeMismatch, a.height, b.height)
	}
	m := New(a.width+b.width, a.height)
	for r := 0; r < a.height; r++ {
		dst := m.pix[r*m.width : (r+1)*m.width]
		copy(dst, a.pix[r*a.width:(r+1)*a.width])
		copy(dst[a.width:], b.pix[r*b.width:(r+1)*b.width])
	}
	return m, nil
}

// Downsample brings a mask to the resolution of a strided network output.
// Every stride x stride cell is represented by its centre pixel. Partial cells
// on the right and bottom edges are dropped, matching integer division of the size.
func Downsample(m Mask, stride int) Mask {
	if stride <= 1 {
		return m
	}
	out := New(m.width/stride, m.height/stride)
	half := stride / 2
	for r := 0; r < out.height; r++ {
		for c := 0; c < out.width; c++ {
			out.pix[r*out.width+c] = m.pix[(r*stride+half)*m.width+c*stride+half]
		}
	}
	return out
}
