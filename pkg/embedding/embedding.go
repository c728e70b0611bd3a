// Package embedding holds the dense per-pixel output of the embedding network,
// and the gather/scatter primitives that move vectors between a tensor and a batch.
package embedding

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/mask"
	"gonum.org/v1/gonum/mat"
)

var ErrShapeMismatch = errors.New("Embedding shape mismatch")

// Tensor is a dense embedding surface of shape (Dims, Width, Height).
// It is stored as a Dims x (Width*Height) matrix, where the column of the
// vector at (x, y) is x*Height + y. This makes concatenation along the
// width axis a plain horizontal matrix augment.
type Tensor struct {
	Dims   int
	Width  int
	Height int
	Data   *mat.Dense
}

// Create a zero tensor
func New(ctx device.Context, dims, width, height int) *Tensor {
	if dims <= 0 || width <= 0 || height <= 0 {
		panic(fmt.Sprintf("Invalid embedding shape (%v, %v, %v)", dims, width, height))
	}
	return &Tensor{
		Dims:   dims,
		Width:  width,
		Height: height,
		Data:   ctx.NewDense(dims, width*height),
	}
}

// Wrap an existing Dims x (Width*Height) matrix
func FromDense(data *mat.Dense, width, height int) (*Tensor, error) {
	r, c := data.Dims()
	if c != width*height {
		return nil, fmt.Errorf("%w: matrix has %v columns, but %v x %v needs %v", ErrShapeMismatch, c, width, height, width*height)
	}
	return &Tensor{
		Dims:   r,
		Width:  width,
		Height: height,
		Data:   data,
	}, nil
}

// ZerosLike returns a zero tensor with the same shape as t
func ZerosLike(ctx device.Context, t *Tensor) *Tensor {
	return New(ctx, t.Dims, t.Width, t.Height)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("(%v, %v, %v)", t.Dims, t.Width, t.Height)
}

func (t *Tensor) column(x, y int) int {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		panic(fmt.Sprintf("Embedding coordinate (%v, %v) out of bounds %v", x, y, t))
	}
	return x*t.Height + y
}

// At returns channel c of the vector at (x, y)
func (t *Tensor) At(c, x, y int) float64 {
	return t.Data.At(c, t.column(x, y))
}

func (t *Tensor) Set(c, x, y int, v float64) {
	t.Data.Set(c, t.column(x, y), v)
}

// Vector returns a copy of the embedding vector at (x, y)
func (t *Tensor) Vector(x, y int) []float64 {
	return mat.Col(nil, t.column(x, y), t.Data)
}

// The embedding vector for a mask coordinate. Col is X and Row is Y.
func (t *Tensor) columnOf(c mask.Coord) int {
	return t.column(c.Col, c.Row)
}

// SameShape returns true if a and b have identical dimensions
func SameShape(a, b *Tensor) bool {
	return a.Dims == b.Dims && a.Width == b.Width && a.Height == b.Height
}

// ConcatWidth places b to the right of a, producing a tensor of shape
// (Dims, a.Width + b.Width, Height).
func ConcatWidth(a, b *Tensor) (*Tensor, error) {
	if a.Dims != b.Dims || a.Height != b.Height {
		return nil, fmt.Errorf("%w: cannot concatenate %v and %v along width", ErrShapeMismatch, a, b)
	}
	out := &Tensor{
		Dims:   a.Dims,
		Width:  a.Width + b.Width,
		Height: a.Height,
		Data:   &mat.Dense{},
	}
	out.Data.Augment(a.Data, b.Data)
	return out, nil
}

// SplitWidth is the inverse of ConcatWidth. The first tensor receives the
// leftmost 'width' columns.
func SplitWidth(t *Tensor, width int) (*Tensor, *Tensor, error) {
	if width <= 0 || width >= t.Width {
		return nil, nil, fmt.Errorf("%w: cannot split %v at width %v", ErrShapeMismatch, t, width)
	}
	split := width * t.Height
	left := mat.DenseCopyOf(t.Data.Slice(0, t.Dims, 0, split))
	right := mat.DenseCopyOf(t.Data.Slice(0, t.Dims, split, t.Width*t.Height))
	return &Tensor{Dims: t.Dims, Width: width, Height: t.Height, Data: left},
		&Tensor{Dims: t.Dims, Width: t.Width - width, Height: t.Height, Data: right},
		nil
}

// Gather reads the embedding vector at every coordinate, and stacks them row-wise.
// The order of coords is preserved. An empty coords slice produces an empty batch.
// Every coordinate must lie inside the tensor, otherwise we panic.
func Gather(t *Tensor, coords []mask.Coord) Batch {
	if len(coords) == 0 {
		return EmptyBatch(t.Dims)
	}
	out := mat.NewDense(len(coords), t.Dims, nil)
	for i, c := range coords {
		mat.Col(out.RawRowView(i), t.columnOf(c), t.Data)
	}
	return Batch{dims: t.Dims, m: out}
}

// ScatterAdd is the adjoint of Gather. Row i of grad is added to the vector at coords[i].
// Repeated coordinates accumulate.
func ScatterAdd(t *Tensor, coords []mask.Coord, grad Batch) {
	if grad.Len() != len(coords) {
		panic(fmt.Sprintf("ScatterAdd: %v coordinates but %v gradient rows", len(coords), grad.Len()))
	}
	if len(coords) == 0 {
		return
	}
	if grad.Dims() != t.Dims {
		panic(fmt.Sprintf("ScatterAdd: gradient has %v dims, tensor has %v", grad.Dims(), t.Dims))
	}
	for i, c := range coords {
		col := t.columnOf(c)
		row := grad.Row(i)
		for d, v := range row {
			t.Data.Set(d, col, t.Data.At(d, col)+v)
		}
	}
}
