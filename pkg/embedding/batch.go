package embedding

import (
	"gonum.org/v1/gonum/mat"
)

// Batch is a stack of embedding vectors, one per row.
// gonum refuses to create a matrix with zero rows, so an empty batch
// carries only its vector length.
type Batch struct {
	dims int
	m    *mat.Dense
}

func EmptyBatch(dims int) Batch {
	return Batch{dims: dims}
}

// Create a batch from a matrix with one vector per row. A nil matrix is an empty batch.
func NewBatch(dims int, m *mat.Dense) Batch {
	if m != nil {
		_, c := m.Dims()
		if c != dims {
			panic("Batch matrix width does not match dims")
		}
	}
	return Batch{dims: dims, m: m}
}

// ZeroBatchLike creates a zero batch with the same shape as b
func ZeroBatchLike(b Batch) Batch {
	if b.Len() == 0 {
		return EmptyBatch(b.dims)
	}
	return Batch{dims: b.dims, m: mat.NewDense(b.Len(), b.dims, nil)}
}

// Number of vectors
func (b Batch) Len() int {
	if b.m == nil {
		return 0
	}
	r, _ := b.m.Dims()
	return r
}

// Length of each vector
func (b Batch) Dims() int {
	return b.dims
}

// Row returns the i'th vector. The slice aliases the batch's storage.
func (b Batch) Row(i int) []float64 {
	return b.m.RawRowView(i)
}

// Matrix returns the underlying matrix, or nil for an empty batch
func (b Batch) Matrix() *mat.Dense {
	return b.m
}
