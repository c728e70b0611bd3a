// Package dataset provides training samples: a triplet of RGB frames from the
// same video sequence (anchor, pool 1, pool 2), and their binary annotations.
package dataset

import (
	"errors"

	"github.com/cyclopcam/bfvos/pkg/mask"
)

var ErrNoTriplets = errors.New("Dataset contains no sequence with at least 3 frames")

// Triplet identifies three frames of one sequence.
// Frame indices are local to the Source that produced them.
type Triplet struct {
	Anchor int
	Pool1  int
	Pool2  int
}

// Indices returns the frames in the order anchor, pool 1, pool 2
func (t Triplet) Indices() [3]int {
	return [3]int{t.Anchor, t.Pool1, t.Pool2}
}

// Sample is one training batch.
// Frames and Masks are ordered anchor, pool 1, pool 2.
// Every mask has the same dimensions as its frame.
type Sample struct {
	Frames [3]*Frame
	Masks  [3]mask.Mask
}

// Source produces training samples.
// The choice of triplets belongs to the source, and may vary by epoch.
type Source interface {
	// Triplets returns the ordered list of batches for an epoch (zero based)
	Triplets(epoch int) ([]Triplet, error)

	// Load reads the frames and annotations of a triplet
	Load(t Triplet) (*Sample, error)
}
