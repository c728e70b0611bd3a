package loss

import (
	"github.com/cyclopcam/bfvos/pkg/embedding"
	"gonum.org/v1/gonum/floats"
)

// Function is a metric learning loss over an anchor batch, and a pool of
// positive and negative embeddings.
type Function interface {
	Loss(anchor, positive, negative embedding.Batch) Result
}

// Result of a loss evaluation. The gradients have the same shape as the inputs,
// and are the derivatives of Value with respect to each input vector.
type Result struct {
	Value        float64
	Anchors      int // Number of anchors evaluated
	Active       int // Number of anchors whose hinge was positive
	GradAnchor   embedding.Batch
	GradPositive embedding.Batch
	GradNegative embedding.Batch
}

// MinTriplet is a triplet loss where every anchor is compared against the closest
// embedding in the positive pool, and the closest embedding in the negative pool:
//
//	max(0, min_p |a - p| - min_n |a - n| + Alpha)
//
// The per-anchor hinges are averaged.
type MinTriplet struct {
	Alpha float64
}

func NewMinTriplet(alpha float64) *MinTriplet {
	return &MinTriplet{Alpha: alpha}
}

// Returns the index and Euclidean distance of the row in pool that is closest to v.
// pool must not be empty.
func nearest(v []float64, pool embedding.Batch) (int, float64) {
	best := 0
	bestDist := floats.Distance(v, pool.Row(0), 2)
	for i := 1; i < pool.Len(); i++ {
		d := floats.Distance(v, pool.Row(i), 2)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// Adds scale * (a - b) / |a - b| to dst. The direction is undefined when a == b,
// and we add nothing.
func addUnitDiff(dst, a, b []float64, dist, scale float64) {
	if dist == 0 {
		return
	}
	s := scale / dist
	floats.AddScaled(dst, s, a)
	floats.AddScaled(dst, -s, b)
}

// Loss computes the mean hinge over every anchor.
// If any of the three batches is empty, the loss is zero.
func (m *MinTriplet) Loss(anchor, positive, negative embedding.Batch) Result {
	r := Result{
		Anchors:      anchor.Len(),
		GradAnchor:   embedding.ZeroBatchLike(anchor),
		GradPositive: embedding.ZeroBatchLike(positive),
		GradNegative: embedding.ZeroBatchLike(negative),
	}
	if anchor.Len() == 0 || positive.Len() == 0 || negative.Len() == 0 {
		return r
	}

	scale := 1 / float64(anchor.Len())
	total := 0.0
	for i := 0; i < anchor.Len(); i++ {
		a := anchor.Row(i)
		ip, dp := nearest(a, positive)
		in, dn := nearest(a, negative)
		hinge := dp - dn + m.Alpha
		if hinge <= 0 {
			continue
		}
		total += hinge
		r.Active++

		p := positive.Row(ip)
		n := negative.Row(in)
		// d(dp)/da = (a - p)/dp and d(dn)/da = (a - n)/dn
		addUnitDiff(r.GradAnchor.Row(i), a, p, dp, scale)
		addUnitDiff(r.GradAnchor.Row(i), a, n, dn, -scale)
		addUnitDiff(r.GradPositive.Row(ip), a, p, dp, -scale)
		addUnitDiff(r.GradNegative.Row(in), a, n, dn, scale)
	}
	r.Value = total * scale
	return r
}
