package dataset

import (
	"math/rand"
)

// TripletSampler picks two pooling frames for every anchor frame.
// The pooling frames always come from the anchor's own sequence.
type TripletSampler struct {
	sequences [][]int
	randomize bool
	seed      int64
}

// NewTripletSampler creates a sampler over 'sequences', where each element is
// the ordered list of frame indices of one video sequence.
// Sequences with fewer than 3 frames are ignored.
// If randomize is false, the pooling frames of anchor i are frames i-1 and i-2
// of the same sequence (wrapping around to the end), and anchors are visited in order.
// If randomize is true, anchors are shuffled and the pooling frames are two distinct
// random frames, drawn from a generator seeded with seed+epoch.
func NewTripletSampler(sequences [][]int, randomize bool, seed int64) *TripletSampler {
	s := &TripletSampler{
		randomize: randomize,
		seed:      seed,
	}
	for _, seq := range sequences {
		if len(seq) >= 3 {
			s.sequences = append(s.sequences, seq)
		}
	}
	return s
}

// NumTriplets is the number of triplets produced per epoch
func (s *TripletSampler) NumTriplets() int {
	n := 0
	for _, seq := range s.sequences {
		n += len(seq)
	}
	return n
}

func (s *TripletSampler) Triplets(epoch int) ([]Triplet, error) {
	if len(s.sequences) == 0 {
		return nil, ErrNoTriplets
	}
	triplets := make([]Triplet, 0, s.NumTriplets())
	if !s.randomize {
		for _, seq := range s.sequences {
			n := len(seq)
			for i := range seq {
				triplets = append(triplets, Triplet{
					Anchor: seq[i],
					Pool1:  seq[(i+n-1)%n],
					Pool2:  seq[(i+n-2)%n],
				})
			}
		}
		return triplets, nil
	}

	rng := rand.New(rand.NewSource(s.seed + int64(epoch)))
	for _, seq := range s.sequences {
		n := len(seq)
		for i := range seq {
			// Pick two distinct positions out of the n-1 positions other than i
			a := rng.Intn(n - 1)
			b := rng.Intn(n - 2)
			if b >= a {
				b++
			}
			if a >= i {
				a++
			}
			if b >= i {
				b++
			}
			triplets = append(triplets, Triplet{
				Anchor: seq[i],
				Pool1:  seq[a],
				Pool2:  seq[b],
			})
		}
	}
	rng.Shuffle(len(triplets), func(i, j int) {
		triplets[i], triplets[j] = triplets[j], triplets[i]
	})
	return triplets, nil
}
