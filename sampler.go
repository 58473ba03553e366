package pansim

import (
	"math/rand"
	"sort"
)

// Sampler draws a value from a probability distribution over integers
// using an rng supplied by the caller, so that draws are reproducible
// from a per-person seed.
type Sampler interface {
	Sample(rng *rand.Rand) int32
}

// FixedSampler always returns the same value. It backs the "fixed"
// distribution family in the disease model.
type FixedSampler struct {
	Value int32
}

// Sample returns the fixed value, ignoring rng.
func (s FixedSampler) Sample(rng *rand.Rand) int32 {
	return s.Value
}

// CategoricalSampler draws from a discrete distribution over int32
// values in constant time via Vose's alias method. Construction is
// O(n); every call to Sample thereafter is O(1) and unbiased.
type CategoricalSampler struct {
	values []int32
	prob   []float64 // alias probability table, len == len(values)
	alias  []int     // alias index table, len == len(values)
}

// NewCategoricalSampler builds the alias tables for dist, a map from
// value to probability. The probabilities must already have been
// validated to sum to 1 by the caller (disease model loading does this
// once, with a tolerance, across every distribution it builds).
func NewCategoricalSampler(dist map[int32]float64) *CategoricalSampler {
	n := len(dist)
	values := make([]int32, 0, n)
	for v := range dist {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	p := make([]float64, n)
	for i, v := range values {
		p[i] = dist[v] * float64(n)
	}

	prob := make([]float64, n)
	alias := make([]int, n)

	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i, pr := range p {
		if pr < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		g := large[len(large)-1]
		large = large[:len(large)-1]

		prob[l] = p[l]
		alias[l] = g

		p[g] = p[g] + p[l] - 1.0
		if p[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}
	for len(large) > 0 {
		g := large[len(large)-1]
		large = large[:len(large)-1]
		prob[g] = 1.0
	}
	for len(small) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		prob[l] = 1.0
	}

	return &CategoricalSampler{values: values, prob: prob, alias: alias}
}

// Sample draws one value in O(1) time.
func (s *CategoricalSampler) Sample(rng *rand.Rand) int32 {
	n := len(s.values)
	i := rng.Intn(n)
	if rng.Float64() < s.prob[i] {
		return s.values[i]
	}
	return s.values[s.alias[i]]
}
