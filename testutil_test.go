package pansim

import "math/rand"

func newTestRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
