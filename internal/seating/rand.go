package seating

import (
	"math/rand/v2"
	"time"
)

// Rand is the source of randomness used by the Selector. *rand.Rand from
// math/rand/v2 satisfies it; tests inject scripted implementations.
type Rand interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a freshly seeded generator. A *rand.Rand is not safe for
// concurrent use, so every registration attempt takes its own.
func NewRand() Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// NewSeededRand returns a deterministic generator.
func NewSeededRand(seed1, seed2 uint64) Rand {
	return rand.New(rand.NewPCG(seed1, seed2))
}
