package game

import (
	"math"
	"math/rand"
)

// numberGenerator draws the numbers revealed during a round. Draws follow
// ceil(-ln(U) * 10) for uniform U in (0, 1): an exponential-like
// distribution of positive integers with mean around 10 and a heavy right
// tail, so high numbers are rare and worth waiting for.
//
// Not safe for concurrent use; the reveal loop is its only caller.
type numberGenerator struct {
	rng *rand.Rand
}

func newNumberGenerator(seed int64) *numberGenerator {
	return &numberGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Next returns the first draw not present in exclude. With ten numbers per
// round collisions are rare and a redraw settles them; a very large
// exclusion set would make this loop for a long time, which is accepted at
// game scale rather than capped.
func (g *numberGenerator) Next(exclude map[int]struct{}) int {
	for {
		u := g.rng.Float64()
		if u == 0 {
			continue
		}
		n := int(math.Ceil(-math.Log(u) * 10))
		if _, taken := exclude[n]; taken {
			continue
		}
		return n
	}
}
