// Package rng provides the fair randomness used to settle coinflip matches:
// the landed side of a flip and the choice of which player calls.
package rng

import (
	"math/rand"
	"sync"
	"time"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// Provider produces fair binary outcomes. Implementations must be uniform;
// determinism is not required and not desired outside of tests.
type Provider interface {
	// FlipCoin returns heads or tails with uniform probability.
	FlipCoin() models.Side

	// ChooseCaller returns a or b with uniform probability.
	ChooseCaller(a, b int64) int64
}

// Rand is a Provider backed by a seeded rand.Rand.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a Rand with its own seed.
func New() *Rand {
	src := rand.NewSource(time.Now().UnixNano())
	return &Rand{rng: rand.New(src)}
}

func (r *Rand) FlipCoin() models.Side {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng.Intn(2) == 0 {
		return models.SideHeads
	}
	return models.SideTails
}

func (r *Rand) ChooseCaller(a, b int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng.Intn(2) == 0 {
		return a
	}
	return b
}
