// Package rewards picks the reward granted for an admitted vote.
package rewards

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/abrezinsky/voterewards/internal/models"
)

// weightScale turns percentage chances into integer weights (three decimals kept)
const weightScale = 1000

// Selector draws a reward from a weighted candidate list.
// Safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector. A nil source seeds from the clock.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{rng: rand.New(src)}
}

// Select filters candidates by server eligibility and draws one proportionally
// to its chances. A nil serverID skips filtering. Returns nil when nothing is
// eligible or the total weight is not positive.
func (s *Selector) Select(candidates []models.Reward, serverID *int) *models.Reward {
	eligible := Eligible(candidates, serverID)
	if len(eligible) == 0 {
		return nil
	}

	weights := make([]int64, len(eligible))
	var total int64
	for i, r := range eligible {
		weights[i] = Weight(r.Chances)
		total += weights[i]
	}
	if total <= 0 {
		return nil
	}

	s.mu.Lock()
	draw := s.rng.Int63n(total) + 1
	s.mu.Unlock()

	var sum int64
	for i := range eligible {
		sum += weights[i]
		if sum >= draw {
			r := eligible[i]
			return &r
		}
	}

	r := eligible[len(eligible)-1]
	return &r
}

// Eligible returns the rewards allowed on serverID, preserving order
func Eligible(candidates []models.Reward, serverID *int) []models.Reward {
	if serverID == nil {
		return candidates
	}
	out := make([]models.Reward, 0, len(candidates))
	for _, r := range candidates {
		if r.EligibleFor(*serverID) {
			out = append(out, r)
		}
	}
	return out
}

// Weight converts a chance percentage to an integer weight. Negative chances weigh zero.
func Weight(chances float64) int64 {
	if chances <= 0 || math.IsNaN(chances) {
		return 0
	}
	return int64(math.Round(chances * weightScale))
}

// SortByChances orders rewards by descending chances, then ascending ID
func SortByChances(rewards []models.Reward) {
	sort.SliceStable(rewards, func(i, j int) bool {
		if rewards[i].Chances != rewards[j].Chances {
			return rewards[i].Chances > rewards[j].Chances
		}
		return rewards[i].ID < rewards[j].ID
	})
}
