// Package feed assembles the public deal feed.
package feed

import (
	"math/rand/v2"

	"github.com/pauljones0/dealboard/internal/models"
)

// Shuffler is a source of uniform random permutations. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type globalSource struct{}

func (globalSource) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// Interleave groups deals by category, shuffles the group order and each
// group's contents, then takes one deal per group per pass until every
// group is drained. The result is a permutation of the input. A nil
// Shuffler uses the global random source.
func Interleave(deals []models.Deal, rng Shuffler) []models.Deal {
	if rng == nil {
		rng = globalSource{}
	}

	var keys []string
	groups := make(map[string][]models.Deal)
	for _, d := range deals {
		if _, seen := groups[d.Category]; !seen {
			keys = append(keys, d.Category)
		}
		groups[d.Category] = append(groups[d.Category], d)
	}

	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, k := range keys {
		g := groups[k]
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
	}

	out := make([]models.Deal, 0, len(deals))
	for len(out) < len(deals) {
		for _, k := range keys {
			if g := groups[k]; len(g) > 0 {
				out = append(out, g[0])
				groups[k] = g[1:]
			}
		}
	}
	return out
}
