// Package dice draws random results for decision categories.
package dice

import (
	"math/rand"
	"sync"
	"time"

	"dicedecision/internal/domain"
)

// Generator draws uniformly random faces from an injected source.
// Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator over src. A nil src seeds from the clock.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(src)}
}

// NewSeededGenerator is shorthand for a deterministic generator
func NewSeededGenerator(seed int64) *Generator {
	return NewGenerator(rand.NewSource(seed))
}

// Draw returns the results for category.
//
// Single-draw categories yield one result. Composite categories yield one
// independent draw per sub-set, in sub-set order (quick is activity, then food).
// Unknown categories yield nil; callers validate with Category.Valid first.
func (g *Generator) Draw(category domain.Category) []domain.Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if parts, ok := compositeSets[category]; ok {
		results := make([]domain.Result, 0, len(parts))
		for _, part := range parts {
			results = append(results, g.pick(faceSets[part]))
		}
		return results
	}

	faces, ok := faceSets[category]
	if !ok || len(faces) == 0 {
		return nil
	}
	return []domain.Result{g.pick(faces)}
}

// pick must be called with mu held
func (g *Generator) pick(faces []domain.Result) domain.Result {
	return faces[g.rng.Intn(len(faces))]
}
