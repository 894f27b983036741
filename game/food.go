// food.go implements the food placement collaborators.

package game

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrFoodExhausted is returned by FixedFood once every scripted position has
// been handed out.
var ErrFoodExhausted = errors.New("food sequence exhausted")

// FoodProvider supplies food positions. It is called once at round start and
// once per consumption event. Implementations are owned by a single agent
// and need not be safe for concurrent use.
type FoodProvider interface {
	Food() (Vector, error)
}

// FixedFood hands out a scripted sequence through an explicit cursor.
type FixedFood struct {
	positions []Vector
	next      int
}

func NewFixedFood(positions ...Vector) *FixedFood {
	return &FixedFood{positions: append([]Vector(nil), positions...)}
}

func (f *FixedFood) Food() (Vector, error) {
	if f.next >= len(f.positions) {
		return Vector{}, fmt.Errorf("after %d positions: %w", len(f.positions), ErrFoodExhausted)
	}
	p := f.positions[f.next]
	f.next++
	return p, nil
}

// Remaining reports how many scripted positions have not been served yet.
func (f *FixedFood) Remaining() int {
	return len(f.positions) - f.next
}

// RandomFood places food uniformly inside the arena, keeping a SnakeRadius
// margin from every wall.
type RandomFood struct {
	cfg Config
	rng *rand.Rand
}

// NewRandomFood seeds its own source; two providers built with the same seed
// produce the same sequence.
func NewRandomFood(cfg Config, seed int64) *RandomFood {
	return &RandomFood{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (f *RandomFood) Food() (Vector, error) {
	m := f.cfg.SnakeRadius
	w := f.cfg.Width - 2*m
	h := f.cfg.Height - 2*m
	if w <= 0 || h <= 0 {
		return Vector{}, fmt.Errorf("%w: no room for food with margin %g", ErrInvalidConfig, m)
	}
	return V(m+f.rng.Float64()*w, m+f.rng.Float64()*h), nil
}

// CountingFood wraps a provider and counts how often it was asked.
type CountingFood struct {
	FoodProvider
	Calls int
}

func (c *CountingFood) Food() (Vector, error) {
	c.Calls++
	return c.FoodProvider.Food()
}
