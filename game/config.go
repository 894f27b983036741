package game

import (
	"errors"
	"fmt"
)

// Config is the immutable per-round configuration. It is built once, passed
// by value to every component that needs it and never mutated afterwards.
type Config struct {
	Width  float64
	Height float64

	SnakeRadius float64 // rendered radius; also the body radius for raycasts
	FoodRadius  float64

	// Epsilon is the tolerance used by the ray/disc tangency tests.
	Epsilon float64

	// RotationRate scales the per-tick heading correction of the head.
	RotationRate float64

	// CollisionDistance is the head-to-segment distance that counts as self
	// collision. It is deliberately much tighter than SnakeRadius.
	CollisionDistance float64

	ScoreIncrement int
	GrowthAmount   int
	InitialLength  int

	// RefreshRate is the live rendering cadence in frames per second. The
	// simulation itself is frame-count based and ignores it.
	RefreshRate int
}

// DefaultConfig matches the reference arena: 640x480, radius 10.
func DefaultConfig() Config {
	const radius = 10.0
	return Config{
		Width:             640,
		Height:            480,
		SnakeRadius:       radius,
		FoodRadius:        radius / 1.5,
		Epsilon:           0.01,
		RotationRate:      0.1,
		CollisionDistance: 1,
		ScoreIncrement:    5,
		GrowthAmount:      5,
		InitialLength:     30,
		RefreshRate:       60,
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: arena %gx%g", ErrInvalidConfig, c.Width, c.Height)
	case c.SnakeRadius <= 0 || c.FoodRadius <= 0:
		return fmt.Errorf("%w: radii snake=%g food=%g", ErrInvalidConfig, c.SnakeRadius, c.FoodRadius)
	case 2*c.SnakeRadius >= c.Width || 2*c.SnakeRadius >= c.Height:
		return fmt.Errorf("%w: snake radius %g does not fit arena", ErrInvalidConfig, c.SnakeRadius)
	case c.Epsilon < 0:
		return fmt.Errorf("%w: epsilon %g", ErrInvalidConfig, c.Epsilon)
	case c.RotationRate <= 0:
		return fmt.Errorf("%w: rotation rate %g", ErrInvalidConfig, c.RotationRate)
	case c.CollisionDistance <= 0:
		return fmt.Errorf("%w: collision distance %g", ErrInvalidConfig, c.CollisionDistance)
	case c.GrowthAmount < 0 || c.ScoreIncrement < 0:
		return fmt.Errorf("%w: growth=%d score=%d", ErrInvalidConfig, c.GrowthAmount, c.ScoreIncrement)
	case c.InitialLength < 1:
		return fmt.Errorf("%w: initial length %d", ErrInvalidConfig, c.InitialLength)
	}
	return nil
}

// Center returns the arena midpoint rounded down to whole units, the spawn
// point of new snakes.
func (c Config) Center() Vector {
	return V(float64(int(c.Width)/2), float64(int(c.Height)/2))
}

// Contains reports whether p lies inside the arena, edges included.
func (c Config) Contains(p Vector) bool {
	return p.X >= 0 && p.X <= c.Width && p.Y >= 0 && p.Y <= c.Height
}
