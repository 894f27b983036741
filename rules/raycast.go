package rules

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/raysnek/game"
)

// ErrOriginOutOfBounds is returned when a ray starts strictly outside the
// arena. The wall math assumes an interior origin, so such queries are
// rejected instead of producing negative distances.
var ErrOriginOutOfBounds = errors.New("ray origin outside arena")

// HitKind says which obstacle class stopped a ray.
type HitKind int

const (
	HitWall HitKind = iota
	HitFood
	HitBody
)

func (k HitKind) String() string {
	switch k {
	case HitFood:
		return "food"
	case HitBody:
		return "body"
	default:
		return "wall"
	}
}

// Hit is the result of a single cast.
type Hit struct {
	Distance float64
	Kind     HitKind
	Segment  int // index into Obstacles.Body for HitBody, otherwise -1
}

// Obstacles is the per-tick snapshot a ray is tested against.
// Body must not contain the casting snake's head.
type Obstacles struct {
	Food       game.Vector
	FoodRadius float64

	Body       []game.Vector
	BodyRadius float64

	Width  float64
	Height float64

	// Epsilon is the tangency tolerance of the disc tests.
	Epsilon float64
}

// ObstaclesFor snapshots the round as seen from its own head.
func ObstaclesFor(cfg game.Config, r *game.Round) Obstacles {
	tail := r.Snake.Tail()
	body := make([]game.Vector, len(tail))
	for i, seg := range tail {
		body[i] = seg.Position
	}
	return Obstacles{
		Food:       r.Food,
		FoodRadius: cfg.FoodRadius,
		Body:       body,
		BodyRadius: cfg.SnakeRadius,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Epsilon:    cfg.Epsilon,
	}
}

// Cast returns the distance from origin along direction to the first
// obstacle in priority order food, body, wall.
//
// The order is a priority search, not a nearest-of-three: a matching food
// disc wins even when a body segment or wall is closer. Food and body
// distances are the projection of the center onto the ray rather than the
// exact chord entry point.
func Cast(obs Obstacles, origin, direction game.Vector) (Hit, error) {
	dir, err := direction.Normalize()
	if err != nil {
		return Hit{}, fmt.Errorf("cast direction: %w", err)
	}
	if origin.X < 0 || origin.X > obs.Width || origin.Y < 0 || origin.Y > obs.Height {
		return Hit{}, fmt.Errorf("%w: %v in %gx%g", ErrOriginOutOfBounds, origin, obs.Width, obs.Height)
	}

	if d, ok := discHit(origin, dir, obs.Food, obs.FoodRadius, obs.Epsilon); ok {
		return Hit{Distance: d, Kind: HitFood, Segment: -1}, nil
	}

	if idx, d, ok := bodyHit(origin, dir, obs); ok {
		return Hit{Distance: d, Kind: HitBody, Segment: idx}, nil
	}

	return Hit{Distance: wallDistance(origin, dir, obs.Width, obs.Height), Kind: HitWall, Segment: -1}, nil
}

// cosineTo returns the cosine between dir and the vector to center, and the
// distance to center. A center coincident with origin counts as dead ahead.
func cosineTo(origin, dir, center game.Vector) (cos, dist float64) {
	to := center.Sub(origin)
	dist = to.Len()
	if dist == 0 {
		return 1, 0
	}
	return dir.Dot(to.Scale(1 / dist)), dist
}

// discTest applies the tangency test for a disc whose center is dist away at
// the given cosine. It returns the projected hit distance.
func discTest(cos, dist, radius, eps float64) (float64, bool) {
	if cos <= 0 {
		return 0, false
	}
	c := math.Min(1, cos)
	offset := dist * math.Sin(math.Acos(c))
	if offset-radius < eps {
		return dist * c, true
	}
	return 0, false
}

func discHit(origin, dir, center game.Vector, radius, eps float64) (float64, bool) {
	cos, dist := cosineTo(origin, dir, center)
	return discTest(cos, dist, radius, eps)
}

// bodyHit tests only the most head-on segment. If that one misses, the body
// produces no candidate even if another segment would have matched.
func bodyHit(origin, dir game.Vector, obs Obstacles) (int, float64, bool) {
	if len(obs.Body) == 0 {
		return -1, 0, false
	}
	best := -1
	bestCos, bestDist := math.Inf(-1), 0.0
	for i, p := range obs.Body {
		cos, dist := cosineTo(origin, dir, p)
		if cos > bestCos {
			best, bestCos, bestDist = i, cos, dist
		}
	}
	d, ok := discTest(bestCos, bestDist, obs.BodyRadius, obs.Epsilon)
	if !ok {
		return -1, 0, false
	}
	return best, d, true
}

// wallDistance picks the vertical and horizontal wall the ray is heading
// toward from the signs of dir and returns the distance along the ray to the
// nearer of the two wall lines.
func wallDistance(origin, dir game.Vector, width, height float64) float64 {
	best := math.Inf(1)
	switch {
	case dir.X > 0:
		best = math.Min(best, (width-origin.X)/dir.X)
	case dir.X < 0:
		best = math.Min(best, -origin.X/dir.X)
	}
	switch {
	case dir.Y > 0:
		best = math.Min(best, (height-origin.Y)/dir.Y)
	case dir.Y < 0:
		best = math.Min(best, -origin.Y/dir.Y)
	}
	return best
}
