// Package game defines the arena, snake and round state for the raycasting
// snake simulation.
//
// Positions are in arena units (pixels in the reference configuration) with
// (0,0) at the top-left corner and y growing downwards. Every snake owns its
// own segments; nothing in this package is shared between agents.
package game

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// ErrDegenerateVector is returned when a zero-length vector is normalized.
// Seeing it means a heading collapsed upstream (e.g. two coincident segments).
var ErrDegenerateVector = errors.New("degenerate vector")

// Vector is a 2D value type backed by r2.Point.
type Vector r2.Point

// V is shorthand for Vector{X: x, Y: y}.
func V(x, y float64) Vector {
	return Vector{X: x, Y: y}
}

func (v Vector) Add(o Vector) Vector { return Vector(r2.Point(v).Add(r2.Point(o))) }
func (v Vector) Sub(o Vector) Vector { return Vector(r2.Point(v).Sub(r2.Point(o))) }

// Scale multiplies both components by s.
func (v Vector) Scale(s float64) Vector { return Vector(r2.Point(v).Mul(s)) }

func (v Vector) Dot(o Vector) float64 { return r2.Point(v).Dot(r2.Point(o)) }

// Cross returns the z component of the 3D cross product.
func (v Vector) Cross(o Vector) float64 { return r2.Point(v).Cross(r2.Point(o)) }

// Len is the Euclidean length.
func (v Vector) Len() float64 { return r2.Point(v).Norm() }

// Perp returns v rotated by +90 degrees: (-y, x).
func (v Vector) Perp() Vector { return Vector(r2.Point(v).Ortho()) }

// IsZero reports whether both components are exactly zero.
func (v Vector) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Normalize returns the unit vector pointing the same way as v.
// r2.Point.Normalize silently returns the zero vector, so the length is
// checked here first.
func (v Vector) Normalize() (Vector, error) {
	l := v.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vector{}, fmt.Errorf("normalize %v: %w", v, ErrDegenerateVector)
	}
	return Vector{X: v.X / l, Y: v.Y / l}, nil
}

// Rotate turns v by angle radians using the standard rotation matrix.
func (v Vector) Rotate(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// Dist returns |v - o|.
func (v Vector) Dist(o Vector) float64 { return v.Sub(o).Len() }

func (v Vector) String() string {
	return fmt.Sprintf("(%.3f,%.3f)", v.X, v.Y)
}
