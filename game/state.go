package game

import (
	"github.com/google/uuid"
)

// Cause records why a round finished.
type Cause int

const (
	CauseNone Cause = iota
	CauseSelfCollision
	CauseOutOfBounds
)

func (c Cause) String() string {
	switch c {
	case CauseSelfCollision:
		return "self_collision"
	case CauseOutOfBounds:
		return "out_of_bounds"
	default:
		return "none"
	}
}

// Round is the mutable state of one simulated episode. Only the tick
// orchestrator mutates it; once Finished is set the round is frozen.
type Round struct {
	ID       string
	Snake    *Snake
	Food     Vector
	Score    int
	Finished bool
	Cause    Cause
	Ticks    int
}

// NewRound creates a round with a fresh ID. Food is left for the caller to
// fill from its FoodProvider.
func NewRound(snake *Snake) *Round {
	return &Round{
		ID:    uuid.NewString(),
		Snake: snake,
	}
}

// Finish marks the round over. Repeated calls keep the flag set and record
// the latest cause.
func (r *Round) Finish(cause Cause) {
	r.Finished = true
	r.Cause = cause
}

// Clone performs a deep copy of the round.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	out := *r
	out.Snake = r.Snake.Clone()
	return &out
}
