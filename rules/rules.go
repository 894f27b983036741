package rules

import (
	"fmt"
	"time"

	"github.com/brensch/raysnek/game"
)

// Controller picks the direction the head should steer toward for the next
// tick. It only reads the round.
type Controller interface {
	Direction(r *game.Round) (game.Vector, error)
}

// ControllerFunc adapts a plain function to Controller.
type ControllerFunc func(r *game.Round) (game.Vector, error)

func (f ControllerFunc) Direction(r *game.Round) (game.Vector, error) { return f(r) }

// RenderSink receives the round once per live tick, before it is advanced.
// Implementations must not retain or mutate the round.
type RenderSink interface {
	Render(r *game.Round)
}

// Game drives one round. It is not safe for concurrent use; parallel agents
// each own a Game.
type Game struct {
	Config     game.Config
	Round      *game.Round
	Controller Controller
	Feeder     game.FoodProvider
	Sink       RenderSink
}

// NewGame builds a round with a fresh snake of cfg.InitialLength and asks
// the feeder for the first food position.
func NewGame(cfg game.Config, ctrl Controller, feeder game.FoodProvider, sink RenderSink) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, fmt.Errorf("new game: nil controller")
	}
	if feeder == nil {
		return nil, fmt.Errorf("new game: nil food provider")
	}
	food, err := feeder.Food()
	if err != nil {
		return nil, fmt.Errorf("initial food: %w", err)
	}
	r := game.NewRound(game.NewSnake(cfg, cfg.InitialLength))
	r.Food = food
	return &Game{
		Config:     cfg,
		Round:      r,
		Controller: ctrl,
		Feeder:     feeder,
		Sink:       sink,
	}, nil
}

// AteFood reports whether the head is close enough to the food to eat it.
func AteFood(cfg game.Config, r *game.Round) bool {
	return r.Snake.Head().Position.Dist(r.Food) < cfg.SnakeRadius/2
}

// OutOfBounds reports whether p lies strictly outside the arena. Touching a
// wall is allowed.
func OutOfBounds(cfg game.Config, p game.Vector) bool {
	return !cfg.Contains(p)
}

// Tick advances the round by one step. dt is accepted for callers that pace
// on wall time; movement is one unit per tick regardless.
//
// A finished round is left untouched. An error from the controller or the
// feeder aborts the tick; the snake may already have moved when the feeder
// fails.
func (g *Game) Tick(dt time.Duration) error {
	_ = dt
	r := g.Round
	if r.Finished {
		return nil
	}
	if g.Sink != nil {
		g.Sink.Render(r)
	}

	dir, err := g.Controller.Direction(r)
	if err != nil {
		return fmt.Errorf("tick %d: controller: %w", r.Ticks, err)
	}
	if err := r.Snake.Advance(dir, g.Config.RotationRate); err != nil {
		return fmt.Errorf("tick %d: advance: %w", r.Ticks, err)
	}
	r.Ticks++

	if AteFood(g.Config, r) {
		food, err := g.Feeder.Food()
		if err != nil {
			return fmt.Errorf("tick %d: replace food: %w", r.Ticks, err)
		}
		r.Score += g.Config.ScoreIncrement
		r.Food = food
		r.Snake.Grow(g.Config.GrowthAmount)
	}

	// Both checks run; the later cause wins.
	if _, hit := r.Snake.SelfCollision(g.Config.CollisionDistance); hit {
		r.Finish(game.CauseSelfCollision)
	}
	if OutOfBounds(g.Config, r.Snake.Head().Position) {
		r.Finish(game.CauseOutOfBounds)
	}
	return nil
}

// Run ticks until the round finishes or maxTicks is reached (0 means no
// limit).
func (g *Game) Run(maxTicks int) error {
	for !g.Round.Finished {
		if maxTicks > 0 && g.Round.Ticks >= maxTicks {
			return nil
		}
		if err := g.Tick(0); err != nil {
			return err
		}
	}
	return nil
}
