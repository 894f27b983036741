package steering

import (
	"fmt"
	"math"
	"strings"

	"github.com/brensch/raysnek/executor/inference"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/rules"
)

// Kind selects a controller implementation.
type Kind string

const (
	KindNeural  Kind = "neural"
	KindHeading Kind = "heading"
	KindSeek    Kind = "seek"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindNeural, KindHeading, KindSeek:
		return k, nil
	case "":
		return KindNeural, nil
	}
	return "", fmt.Errorf("unknown controller kind %q", s)
}

// New builds a controller of the given kind. params and eval are only used
// by KindNeural; a nil eval evaluates params in-process.
func New(kind Kind, cfg game.Config, params Params, eval inference.Evaluator) (rules.Controller, error) {
	switch kind {
	case KindNeural:
		return NewNeural(cfg, params, eval)
	case KindHeading:
		return Heading{}, nil
	case KindSeek:
		return Seek{}, nil
	}
	return nil, fmt.Errorf("unknown controller kind %q", kind)
}

// Neural casts one ray per eye from the head and rotates the heading by the
// evaluator's output, read in units of a right angle.
type Neural struct {
	cfg  game.Config
	eyes []float64
	eval inference.Evaluator
	hits []rules.Hit
}

func NewNeural(cfg game.Config, params Params, eval inference.Evaluator) (*Neural, error) {
	if len(params.EyeAngles) == 0 {
		return nil, fmt.Errorf("%w: no eyes", ErrInvalidParams)
	}
	if eval == nil {
		net, err := params.Network()
		if err != nil {
			return nil, err
		}
		eval = net
	}
	return &Neural{
		cfg:  cfg,
		eyes: append([]float64(nil), params.EyeAngles...),
		eval: eval,
	}, nil
}

// Rays returns the fan of ray directions for heading.
func Rays(heading game.Vector, eyes []float64) []game.Vector {
	out := make([]game.Vector, len(eyes))
	for i, eye := range eyes {
		out[i] = heading.Rotate(eye * math.Pi / 2)
	}
	return out
}

// Sense casts every eye from the head and returns the hits in eye order.
func (n *Neural) Sense(r *game.Round) ([]rules.Hit, error) {
	head := r.Snake.Head()
	d, err := head.Heading.Normalize()
	if err != nil {
		return nil, fmt.Errorf("sense: %w", err)
	}
	obs := rules.ObstaclesFor(n.cfg, r)
	hits := make([]rules.Hit, len(n.eyes))
	for i, ray := range Rays(d, n.eyes) {
		hit, err := rules.Cast(obs, head.Position, ray)
		if err != nil {
			return nil, fmt.Errorf("eye %d: %w", i, err)
		}
		hits[i] = hit
	}
	return hits, nil
}

func (n *Neural) Direction(r *game.Round) (game.Vector, error) {
	hits, err := n.Sense(r)
	if err != nil {
		return game.Vector{}, err
	}
	n.hits = hits

	inputs := make([]float64, len(hits))
	for i, h := range hits {
		inputs[i] = h.Distance
	}
	out, err := n.eval.Evaluate(inputs)
	if err != nil {
		return game.Vector{}, fmt.Errorf("evaluate: %w", err)
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return game.Vector{}, fmt.Errorf("evaluate: non-finite output %v", out)
	}

	d, err := r.Snake.Head().Heading.Normalize()
	if err != nil {
		return game.Vector{}, err
	}
	return d.Rotate(out * math.Pi / 2).Normalize()
}

// LastHits returns the readings from the most recent Direction call.
func (n *Neural) LastHits() []rules.Hit {
	return append([]rules.Hit(nil), n.hits...)
}

// Heading keeps the current heading.
type Heading struct{}

func (Heading) Direction(r *game.Round) (game.Vector, error) {
	return r.Snake.Head().Heading, nil
}

// Seek aims straight at the food, falling back to the heading when the head
// sits on it.
type Seek struct{}

func (Seek) Direction(r *game.Round) (game.Vector, error) {
	head := r.Snake.Head()
	to := r.Food.Sub(head.Position)
	if to.IsZero() {
		return head.Heading, nil
	}
	return to, nil
}
