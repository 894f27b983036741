// Package evolve picks winners between generations and perturbs their
// steering params. There is no gradient: variation is undirected.
package evolve

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/brensch/raysnek/executor/steering"
)

// FitnessMode decides how a finished round is ranked.
type FitnessMode string

const (
	// Lifespan ranks by ticks survived only.
	Lifespan FitnessMode = "lifespan"
	// ScoreThenLifespan ranks by score, breaking ties on ticks survived.
	ScoreThenLifespan FitnessMode = "score"
)

func ParseFitnessMode(s string) (FitnessMode, error) {
	switch m := FitnessMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Lifespan:
		return Lifespan, nil
	case ScoreThenLifespan:
		return m, nil
	}
	return "", fmt.Errorf("unknown fitness mode %q", s)
}

// scoreWeight keeps score dominant over any realistic tick count.
const scoreWeight = 1e6

func Fitness(mode FitnessMode, ticks, score int) float64 {
	if mode == ScoreThenLifespan {
		return float64(score)*scoreWeight + float64(ticks)
	}
	return float64(ticks)
}

// Candidate is one evaluated agent.
type Candidate struct {
	Agent   int
	RoundID string
	Params  steering.Params
	Fitness float64
	Score   int
	Ticks   int
}

// Rank sorts candidates best first. Ties keep agent order.
func Rank(pop []Candidate) []Candidate {
	out := append([]Candidate(nil), pop...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Fitness > out[j].Fitness })
	return out
}

// Best returns the fittest candidate, the lowest agent index on ties.
func Best(pop []Candidate) (Candidate, bool) {
	if len(pop) == 0 {
		return Candidate{}, false
	}
	best := pop[0]
	for _, c := range pop[1:] {
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best, true
}

// TournamentSelector samples Size candidates with replacement and keeps the
// fittest of each draw.
type TournamentSelector struct {
	Size int
}

func (ts TournamentSelector) Select(pop []Candidate, n int, rng *rand.Rand) []Candidate {
	if len(pop) == 0 || n <= 0 {
		return nil
	}
	size := ts.Size
	if size > len(pop) {
		size = len(pop)
	}
	if size < 1 {
		size = 1
	}

	selected := make([]Candidate, 0, n)
	for len(selected) < n {
		winner := pop[rng.Intn(len(pop))]
		for i := 1; i < size; i++ {
			c := pop[rng.Intn(len(pop))]
			if c.Fitness > winner.Fitness {
				winner = c
			}
		}
		selected = append(selected, winner)
	}
	return selected
}

// Perturber nudges each weight independently with probability Rate.
//
// In the default discrete mode the nudge is Strength times an integer drawn
// from [-MaxStep, MaxStep). With Gaussian set it is Strength times a standard
// normal draw. Eye angles are only touched when Eyes is set.
type Perturber struct {
	Rate     float64
	Strength float64
	MaxStep  int
	Gaussian bool
	Eyes     bool
}

// DefaultPerturber touches roughly one weight in 51 by a small step.
func DefaultPerturber() Perturber {
	return Perturber{Rate: 1.0 / 51, Strength: 0.01, MaxStep: 3}
}

func (p Perturber) delta(rng *rand.Rand) float64 {
	if p.Gaussian {
		return p.Strength * rng.NormFloat64()
	}
	step := p.MaxStep
	if step < 1 {
		step = 1
	}
	return p.Strength * float64(rng.Intn(2*step)-step)
}

// Perturb modifies params in place and reports how many values changed.
func (p Perturber) Perturb(params *steering.Params, rng *rand.Rand) int {
	changed := 0
	for _, layer := range params.Layers {
		for _, w := range layer.Weights {
			for i := range w {
				if rng.Float64() >= p.Rate {
					continue
				}
				if d := p.delta(rng); d != 0 {
					w[i] += d
					changed++
				}
			}
		}
	}
	if p.Eyes {
		for i := range params.EyeAngles {
			if rng.Float64() >= p.Rate {
				continue
			}
			if d := p.delta(rng); d != 0 {
				params.EyeAngles[i] = math.Max(-2, math.Min(2, params.EyeAngles[i]+d))
				changed++
			}
		}
	}
	return changed
}

// Config shapes one generational step.
type Config struct {
	PopulationSize int
	EliteCount     int
	Selector       TournamentSelector
	Perturber      Perturber
}

func DefaultConfig() Config {
	return Config{
		PopulationSize: 10,
		EliteCount:     1,
		Selector:       TournamentSelector{Size: 3},
		Perturber:      DefaultPerturber(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 1:
		return fmt.Errorf("population size %d", c.PopulationSize)
	case c.EliteCount < 0 || c.EliteCount > c.PopulationSize:
		return fmt.Errorf("elite count %d for population %d", c.EliteCount, c.PopulationSize)
	case c.Perturber.Rate < 0 || c.Perturber.Rate > 1:
		return fmt.Errorf("mutation rate %g", c.Perturber.Rate)
	}
	return nil
}

// Seed builds a first generation from base: one unchanged copy followed by
// perturbed copies.
func Seed(base steering.Params, cfg Config, rng *rand.Rand) []steering.Params {
	out := make([]steering.Params, cfg.PopulationSize)
	for i := range out {
		out[i] = base.Clone()
		if i > 0 {
			cfg.Perturber.Perturb(&out[i], rng)
		}
	}
	return out
}

// Next produces the following generation. The EliteCount fittest
// candidates carry over unchanged; the rest are perturbed clones of
// tournament winners.
func Next(pop []Candidate, cfg Config, rng *rand.Rand) ([]steering.Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(pop) == 0 {
		return nil, fmt.Errorf("empty population")
	}

	ranked := Rank(pop)
	out := make([]steering.Params, 0, cfg.PopulationSize)
	for i := 0; i < cfg.EliteCount && i < len(ranked); i++ {
		out = append(out, ranked[i].Params.Clone())
	}

	parents := cfg.Selector.Select(ranked, cfg.PopulationSize-len(out), rng)
	for _, parent := range parents {
		child := parent.Params.Clone()
		cfg.Perturber.Perturb(&child, rng)
		out = append(out, child)
	}
	return out, nil
}
