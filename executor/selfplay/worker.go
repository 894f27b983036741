package selfplay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/raysnek/executor/evolve"
	"github.com/brensch/raysnek/executor/inference"
	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/rules"
	"github.com/brensch/raysnek/store"
)

// RoundSpec describes one agent's round.
type RoundSpec struct {
	Config     game.Config
	Generation int
	Agent      int

	Kind   steering.Kind
	Params steering.Params
	// Evaluator replaces the in-process network when set.
	Evaluator inference.Evaluator

	// Food overrides the seeded random provider.
	Food     game.FoodProvider
	FoodSeed int64

	// MaxTicks caps the round; 0 means run until it finishes.
	MaxTicks int
	Record   bool
	Trace    bool
	Sink     rules.RenderSink
	// Pace sleeps between ticks, for live viewing.
	Pace time.Duration

	Fitness evolve.FitnessMode
	Source  string
	Logger  *slog.Logger
}

// RoundOutcome is what a round produced. Rows is empty unless Record was
// set. Err is non-nil when a tick failed; the counters reflect the state at
// that point.
type RoundOutcome struct {
	RoundID  string
	Ticks    int
	Score    int
	Length   int
	Finished bool
	Cause    game.Cause
	Fitness  float64
	Rows     []store.ArchiveTickRow
	Summary  store.RoundRow
	Err      error
}

type hitReporter interface {
	LastHits() []rules.Hit
}

// PlayRound runs a single round to termination, MaxTicks or cancellation.
func PlayRound(ctx context.Context, spec RoundSpec) (RoundOutcome, error) {
	log := spec.Logger
	if log == nil {
		log = slog.Default()
	}
	if spec.Source == "" {
		spec.Source = "selfplay"
	}
	if spec.Kind == "" {
		spec.Kind = steering.KindNeural
	}

	ctrl, err := steering.New(spec.Kind, spec.Config, spec.Params, spec.Evaluator)
	if err != nil {
		return RoundOutcome{}, fmt.Errorf("agent %d: %w", spec.Agent, err)
	}
	feeder := spec.Food
	if feeder == nil {
		feeder = game.NewRandomFood(spec.Config, spec.FoodSeed)
	}
	g, err := rules.NewGame(spec.Config, ctrl, feeder, spec.Sink)
	if err != nil {
		return RoundOutcome{}, fmt.Errorf("agent %d: %w", spec.Agent, err)
	}
	r := g.Round
	sensing, _ := ctrl.(hitReporter)

	started := time.Now()
	var rows []store.ArchiveTickRow
	if spec.Record {
		rows = make([]store.ArchiveTickRow, 0, 512)
	}

	var tickErr error
	for !r.Finished {
		if spec.MaxTicks > 0 && r.Ticks >= spec.MaxTicks {
			break
		}
		if err := ctx.Err(); err != nil {
			tickErr = err
			break
		}

		var row store.ArchiveTickRow
		if spec.Record {
			row = tickRow(spec, r)
		}
		score := r.Score

		if err := g.Tick(0); err != nil {
			tickErr = err
			log.Warn("tick failed", "agent", spec.Agent, "round_id", r.ID, "tick", r.Ticks, "error", err)
			break
		}

		var hits []rules.Hit
		if sensing != nil {
			hits = sensing.LastHits()
		}
		if spec.Record {
			row.Ate = r.Score > score
			row.Rays, row.RayKinds = rayColumns(hits)
			rows = append(rows, row)
		}
		if spec.Trace {
			PrintArena(os.Stderr, spec.Config, r, spec.Params.EyeAngles, hits)
		}
		if spec.Pace > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(spec.Pace):
			}
		}
	}

	if spec.Record {
		rows = append(rows, tickRow(spec, r))
	}

	out := RoundOutcome{
		RoundID:  r.ID,
		Ticks:    r.Ticks,
		Score:    r.Score,
		Length:   r.Snake.Len(),
		Finished: r.Finished,
		Cause:    r.Cause,
		Fitness:  evolve.Fitness(spec.Fitness, r.Ticks, r.Score),
		Rows:     rows,
		Err:      tickErr,
	}
	out.Summary = summaryRow(spec, out, started)

	log.Debug("round done",
		"generation", spec.Generation,
		"agent", spec.Agent,
		"round_id", r.ID,
		"ticks", r.Ticks,
		"score", r.Score,
		"cause", r.Cause.String(),
	)
	if tickErr != nil {
		return out, fmt.Errorf("agent %d: %w", spec.Agent, tickErr)
	}
	return out, nil
}

func tickRow(spec RoundSpec, r *game.Round) store.ArchiveTickRow {
	head := r.Snake.Head()
	bodyX := make([]float32, len(r.Snake.Body))
	bodyY := make([]float32, len(r.Snake.Body))
	for i, seg := range r.Snake.Body {
		bodyX[i] = float32(seg.Position.X)
		bodyY[i] = float32(seg.Position.Y)
	}
	return store.ArchiveTickRow{
		RoundID:    r.ID,
		Generation: int32(spec.Generation),
		Agent:      int32(spec.Agent),
		Tick:       int32(r.Ticks),
		HeadX:      head.Position.X,
		HeadY:      head.Position.Y,
		HeadingX:   head.Heading.X,
		HeadingY:   head.Heading.Y,
		FoodX:      r.Food.X,
		FoodY:      r.Food.Y,
		Score:      int32(r.Score),
		Length:     int32(r.Snake.Len()),
		Finished:   r.Finished,
		Cause:      r.Cause.String(),
		BodyX:      bodyX,
		BodyY:      bodyY,
		Source:     spec.Source,
	}
}

func rayColumns(hits []rules.Hit) ([]float64, []int32) {
	if len(hits) == 0 {
		return nil, nil
	}
	dist := make([]float64, len(hits))
	kinds := make([]int32, len(hits))
	for i, h := range hits {
		dist[i] = h.Distance
		kinds[i] = int32(h.Kind)
	}
	return dist, kinds
}

func summaryRow(spec RoundSpec, out RoundOutcome, started time.Time) store.RoundRow {
	row := store.RoundRow{
		RoundID:    out.RoundID,
		Generation: int32(spec.Generation),
		Agent:      int32(spec.Agent),
		Ticks:      int32(out.Ticks),
		Score:      int32(out.Score),
		Length:     int32(out.Length),
		Finished:   out.Finished,
		Cause:      out.Cause.String(),
		Fitness:    out.Fitness,
		Controller: string(spec.Kind),
		FoodSeed:   spec.FoodSeed,
		StartedAt:  started.UnixMilli(),
		DurationMs: time.Since(started).Milliseconds(),
		Source:     spec.Source,
	}
	if out.Err != nil {
		row.Error = out.Err.Error()
	}
	if spec.Kind == steering.KindNeural {
		if b, err := spec.Params.JSON(); err == nil {
			row.ParamsJSON = b
		}
	}
	return row
}

// GenerationSpec runs one params set per agent. Every agent gets its own
// food provider seeded with FoodSeed, so all agents face the same food
// sequence.
type GenerationSpec struct {
	Config     game.Config
	Generation int
	Population []steering.Params
	Kind       steering.Kind
	Evaluator  inference.Evaluator
	FoodSeed   int64
	MaxTicks   int
	Workers    int
	Record     bool
	Fitness    evolve.FitnessMode
	Logger     *slog.Logger
	// OnRound is called from worker goroutines as each round ends.
	OnRound func(RoundOutcome)
}

type GenerationResult struct {
	Candidates []evolve.Candidate
	Outcomes   []RoundOutcome
	Failed     int
}

// PlayGeneration plays every agent concurrently, at most Workers at a time.
// A failing agent keeps the fitness it reached and is counted in Failed; it
// does not stop the others. An agent whose round cannot even start gets an
// outcome with an empty RoundID and Err set. Only cancellation aborts the
// generation.
func PlayGeneration(ctx context.Context, spec GenerationSpec) (GenerationResult, error) {
	log := spec.Logger
	if log == nil {
		log = slog.Default()
	}
	n := len(spec.Population)
	if n == 0 {
		return GenerationResult{}, fmt.Errorf("generation %d: empty population", spec.Generation)
	}

	outcomes := make([]RoundOutcome, n)
	failed := make([]bool, n)

	eg, ctx := errgroup.WithContext(ctx)
	if spec.Workers > 0 {
		eg.SetLimit(spec.Workers)
	}
	for i := range spec.Population {
		eg.Go(func() error {
			rs := RoundSpec{
				Config:     spec.Config,
				Generation: spec.Generation,
				Agent:      i,
				Kind:       spec.Kind,
				Params:     spec.Population[i],
				Evaluator:  spec.Evaluator,
				FoodSeed:   spec.FoodSeed,
				MaxTicks:   spec.MaxTicks,
				Record:     spec.Record,
				Fitness:    spec.Fitness,
				Logger:     log,
			}
			started := time.Now()
			out, err := PlayRound(ctx, rs)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed[i] = true
				if out.RoundID == "" {
					// The round never started; the agent scores as a zero-tick round.
					log.Warn("agent setup failed", "generation", spec.Generation, "agent", i, "error", err)
					out = RoundOutcome{Err: err, Fitness: evolve.Fitness(spec.Fitness, 0, 0)}
					if rs.Kind == "" {
						rs.Kind = steering.KindNeural
					}
					if rs.Source == "" {
						rs.Source = "selfplay"
					}
					out.Summary = summaryRow(rs, out, started)
				}
			}
			outcomes[i] = out
			if spec.OnRound != nil {
				spec.OnRound(out)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return GenerationResult{}, fmt.Errorf("generation %d: %w", spec.Generation, err)
	}

	res := GenerationResult{
		Candidates: make([]evolve.Candidate, n),
		Outcomes:   outcomes,
	}
	for i, out := range outcomes {
		res.Candidates[i] = evolve.Candidate{
			Agent:   i,
			RoundID: out.RoundID,
			Params:  spec.Population[i],
			Fitness: out.Fitness,
			Score:   out.Score,
			Ticks:   out.Ticks,
		}
		if failed[i] {
			res.Failed++
		}
	}
	return res, nil
}
