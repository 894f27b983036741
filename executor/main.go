package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/raysnek/executor/evolve"
	"github.com/brensch/raysnek/executor/inference"
	"github.com/brensch/raysnek/executor/selfplay"
	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/internal/env"
	"github.com/brensch/raysnek/logging"
	"github.com/brensch/raysnek/store"
)

var totalRounds atomic.Int64
var totalTicks atomic.Int64

type roundWriteRequest struct {
	ticks []store.ArchiveTickRow
	round store.RoundRow
}

func main() {
	cfg := game.DefaultConfig()
	env.BindConfig(flag.CommandLine, &cfg)

	outDir := flag.String("out-dir", env.StringOrDefault("RAYSNEK_OUT_DIR", "data/generated"), "Output directory for tick and round parquet batches")
	championPath := flag.String("champion-log", env.StringOrDefault("RAYSNEK_CHAMPION_LOG", "data/champions.jsonl"), "JSONL log of each generation's best params")
	resume := flag.Bool("resume", env.BoolOrDefault("RAYSNEK_RESUME", true), "Seed the first generation from the latest champion when the log has one")
	paramsPath := flag.String("params", env.StringOrDefault("RAYSNEK_PARAMS", ""), "Params JSON to seed from instead of the built-in network")
	randomInit := flag.String("random-init", env.StringOrDefault("RAYSNEK_RANDOM_INIT", ""), "Seed from random params with this shape, e.g. 5,5 for 11 eyes and 5 hidden neurons")

	population := flag.Int("population", env.IntOrDefault("RAYSNEK_POPULATION", 10), "Agents per generation")
	generations := flag.Int("generations", env.IntOrDefault("RAYSNEK_GENERATIONS", 0), "Stop after this many generations (0 = run until interrupted)")
	workers := flag.Int("workers", env.IntOrDefault("RAYSNEK_WORKERS", 16), "Rounds played concurrently")
	maxTicks := flag.Int("max-ticks", env.IntOrDefault("RAYSNEK_MAX_TICKS", 5000), "Per-round tick cap (0 = none)")
	elites := flag.Int("elite", env.IntOrDefault("RAYSNEK_ELITE", 1), "Fittest agents carried over unchanged")
	tournament := flag.Int("tournament", env.IntOrDefault("RAYSNEK_TOURNAMENT", 3), "Tournament size for parent selection")
	mutationRate := flag.Float64("mutation-rate", env.FloatOrDefault("RAYSNEK_MUTATION_RATE", 1.0/51), "Per-weight perturbation probability")
	mutationStrength := flag.Float64("mutation-strength", env.FloatOrDefault("RAYSNEK_MUTATION_STRENGTH", 0.01), "Perturbation step size")
	mutationMaxStep := flag.Int("mutation-max-step", env.IntOrDefault("RAYSNEK_MUTATION_MAX_STEP", 3), "Discrete perturbation steps are drawn from [-n, n)")
	gaussian := flag.Bool("gaussian", env.BoolOrDefault("RAYSNEK_GAUSSIAN", false), "Use normal perturbations instead of integer steps")
	mutateEyes := flag.Bool("mutate-eyes", env.BoolOrDefault("RAYSNEK_MUTATE_EYES", false), "Also perturb eye angles")
	fitnessName := flag.String("fitness", env.StringOrDefault("RAYSNEK_FITNESS", string(evolve.Lifespan)), "Ranking: lifespan or score")
	kindName := flag.String("controller", env.StringOrDefault("RAYSNEK_CONTROLLER", string(steering.KindNeural)), "Controller: neural, heading or seek")
	activation := flag.String("activation", env.StringOrDefault("RAYSNEK_ACTIVATION", ""), "Override activation: identity, tanh or clamp")
	seed := flag.Int64("seed", env.Int64OrDefault("RAYSNEK_SEED", 0), "RNG seed for evolution and food (0 = time based)")
	fixedFood := flag.Bool("fixed-food", env.BoolOrDefault("RAYSNEK_FIXED_FOOD", false), "Reuse one food seed across all generations")

	recordTicks := flag.Bool("record-ticks", env.BoolOrDefault("RAYSNEK_RECORD_TICKS", false), "Archive every tick, not just round summaries")
	roundsPerFlush := flag.Int("rounds-per-flush", env.IntOrDefault("RAYSNEK_ROUNDS_PER_FLUSH", 200), "Rounds buffered per parquet flush")

	onnxModel := flag.String("onnx-model", env.StringOrDefault("RAYSNEK_ONNX_MODEL", ""), "Evaluate steering with this ONNX model instead of the params network")
	onnxSessions := flag.Int("onnx-sessions", env.IntOrDefault("RAYSNEK_ONNX_SESSIONS", 1), "ONNX Runtime sessions, each with its own batching loop")
	onnxBatchSize := flag.Int("onnx-batch-size", env.IntOrDefault("RAYSNEK_ONNX_BATCH_SIZE", inference.DefaultBatchSize), "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", env.DurationOrDefault("RAYSNEK_ONNX_BATCH_TIMEOUT", inference.DefaultBatchTimeout), "Max time to wait for filling an ONNX batch")

	useTUI := flag.Bool("tui", env.BoolOrDefault("RAYSNEK_TUI", false), "Show a live dashboard; logs go to -log-file")
	logFile := flag.String("log-file", env.StringOrDefault("RAYSNEK_LOG_FILE", "executor.log"), "Log destination when -tui is set")
	logFormat := flag.String("log-format", env.StringOrDefault("RAYSNEK_LOG_FORMAT", "pretty"), "Log format: pretty, json or text")
	logLevel := flag.String("log-level", env.StringOrDefault("RAYSNEK_LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	logOut := os.Stderr
	if *useTUI {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, *logFormat, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fatal("invalid arena config", err)
	}
	kind, err := steering.ParseKind(*kindName)
	if err != nil {
		fatal("invalid controller", err)
	}
	fitness, err := evolve.ParseFitnessMode(*fitnessName)
	if err != nil {
		fatal("invalid fitness", err)
	}
	evoCfg := evolve.Config{
		PopulationSize: *population,
		EliteCount:     *elites,
		Selector:       evolve.TournamentSelector{Size: *tournament},
		Perturber: evolve.Perturber{
			Rate:     *mutationRate,
			Strength: *mutationStrength,
			MaxStep:  *mutationMaxStep,
			Gaussian: *gaussian,
			Eyes:     *mutateEyes,
		},
	}
	if err := evoCfg.Validate(); err != nil {
		fatal("invalid evolution config", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	champions, err := store.OpenChampionLog(*championPath)
	if err != nil {
		fatal("open champion log", err)
	}
	defer champions.Close()
	if n := champions.Skipped(); n > 0 {
		slog.Warn("champion log had undecodable lines", "skipped", n)
	}

	base, firstGen, err := seedParams(champions, *resume, *paramsPath, *randomInit, rng)
	if err != nil {
		fatal("seed params", err)
	}
	if *activation != "" {
		base.Activation = *activation
	}
	if err := base.Validate(); err != nil {
		fatal("seed params", err)
	}

	var evaluator inference.Evaluator
	var statsProvider interface{ Stats() inference.RuntimeStats }
	if *onnxModel != "" {
		onnxCfg := inference.OnnxClientConfig{
			Inputs:       len(base.EyeAngles),
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
			Logger:       logger,
		}
		pool, err := inference.NewOnnxClientPool(*onnxModel, *onnxSessions, onnxCfg)
		if err != nil {
			fatal("create onnx pool", err)
		}
		defer pool.Close()
		evaluator = pool
		statsProvider = pool
		// The model owns the weights; only the eye fan evolves.
		evoCfg.Perturber.Eyes = true
	}

	slog.Info("starting evolution",
		"population", evoCfg.PopulationSize,
		"generation", firstGen,
		"controller", string(kind),
		"fitness", string(fitness),
		"shape", fmt.Sprint(base.Shape()),
		"seed", *seed,
		"onnx", *onnxModel != "",
	)

	writeReqs := make(chan roundWriteRequest, *workers*4)
	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *roundsPerFlush, writeReqs)
		close(writerDone)
	}()

	var updates chan GenerationUpdate
	var tuiDone chan struct{}
	if *useTUI {
		updates = make(chan GenerationUpdate, 16)
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			p := tea.NewProgram(initialModel(updates), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				slog.Error("tui failed", "error", err)
			}
			// Quitting the dashboard stops the run.
			cancel()
		}()
	}

	pop := evolve.Seed(base, evoCfg, rng)
	foodSeed := rng.Int63()

	for gen := firstGen; *generations == 0 || gen < firstGen+*generations; gen++ {
		if ctx.Err() != nil {
			break
		}
		if !*fixedFood {
			foodSeed = rng.Int63()
		}

		started := time.Now()
		res, err := selfplay.PlayGeneration(ctx, selfplay.GenerationSpec{
			Config:     cfg,
			Generation: gen,
			Population: pop,
			Kind:       kind,
			Evaluator:  evaluator,
			FoodSeed:   foodSeed,
			MaxTicks:   *maxTicks,
			Workers:    *workers,
			Record:     *recordTicks,
			Fitness:    fitness,
			Logger:     logger,
			OnRound: func(out selfplay.RoundOutcome) {
				totalRounds.Add(1)
				totalTicks.Add(int64(out.Ticks))
				writeReqs <- roundWriteRequest{ticks: out.Rows, round: out.Summary}
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fatal("generation failed", err)
		}

		best, _ := evolve.Best(res.Candidates)
		update := generationUpdate(gen, res, best, time.Since(started), statsProvider)
		slog.Info("generation done",
			"generation", gen,
			"best_agent", best.Agent,
			"best_fitness", best.Fitness,
			"best_score", best.Score,
			"best_ticks", best.Ticks,
			"mean_ticks", update.MeanTicks,
			"failed", res.Failed,
			"duration", update.Duration,
		)
		if updates != nil {
			select {
			case updates <- update:
			default:
			}
		}

		if err := appendChampion(champions, gen, best); err != nil {
			slog.Error("champion log append failed", "generation", gen, "error", err)
		}

		pop, err = evolve.Next(res.Candidates, evoCfg, rng)
		if err != nil {
			fatal("next generation", err)
		}
	}

	slog.Info("shutting down; flushing parquet", "rounds", totalRounds.Load())
	close(writeReqs)
	<-writerDone
	if updates != nil {
		close(updates)
		<-tuiDone
	}
	slog.Info("shutdown complete", "rounds", totalRounds.Load(), "ticks", totalTicks.Load())
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

// seedParams picks the first generation's base params and generation
// number. Precedence: -params, -random-init, the champion log, then the
// built-in network.
func seedParams(champions *store.ChampionLog, resume bool, paramsPath, randomInit string, rng *rand.Rand) (steering.Params, int, error) {
	next := 0
	latest, haveLatest := champions.Latest()
	if haveLatest {
		next = latest.Generation + 1
	}

	switch {
	case paramsPath != "":
		data, err := os.ReadFile(paramsPath)
		if err != nil {
			return steering.Params{}, 0, fmt.Errorf("read params: %w", err)
		}
		p, err := steering.ParseParams(data)
		return p, next, err
	case randomInit != "":
		spread, hidden, err := parseShape(randomInit)
		if err != nil {
			return steering.Params{}, 0, err
		}
		return steering.RandomParams(spread, hidden, rng), next, nil
	case resume && haveLatest:
		p, err := steering.ParseParams(latest.Params)
		if err != nil {
			return steering.Params{}, 0, fmt.Errorf("champion generation %d: %w", latest.Generation, err)
		}
		slog.Info("resuming from champion", "generation", latest.Generation, "fitness", latest.Fitness)
		return p, next, nil
	}
	return steering.DefaultParams(), next, nil
}

// parseShape reads "spread,hidden1,hidden2,...".
func parseShape(s string) (int, []int, error) {
	parts := strings.Split(s, ",")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, nil, fmt.Errorf("bad shape %q", s)
		}
		nums = append(nums, n)
	}
	for _, h := range nums[1:] {
		if h == 0 {
			return 0, nil, fmt.Errorf("bad shape %q: empty hidden layer", s)
		}
	}
	return nums[0], nums[1:], nil
}

func appendChampion(log *store.ChampionLog, gen int, best evolve.Candidate) error {
	params, err := json.Marshal(best.Params)
	if err != nil {
		return err
	}
	return log.Append(store.ChampionEntry{
		Generation: gen,
		RoundID:    best.RoundID,
		Agent:      best.Agent,
		Fitness:    best.Fitness,
		Score:      best.Score,
		Ticks:      best.Ticks,
		Params:     params,
	})
}

func generationUpdate(gen int, res selfplay.GenerationResult, best evolve.Candidate, d time.Duration, stats interface{ Stats() inference.RuntimeStats }) GenerationUpdate {
	u := GenerationUpdate{
		Generation:  gen,
		BestFitness: best.Fitness,
		BestScore:   best.Score,
		BestTicks:   best.Ticks,
		Failed:      res.Failed,
		Rounds:      len(res.Outcomes),
		Duration:    d,
	}
	if len(res.Outcomes) > 0 {
		sum := 0
		for _, o := range res.Outcomes {
			sum += o.Ticks
		}
		u.MeanTicks = float64(sum) / float64(len(res.Outcomes))
	}
	if stats != nil {
		u.InferenceAvg = stats.Stats().AvgBatchSize
	}
	return u
}

func parquetWriterLoop(outDir string, roundsPerFlush int, in <-chan roundWriteRequest) {
	if roundsPerFlush <= 0 {
		roundsPerFlush = 200
	}

	pendingTicks := make([]store.ArchiveTickRow, 0, 1024)
	pendingRounds := make([]store.RoundRow, 0, roundsPerFlush)

	flush := func(final bool) {
		if len(pendingRounds) == 0 {
			return
		}
		label := "flush"
		if final {
			label = "final flush"
		}
		if len(pendingTicks) > 0 {
			if path, err := store.WriteTickBatch(outDir, pendingTicks); err != nil {
				slog.Error("parquet "+label+" failed", "kind", "ticks", "rows", len(pendingTicks), "error", err)
			} else {
				slog.Info("parquet "+label+" ok", "path", path, "rows", len(pendingTicks))
			}
		}
		if path, err := store.WriteRoundBatch(outDir, pendingRounds); err != nil {
			slog.Error("parquet "+label+" failed", "kind", "rounds", "rows", len(pendingRounds), "error", err)
		} else {
			slog.Info("parquet "+label+" ok", "path", path, "rounds", len(pendingRounds))
		}
		pendingTicks = pendingTicks[:0]
		pendingRounds = pendingRounds[:0]
	}

	for req := range in {
		pendingTicks = append(pendingTicks, req.ticks...)
		pendingRounds = append(pendingRounds, req.round)
		if len(pendingRounds) >= roundsPerFlush {
			flush(false)
		}
	}
	flush(true)
}
