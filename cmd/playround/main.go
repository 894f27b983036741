// Command playround replays one agent: the params in a JSON file or a
// champion from the log. The round is archived as ticks plus a summary row.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/raysnek/executor/inference"
	"github.com/brensch/raysnek/executor/selfplay"
	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/internal/env"
	"github.com/brensch/raysnek/logging"
	"github.com/brensch/raysnek/store"
)

const writeChunk = 4096

func main() {
	cfg := game.DefaultConfig()
	env.BindConfig(flag.CommandLine, &cfg)

	paramsPath := flag.String("params", "", "Params JSON file; overrides -champion-log")
	championPath := flag.String("champion-log", env.StringOrDefault("RAYSNEK_CHAMPION_LOG", "data/champions.jsonl"), "Champion log to replay from")
	generation := flag.Int("generation", -1, "Champion generation to replay (-1 = latest)")
	kindName := flag.String("controller", string(steering.KindNeural), "Controller: neural, heading or seek")
	foodSeed := flag.Int64("food-seed", 0, "Food RNG seed (0 = time based)")
	maxTicks := flag.Int("max-ticks", 0, "Tick cap (0 = none)")
	outDir := flag.String("out-dir", env.StringOrDefault("RAYSNEK_REPLAY_DIR", "data/replays"), "Output directory; empty disables archiving")
	trace := flag.Bool("trace", false, "Print the arena and ray readings every tick")
	live := flag.Bool("live", false, "Pace ticks at -refresh-rate")
	onnxModel := flag.String("onnx-model", "", "Evaluate steering with this ONNX model")
	logFormat := flag.String("log-format", env.StringOrDefault("RAYSNEK_LOG_FORMAT", "pretty"), "Log format: pretty, json or text")
	logLevel := flag.String("log-level", env.StringOrDefault("RAYSNEK_LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logFormat, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, options{
		paramsPath:   *paramsPath,
		championPath: *championPath,
		generation:   *generation,
		kindName:     *kindName,
		foodSeed:     *foodSeed,
		maxTicks:     *maxTicks,
		outDir:       *outDir,
		trace:        *trace,
		live:         *live,
		onnxModel:    *onnxModel,
		logger:       logger,
	}); err != nil {
		slog.Error("playround failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	paramsPath   string
	championPath string
	generation   int
	kindName     string
	foodSeed     int64
	maxTicks     int
	outDir       string
	trace        bool
	live         bool
	onnxModel    string
	logger       *slog.Logger
}

func run(cfg game.Config, opts options) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	kind, err := steering.ParseKind(opts.kindName)
	if err != nil {
		return err
	}
	params, gen, err := loadParams(opts.paramsPath, opts.championPath, opts.generation)
	if err != nil {
		return err
	}
	if opts.foodSeed == 0 {
		opts.foodSeed = time.Now().UnixNano()
	}

	var eval inference.Evaluator
	if opts.onnxModel != "" {
		client, err := inference.NewOnnxClientWithConfig(opts.onnxModel, inference.OnnxClientConfig{
			Inputs:    len(params.EyeAngles),
			BatchSize: 1,
			Logger:    opts.logger,
		})
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		defer client.Close()
		eval = client
	}

	var pace time.Duration
	if opts.live && cfg.RefreshRate > 0 {
		pace = time.Second / time.Duration(cfg.RefreshRate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("replaying", "generation", gen, "controller", string(kind), "food_seed", opts.foodSeed, "shape", fmt.Sprint(params.Shape()))
	out, playErr := selfplay.PlayRound(ctx, selfplay.RoundSpec{
		Config:     cfg,
		Generation: gen,
		Kind:       kind,
		Params:     params,
		Evaluator:  eval,
		FoodSeed:   opts.foodSeed,
		MaxTicks:   opts.maxTicks,
		Record:     opts.outDir != "",
		Trace:      opts.trace,
		Pace:       pace,
		Source:     "replay",
		Logger:     opts.logger,
	})
	if playErr != nil && out.RoundID == "" {
		return playErr
	}
	if playErr != nil {
		slog.Warn("round ended early", "error", playErr)
	}

	slog.Info("round complete",
		"round_id", out.RoundID,
		"ticks", out.Ticks,
		"score", out.Score,
		"length", out.Length,
		"cause", out.Cause.String(),
		"fitness", out.Fitness,
	)

	if opts.outDir == "" {
		return nil
	}
	return archive(opts.outDir, out)
}

// loadParams returns params from a file, else the requested champion, else
// the built-in network when the log is empty and no generation was asked for.
func loadParams(paramsPath, championPath string, generation int) (steering.Params, int, error) {
	if paramsPath != "" {
		data, err := os.ReadFile(paramsPath)
		if err != nil {
			return steering.Params{}, 0, fmt.Errorf("read params: %w", err)
		}
		p, err := steering.ParseParams(data)
		return p, -1, err
	}

	entries, err := store.ReadChampionLog(championPath)
	if err != nil {
		return steering.Params{}, 0, err
	}
	if len(entries) == 0 {
		if generation >= 0 {
			return steering.Params{}, 0, errors.New("champion log is empty")
		}
		slog.Warn("no champions yet; using the built-in network", "log", championPath)
		return steering.DefaultParams(), -1, nil
	}

	pick, ok := store.PickChampion(entries, generation)
	if !ok {
		return steering.Params{}, 0, fmt.Errorf("no champion for generation %d", generation)
	}
	p, err := steering.ParseParams(pick.Params)
	if err != nil {
		return steering.Params{}, 0, fmt.Errorf("champion generation %d: %w", pick.Generation, err)
	}
	return p, pick.Generation, nil
}

func archive(outDir string, out selfplay.RoundOutcome) error {
	bw, err := store.NewBatchWriter(outDir)
	if err != nil {
		return err
	}
	for start := 0; start < len(out.Rows); start += writeChunk {
		end := min(start+writeChunk, len(out.Rows))
		if err := bw.WriteRows(out.Rows[start:end]); err != nil {
			_, _, _, _ = bw.Finalize()
			return fmt.Errorf("write ticks: %w", err)
		}
	}
	bw.NoteRoundWritten()
	ticksPath, rows, _, err := bw.Finalize()
	if err != nil {
		return err
	}
	roundsPath, err := store.WriteRoundBatch(outDir, []store.RoundRow{out.Summary})
	if err != nil {
		return err
	}
	slog.Info("round archived", "ticks", ticksPath, "rows", rows, "summary", roundsPath)
	return nil
}
