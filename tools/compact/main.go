// Command compact merges the many small shards the executor flushes into one
// tick file and one round file per output dir.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/brensch/raysnek/internal/env"
	"github.com/brensch/raysnek/logging"
	"github.com/brensch/raysnek/store"
)

func main() {
	outDir := flag.String("out-dir", env.StringOrDefault("RAYSNEK_OUT_DIR", "data/generated"), "Executor output directory")
	minShards := flag.Int("min-shards", 8, "Leave a table alone below this many shards")
	logFormat := flag.String("log-format", env.StringOrDefault("RAYSNEK_LOG_FORMAT", "pretty"), "Log format: pretty, json or text")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logFormat, "info")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	failed := false
	for _, t := range []struct {
		name string
		fn   func(string, int) (store.CompactResult, error)
	}{
		{store.RoundsDir, store.CompactRounds},
		{store.TicksDir, store.CompactTicks},
	} {
		res, err := t.fn(*outDir, *minShards)
		if err != nil {
			slog.Error("compaction failed", "table", t.name, "error", err)
			failed = true
			continue
		}
		if res.Output == "" {
			slog.Info("nothing to compact", "table", t.name, "shards", res.Inputs)
			continue
		}
		slog.Info("compacted", "table", t.name, "shards", res.Inputs, "rows", res.Rows, "path", res.Output)
	}
	if failed {
		os.Exit(1)
	}
}
