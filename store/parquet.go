// Package store persists simulation output: per-tick archives and per-round
// summaries as zstd parquet, plus the champion log.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	TickSchema  = "archive_tick_v1"
	RoundSchema = "round_summary_v1"

	// Subdirectories of an output root. The viewer globs these.
	TicksDir  = "ticks"
	RoundsDir = "rounds"
)

// ArchiveTickRow is one (round, tick) snapshot of a single agent.
//
// Rays holds the distance read by each eye on this tick and RayKinds the
// obstacle class that stopped it (0=wall, 1=food, 2=body). Both are empty for
// controllers that do not sense. The head is the last body entry.
type ArchiveTickRow struct {
	RoundID    string `parquet:"round_id,dict" json:"round_id"`
	Generation int32  `parquet:"generation" json:"generation"`
	Agent      int32  `parquet:"agent" json:"agent"`
	Tick       int32  `parquet:"tick" json:"tick"`

	HeadX    float64 `parquet:"head_x" json:"head_x"`
	HeadY    float64 `parquet:"head_y" json:"head_y"`
	HeadingX float64 `parquet:"heading_x" json:"heading_x"`
	HeadingY float64 `parquet:"heading_y" json:"heading_y"`
	FoodX    float64 `parquet:"food_x" json:"food_x"`
	FoodY    float64 `parquet:"food_y" json:"food_y"`

	Score    int32  `parquet:"score" json:"score"`
	Length   int32  `parquet:"length" json:"length"`
	Ate      bool   `parquet:"ate" json:"ate"`
	Finished bool   `parquet:"finished" json:"finished"`
	Cause    string `parquet:"cause,dict" json:"cause"`

	Rays     []float64 `parquet:"rays" json:"rays"`
	RayKinds []int32   `parquet:"ray_kinds" json:"ray_kinds"`

	BodyX []float32 `parquet:"body_x" json:"body_x"`
	BodyY []float32 `parquet:"body_y" json:"body_y"`

	Source string `parquet:"source,dict" json:"source"`
}

// RoundRow summarises one finished (or tick-capped) round.
type RoundRow struct {
	RoundID    string `parquet:"round_id,dict" json:"round_id"`
	Generation int32  `parquet:"generation" json:"generation"`
	Agent      int32  `parquet:"agent" json:"agent"`

	Ticks    int32   `parquet:"ticks" json:"ticks"`
	Score    int32   `parquet:"score" json:"score"`
	Length   int32   `parquet:"length" json:"length"`
	Finished bool    `parquet:"finished" json:"finished"`
	Cause    string  `parquet:"cause,dict" json:"cause"`
	Fitness  float64 `parquet:"fitness" json:"fitness"`
	Error    string  `parquet:"error,optional" json:"error,omitempty"`

	Controller string `parquet:"controller,dict" json:"controller"`
	FoodSeed   int64  `parquet:"food_seed" json:"food_seed"`
	StartedAt  int64  `parquet:"started_at_ms" json:"started_at_ms"`
	DurationMs int64  `parquet:"duration_ms" json:"duration_ms"`

	// ParamsJSON is the steering params the agent ran with.
	ParamsJSON []byte `parquet:"params_json,optional,zstd" json:"-"`

	Source string `parquet:"source,dict" json:"source"`
}

func writeParquetAtomic[T any](outDir, prefix, schema string, rows []T) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// WriteTickBatch writes rows into outDir/ticks. Readers never observe a
// partially written file.
func WriteTickBatch(outDir string, rows []ArchiveTickRow) (string, error) {
	return writeParquetAtomic(filepath.Join(outDir, TicksDir), "ticks", TickSchema, rows)
}

// WriteRoundBatch writes rows into outDir/rounds.
func WriteRoundBatch(outDir string, rows []RoundRow) (string, error) {
	return writeParquetAtomic(filepath.Join(outDir, RoundsDir), "rounds", RoundSchema, rows)
}

func ReadTicks(path string) ([]ArchiveTickRow, error) {
	rows, err := parquet.ReadFile[ArchiveTickRow](path)
	if err != nil {
		return nil, fmt.Errorf("read ticks %s: %w", path, err)
	}
	return rows, nil
}

func ReadRounds(path string) ([]RoundRow, error) {
	rows, err := parquet.ReadFile[RoundRow](path)
	if err != nil {
		return nil, fmt.Errorf("read rounds %s: %w", path, err)
	}
	return rows, nil
}
