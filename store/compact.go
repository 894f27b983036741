package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

type CompactResult struct {
	Inputs int
	Rows   int64
	Output string
}

// CompactTicks merges the finalized shards in outDir/ticks into one file.
func CompactTicks(outDir string, minShards int) (CompactResult, error) {
	return compactDir[ArchiveTickRow](filepath.Join(outDir, TicksDir), "ticks", TickSchema, minShards)
}

// CompactRounds merges the finalized shards in outDir/rounds into one file.
func CompactRounds(outDir string, minShards int) (CompactResult, error) {
	return compactDir[RoundRow](filepath.Join(outDir, RoundsDir), "rounds", RoundSchema, minShards)
}

// compactDir streams every shard in dir into a single new shard, renames it
// into place and only then removes the inputs. Readers may briefly see rows
// twice but never lose any. Nothing happens below minShards inputs.
func compactDir[T any](dir, prefix, schema string, minShards int) (CompactResult, error) {
	inputs, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return CompactResult{}, err
	}
	sort.Strings(inputs)
	if len(inputs) < max(minShards, 2) {
		return CompactResult{Inputs: len(inputs)}, nil
	}

	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return CompactResult{}, fmt.Errorf("create tmp dir: %w", err)
	}
	name := fmt.Sprintf("%s_compact_%d.parquet", prefix, time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	outPath := filepath.Join(dir, name)

	rows, err := mergeShards[T](inputs, tmpPath, schema)
	if err != nil {
		_ = os.Remove(tmpPath)
		return CompactResult{}, err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return CompactResult{}, fmt.Errorf("rename parquet: %w", err)
	}

	var errs []error
	for _, in := range inputs {
		if err := os.Remove(in); err != nil {
			errs = append(errs, err)
		}
	}
	return CompactResult{Inputs: len(inputs), Rows: rows, Output: outPath}, errors.Join(errs...)
}

func mergeShards[T any](inputs []string, outPath, schema string) (int64, error) {
	outF, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer outF.Close()

	writer := parquet.NewGenericWriter[T](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	writer.SetKeyValueMetadata("schema", schema)

	var total int64
	buf := make([]T, 512)
	for _, in := range inputs {
		n, err := copyShard(writer, in, buf)
		total += n
		if err != nil {
			_ = writer.Close()
			return total, fmt.Errorf("%s: %w", filepath.Base(in), err)
		}
	}

	if err := writer.Close(); err != nil {
		return total, err
	}
	if err := outF.Sync(); err != nil {
		return total, err
	}
	return total, outF.Close()
}

func copyShard[T any](writer *parquet.GenericWriter[T], path string, buf []T) (int64, error) {
	inF, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[T](inF)
	defer reader.Close()

	var total int64
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := writer.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

