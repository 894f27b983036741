package main

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// parseIntQuery reads a non-negative integer query value, falling back to def.
func parseIntQuery(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// DuckDB scans LIST columns into []any holding the element's Go type.

func floats(v any) []float64 {
	if fs, ok := v.([]float64); ok {
		return fs
	}
	return listOf(v, func(e any) float64 {
		switch n := e.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		}
		return 0
	})
}

func int32s(v any) []int32 {
	if is, ok := v.([]int32); ok {
		return is
	}
	return listOf(v, func(e any) int32 {
		switch n := e.(type) {
		case int32:
			return n
		case int64:
			return int32(n)
		case int8:
			return int32(n)
		case int16:
			return int32(n)
		}
		return 0
	})
}

func listOf[T any](v any, conv func(any) T) []T {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]T, len(list))
	for i, e := range list {
		out[i] = conv(e)
	}
	return out
}

// points pairs xs with ys, dropping the unmatched tail of the longer one.
func points(xs, ys []float64) []Point {
	out := make([]Point, min(len(xs), len(ys)))
	for i := range out {
		out[i] = Point{X: xs[i], Y: ys[i]}
	}
	return out
}
