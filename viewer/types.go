package main

import (
	"encoding/json"
	"time"
)

type RoundSummary struct {
	RoundID    string  `json:"round_id"`
	Generation int32   `json:"generation"`
	Agent      int32   `json:"agent"`
	Ticks      int32   `json:"ticks"`
	Score      int32   `json:"score"`
	Length     int32   `json:"length"`
	Finished   bool    `json:"finished"`
	Cause      string  `json:"cause"`
	Fitness    float64 `json:"fitness"`
	Error      string  `json:"error,omitempty"`
	Controller string  `json:"controller"`
	FoodSeed   int64   `json:"food_seed"`
	StartedAt  int64   `json:"started_at_ms"`
	DurationMs int64   `json:"duration_ms"`
	Source     string  `json:"source"`
	Filename   string  `json:"filename"`
}

type RoundsResponse struct {
	Total  int64          `json:"total"`
	Rounds []RoundSummary `json:"rounds"`
}

// GenerationStats aggregates every round of one generation.
type GenerationStats struct {
	Generation  int32   `json:"generation"`
	Rounds      int64   `json:"rounds"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	BestScore   int32   `json:"best_score"`
	MeanTicks   float64 `json:"mean_ticks"`
	MaxTicks    int32   `json:"max_ticks"`
	Failed      int64   `json:"failed"`
}

type GenerationsResponse struct {
	Generations []GenerationStats `json:"generations"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is one tick as drawn by the client: the archive columns zipped into
// points. The head is the last body point.
type Frame struct {
	RoundID  string    `json:"round_id"`
	Tick     int32     `json:"tick"`
	Width    float64   `json:"width,omitempty"`
	Height   float64   `json:"height,omitempty"`
	Heading  Point     `json:"heading"`
	Food     Point     `json:"food"`
	Body     []Point   `json:"body"`
	Score    int32     `json:"score"`
	Length   int32     `json:"length"`
	Ate      bool      `json:"ate"`
	Finished bool      `json:"finished"`
	Cause    string    `json:"cause"`
	Rays     []float64 `json:"rays,omitempty"`
	RayKinds []int32   `json:"ray_kinds,omitempty"`
}

type TicksResponse struct {
	RoundID string  `json:"round_id"`
	Frames  []Frame `json:"frames"`
}

type ChampionSummary struct {
	Generation int             `json:"generation"`
	RoundID    string          `json:"round_id"`
	Agent      int             `json:"agent"`
	Fitness    float64         `json:"fitness"`
	Score      int             `json:"score"`
	Ticks      int             `json:"ticks"`
	Params     json.RawMessage `json:"params,omitempty"`
	WrittenAt  time.Time       `json:"written_at"`
}

// LiveHello is the first message on /ws/live, describing the round about to
// stream.
type LiveHello struct {
	Type       string    `json:"type"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Generation int       `json:"generation"`
	Controller string    `json:"controller"`
	EyeAngles  []float64 `json:"eye_angles"`
	TickRate   int       `json:"tick_rate"`
}

// LiveFrame wraps a Frame for the websocket stream.
type LiveFrame struct {
	Type string `json:"type"`
	Frame
}

type LiveEnd struct {
	Type  string `json:"type"`
	Ticks int    `json:"ticks"`
	Score int    `json:"score"`
	Cause string `json:"cause"`
	Error string `json:"error,omitempty"`
}
