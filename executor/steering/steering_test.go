package steering

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/rules"
)

type constEval float64

func (c constEval) Evaluate([]float64) (float64, error) { return float64(c), nil }

func closeTo(a, b game.Vector) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func freshRound(cfg game.Config) *game.Round {
	r := game.NewRound(game.NewSnake(cfg, cfg.InitialLength))
	r.Food = game.V(100, 100)
	return r
}

func TestRays_FanAroundHeading(t *testing.T) {
	rays := Rays(game.V(1, 0), []float64{0, 1, -1, 0.5})
	want := []game.Vector{game.V(1, 0), game.V(0, 1), game.V(0, -1), game.V(math.Sqrt2/2, math.Sqrt2/2)}
	for i := range want {
		if !closeTo(rays[i], want[i]) {
			t.Fatalf("ray[%d]=%v want=%v", i, rays[i], want[i])
		}
	}
}

func TestNeural_SenseFreshSnake(t *testing.T) {
	cfg := game.DefaultConfig()
	n, err := NewNeural(cfg, Params{
		EyeAngles: []float64{0, 1},
		Layers:    DefaultParams().Layers[1:],
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := n.Sense(freshRound(cfg))
	if err != nil {
		t.Fatal(err)
	}
	// Head at (349,240) facing +x; the body lies behind it.
	if hits[0].Kind != rules.HitWall || math.Abs(hits[0].Distance-291) > 1e-9 {
		t.Fatalf("ahead=%+v want wall at 291", hits[0])
	}
	if hits[1].Kind != rules.HitWall || math.Abs(hits[1].Distance-240) > 1e-9 {
		t.Fatalf("left=%+v want wall at 240", hits[1])
	}
}

func TestNeural_ZeroOutputKeepsHeading(t *testing.T) {
	cfg := game.DefaultConfig()
	n, err := NewNeural(cfg, DefaultParams(), constEval(0))
	if err != nil {
		t.Fatal(err)
	}
	r := freshRound(cfg)
	dir, err := n.Direction(r)
	if err != nil {
		t.Fatal(err)
	}
	if !closeTo(dir, game.V(1, 0)) {
		t.Fatalf("dir=%v want=(1,0)", dir)
	}
	if got := len(n.LastHits()); got != 5 {
		t.Fatalf("hits=%d want=5", got)
	}
}

func TestNeural_OutputIsQuarterTurns(t *testing.T) {
	cfg := game.DefaultConfig()
	n, err := NewNeural(cfg, DefaultParams(), constEval(1))
	if err != nil {
		t.Fatal(err)
	}
	dir, err := n.Direction(freshRound(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if !closeTo(dir, game.V(0, 1)) {
		t.Fatalf("dir=%v want=(0,1)", dir)
	}
}

func TestNeural_NonFiniteOutputIsError(t *testing.T) {
	cfg := game.DefaultConfig()
	n, err := NewNeural(cfg, DefaultParams(), constEval(math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Direction(freshRound(cfg)); err == nil {
		t.Fatalf("expected error for NaN output")
	}
}

func TestNeural_RunsFullRound(t *testing.T) {
	cfg := game.DefaultConfig()
	ctrl, err := New(KindNeural, cfg, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := rules.NewGame(cfg, ctrl, game.NewRandomFood(cfg, 7), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(2000); err != nil {
		t.Fatal(err)
	}
	if g.Round.Ticks == 0 {
		t.Fatalf("round did not run")
	}
	t.Logf("ticks=%d score=%d cause=%s", g.Round.Ticks, g.Round.Score, g.Round.Cause)
}

func TestNewNeural_RejectsBadShape(t *testing.T) {
	p := DefaultParams()
	p.EyeAngles = p.EyeAngles[:2]
	if _, err := NewNeural(game.DefaultConfig(), p, nil); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err=%v want ErrInvalidParams", err)
	}
}

func TestSeek_AimsAtFood(t *testing.T) {
	cfg := game.DefaultConfig()
	r := freshRound(cfg)
	r.Food = r.Snake.Head().Position.Add(game.V(0, 10))
	dir, err := Seek{}.Direction(r)
	if err != nil {
		t.Fatal(err)
	}
	if dir != game.V(0, 10) {
		t.Fatalf("dir=%v want=(0,10)", dir)
	}

	r.Food = r.Snake.Head().Position
	dir, err = Seek{}.Direction(r)
	if err != nil {
		t.Fatal(err)
	}
	if dir != r.Snake.Head().Heading {
		t.Fatalf("dir=%v want heading", dir)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindNeural, "Seek": KindSeek, "heading": KindHeading} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q)=(%v,%v) want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("mouse"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRandomParams_Shape(t *testing.T) {
	p := RandomParams(5, []int{5}, rand.New(rand.NewSource(1)))
	shape := p.Shape()
	if len(shape) != 3 || shape[0] != 11 || shape[1] != 5 || shape[2] != 1 {
		t.Fatalf("shape=%v want=[11 5 1]", shape)
	}
	if p.EyeAngles[0] != -1 || p.EyeAngles[5] != 0 || p.EyeAngles[10] != 1 {
		t.Fatalf("eyes=%v", p.EyeAngles)
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	q := RandomParams(5, []int{5}, rand.New(rand.NewSource(1)))
	if q.Layers[0].Weights[2][3] != p.Layers[0].Weights[2][3] {
		t.Fatalf("same seed produced different weights")
	}
}

func TestParams_CloneIsDeep(t *testing.T) {
	p := DefaultParams()
	c := p.Clone()
	c.EyeAngles[0] = 9
	c.Layers[0].Weights[0][0] = 9
	if p.EyeAngles[0] == 9 || p.Layers[0].Weights[0][0] == 9 {
		t.Fatalf("clone shares storage with original")
	}
}

func TestParseParams(t *testing.T) {
	data, err := DefaultParams().JSON()
	if err != nil {
		t.Fatal(err)
	}
	p, err := ParseParams(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.EyeAngles) != 5 || p.Layers[1].Weights[0][1] != 0.5 {
		t.Fatalf("decoded=%+v", p)
	}
	if _, err := ParseParams([]byte(`{"eye_angles":[0],"layers":[]}`)); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err=%v want ErrInvalidParams", err)
	}
}
