package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/brensch/raysnek/game"
)

func arena() Obstacles {
	cfg := game.DefaultConfig()
	return Obstacles{
		Food:       game.V(-100, -100),
		FoodRadius: cfg.FoodRadius,
		BodyRadius: cfg.SnakeRadius,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Epsilon:    cfg.Epsilon,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCast_WallDistances(t *testing.T) {
	obs := arena()
	origin := game.V(100, 100)
	cases := []struct {
		dir  game.Vector
		want float64
	}{
		{game.V(1, 0), 540},
		{game.V(-1, 0), 100},
		{game.V(0, 1), 380},
		{game.V(0, -1), 100},
		{game.V(1, 1), 380 * math.Sqrt2},
		{game.V(-3, 0), 100},
	}
	for _, c := range cases {
		hit, err := Cast(obs, origin, c.dir)
		if err != nil {
			t.Fatalf("dir=%v: %v", c.dir, err)
		}
		if hit.Kind != HitWall || !near(hit.Distance, c.want) {
			t.Fatalf("dir=%v hit=%+v want wall at %g", c.dir, hit, c.want)
		}
	}
}

func TestCast_WallAlwaysFiniteFromInterior(t *testing.T) {
	obs := arena()
	for _, origin := range []game.Vector{game.V(1, 1), game.V(320, 240), game.V(639, 479), game.V(0, 0)} {
		for deg := 0; deg < 360; deg += 7 {
			dir := game.V(1, 0).Rotate(float64(deg) * math.Pi / 180)
			hit, err := Cast(obs, origin, dir)
			if err != nil {
				t.Fatalf("origin=%v deg=%d: %v", origin, deg, err)
			}
			if math.IsInf(hit.Distance, 0) || math.IsNaN(hit.Distance) || hit.Distance < 0 {
				t.Fatalf("origin=%v deg=%d distance=%v", origin, deg, hit.Distance)
			}
		}
	}
}

func TestCast_FoodBeatsCloserBody(t *testing.T) {
	obs := arena()
	obs.Food = game.V(200, 100)
	obs.Body = []game.Vector{game.V(150, 100)}

	hit, err := Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitFood || !near(hit.Distance, 100) {
		t.Fatalf("hit=%+v want food at 100", hit)
	}
}

func TestCast_FoodBehindIgnored(t *testing.T) {
	obs := arena()
	obs.Food = game.V(50, 100)
	obs.Body = []game.Vector{game.V(150, 100)}

	hit, err := Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitBody || !near(hit.Distance, 50) || hit.Segment != 0 {
		t.Fatalf("hit=%+v want body segment 0 at 50", hit)
	}
}

func TestCast_FoodAtOriginIsZeroDistance(t *testing.T) {
	obs := arena()
	obs.Food = game.V(100, 100)
	hit, err := Cast(obs, game.V(100, 100), game.V(0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitFood || hit.Distance != 0 {
		t.Fatalf("hit=%+v want food at 0", hit)
	}
}

func TestCast_BodyUsesLargestCosine(t *testing.T) {
	obs := arena()
	obs.Body = []game.Vector{game.V(120, 105), game.V(300, 100.5)}

	hit, err := Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitBody || hit.Segment != 1 || !near(hit.Distance, 200) {
		t.Fatalf("hit=%+v want body segment 1 at 200", hit)
	}
}

func TestCast_BestCosineMissMeansNoBodyHit(t *testing.T) {
	obs := arena()
	// The near segment would pass the disc test, but the far one is more
	// head-on and misses, so the ray falls through to the wall.
	obs.Body = []game.Vector{game.V(110, 105), game.V(400, 120)}

	hit, err := Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitWall || !near(hit.Distance, 540) {
		t.Fatalf("hit=%+v want wall at 540", hit)
	}
}

func TestCast_TangencyEpsilon(t *testing.T) {
	obs := arena()
	r := obs.FoodRadius

	obs.Food = game.V(200, 100+r)
	hit, err := Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitFood {
		t.Fatalf("tangent food missed: %+v", hit)
	}

	obs.Food = game.V(200, 100+r+2*obs.Epsilon)
	hit, err = Cast(obs, game.V(100, 100), game.V(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitWall {
		t.Fatalf("food outside tolerance was hit: %+v", hit)
	}
}

func TestCast_EmptyBody(t *testing.T) {
	obs := arena()
	obs.Body = nil
	hit, err := Cast(obs, game.V(320, 240), game.V(0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if hit.Kind != HitWall || !near(hit.Distance, 240) {
		t.Fatalf("hit=%+v want wall at 240", hit)
	}
}

func TestCast_DirectionIsRenormalized(t *testing.T) {
	obs := arena()
	a, err := Cast(obs, game.V(100, 100), game.V(0.001, 0))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Cast(obs, game.V(100, 100), game.V(50, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !near(a.Distance, b.Distance) {
		t.Fatalf("distance depends on direction length: %v vs %v", a.Distance, b.Distance)
	}
}

func TestCast_Errors(t *testing.T) {
	obs := arena()
	if _, err := Cast(obs, game.V(-1, 100), game.V(1, 0)); !errors.Is(err, ErrOriginOutOfBounds) {
		t.Fatalf("err=%v want ErrOriginOutOfBounds", err)
	}
	if _, err := Cast(obs, game.V(100, 481), game.V(1, 0)); !errors.Is(err, ErrOriginOutOfBounds) {
		t.Fatalf("err=%v want ErrOriginOutOfBounds", err)
	}
	if _, err := Cast(obs, game.V(100, 100), game.V(0, 0)); !errors.Is(err, game.ErrDegenerateVector) {
		t.Fatalf("err=%v want ErrDegenerateVector", err)
	}

	hit, err := Cast(obs, game.V(0, 100), game.V(-1, 0))
	if err != nil {
		t.Fatalf("edge origin rejected: %v", err)
	}
	if hit.Distance != 0 {
		t.Fatalf("edge distance=%v want 0", hit.Distance)
	}
}

func TestObstaclesFor_ExcludesHead(t *testing.T) {
	cfg := game.DefaultConfig()
	r := game.NewRound(game.NewSnake(cfg, 3))
	r.Food = game.V(10, 10)

	obs := ObstaclesFor(cfg, r)
	if len(obs.Body) != 2 {
		t.Fatalf("len(body)=%d want=2", len(obs.Body))
	}
	head := r.Snake.Head().Position
	for i, p := range obs.Body {
		if p == head {
			t.Fatalf("body[%d]=%v is the head", i, p)
		}
	}
	if obs.Food != r.Food || obs.Epsilon != cfg.Epsilon {
		t.Fatalf("obs=%+v", obs)
	}
}
