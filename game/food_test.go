package game

import (
	"errors"
	"testing"
)

func TestFixedFood_CursorThenExhausted(t *testing.T) {
	f := NewFixedFood(V(1, 2), V(3, 4))
	for i, want := range []Vector{V(1, 2), V(3, 4)} {
		got, err := f.Food()
		if err != nil {
			t.Fatalf("food[%d]: %v", i, err)
		}
		if got != want {
			t.Fatalf("food[%d]=%v want=%v", i, got, want)
		}
	}
	if f.Remaining() != 0 {
		t.Fatalf("remaining=%d want=0", f.Remaining())
	}
	for i := 0; i < 2; i++ {
		if _, err := f.Food(); !errors.Is(err, ErrFoodExhausted) {
			t.Fatalf("err=%v want ErrFoodExhausted", err)
		}
	}
}

func TestRandomFood_InsideMargin(t *testing.T) {
	cfg := DefaultConfig()
	f := NewRandomFood(cfg, 42)
	for i := 0; i < 1000; i++ {
		p, err := f.Food()
		if err != nil {
			t.Fatal(err)
		}
		if p.X < cfg.SnakeRadius || p.X > cfg.Width-cfg.SnakeRadius ||
			p.Y < cfg.SnakeRadius || p.Y > cfg.Height-cfg.SnakeRadius {
			t.Fatalf("food %v outside margin", p)
		}
	}
}

func TestRandomFood_SameSeedSameSequence(t *testing.T) {
	cfg := DefaultConfig()
	a, b := NewRandomFood(cfg, 7), NewRandomFood(cfg, 7)
	for i := 0; i < 20; i++ {
		pa, _ := a.Food()
		pb, _ := b.Food()
		if pa != pb {
			t.Fatalf("step %d: %v != %v", i, pa, pb)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.RotationRate = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}

func TestRound_FinishIsSticky(t *testing.T) {
	r := NewRound(NewSnake(DefaultConfig(), 3))
	if r.ID == "" {
		t.Fatalf("round has no id")
	}
	r.Finish(CauseSelfCollision)
	r.Finish(CauseOutOfBounds)
	if !r.Finished || r.Cause != CauseOutOfBounds {
		t.Fatalf("finished=%v cause=%v", r.Finished, r.Cause)
	}
	c := r.Clone()
	c.Snake.Grow(3)
	if r.Snake.Len() == c.Snake.Len() {
		t.Fatalf("clone shares snake body")
	}
}
