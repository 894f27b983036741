package game

import "fmt"

// Segment is one circular body part. For the head, Heading is the unit
// direction of travel; for every other segment it is the displacement that
// will be applied on the next tick.
type Segment struct {
	Position Vector
	Heading  Vector
}

// Snake is an ordered chain of segments, oldest first. The last element is
// the head. Body is never empty and only grows during a round.
type Snake struct {
	Body []Segment
}

// NewSnake lays out length segments along +x starting at the arena center,
// all heading +x, so the head ends up length-1 units right of center.
func NewSnake(cfg Config, length int) *Snake {
	if length < 1 {
		length = 1
	}
	c := cfg.Center()
	body := make([]Segment, length)
	for i := range body {
		body[i] = Segment{
			Position: V(c.X+float64(i), c.Y),
			Heading:  V(1, 0),
		}
	}
	return &Snake{Body: body}
}

func (s *Snake) Len() int { return len(s.Body) }

// Head returns the most recently added segment.
func (s *Snake) Head() Segment {
	return s.Body[len(s.Body)-1]
}

// Tail returns every segment except the head. The slice aliases Body.
func (s *Snake) Tail() []Segment {
	return s.Body[:len(s.Body)-1]
}

// Advance moves the snake one tick and turns the head toward desired.
//
// Tail segments are processed oldest first: each moves by its stored heading
// and then re-aims at the next segment's current (not yet moved) position.
// The head moves by its unit heading, then its heading is rotated toward
// desired by at most rotationRate along the heading's perpendicular.
//
// A zero desired direction fails before anything is mutated.
func (s *Snake) Advance(desired Vector, rotationRate float64) error {
	dir, err := desired.Normalize()
	if err != nil {
		return fmt.Errorf("steer: %w", err)
	}

	last := len(s.Body) - 1
	for i := 0; i < last; i++ {
		seg := &s.Body[i]
		seg.Position = seg.Position.Add(seg.Heading)
		seg.Heading = s.Body[i+1].Position.Sub(seg.Position)
	}

	head := &s.Body[last]
	head.Position = head.Position.Add(head.Heading)

	h := head.Heading
	if h.Dot(dir) < 0 {
		// More than 90 degrees away: clamp to the perpendicular on the same
		// side as the request.
		if dir.Perp().Dot(h) < 0 {
			dir = h.Perp()
		} else {
			dir = V(h.Y, -h.X)
		}
	}

	perp := h.Perp()
	rotation := perp.Scale(dir.Dot(perp))
	next, err := h.Add(rotation.Scale(rotationRate)).Normalize()
	if err != nil {
		return fmt.Errorf("head heading: %w", err)
	}
	head.Heading = next
	return nil
}

// SelfCollision returns the index of the first non-head segment whose center
// is closer than threshold to the head center.
func (s *Snake) SelfCollision(threshold float64) (int, bool) {
	head := s.Head().Position
	for i, seg := range s.Tail() {
		if seg.Position.Dist(head) < threshold {
			return i, true
		}
	}
	return -1, false
}

// Grow inserts n segments at the front (oldest end), collocated with the
// current front segment and with zero heading, so they stay put until the
// chain's motion reaches them.
func (s *Snake) Grow(n int) {
	if n <= 0 {
		return
	}
	front := s.Body[0].Position
	grown := make([]Segment, n, n+len(s.Body))
	for i := range grown {
		grown[i] = Segment{Position: front}
	}
	s.Body = append(grown, s.Body...)
}

// Clone performs a deep copy of the snake.
func (s *Snake) Clone() *Snake {
	if s == nil {
		return nil
	}
	body := make([]Segment, len(s.Body))
	copy(body, s.Body)
	return &Snake{Body: body}
}
