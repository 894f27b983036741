// visualize.go - console view of a round for tracing.
//
// RenderArena draws the arena scaled down to a character grid together with
// the ray readings the controller acted on.
package selfplay

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/rules"
)

const (
	arenaCols = 64
	arenaRows = 24
)

// RenderArena returns the ASCII trace for r. Ray endpoints are drawn when
// hits lines up with eyes; both may be nil.
func RenderArena(cfg game.Config, r *game.Round, eyes []float64, hits []rules.Hit) string {
	grid := make([][]byte, arenaRows)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(".", arenaCols))
	}

	cell := func(p game.Vector) (int, int, bool) {
		if !cfg.Contains(p) {
			return 0, 0, false
		}
		x := int(p.X / cfg.Width * arenaCols)
		y := int(p.Y / cfg.Height * arenaRows)
		return min(x, arenaCols-1), min(y, arenaRows-1), true
	}
	put := func(p game.Vector, c byte) {
		if x, y, ok := cell(p); ok {
			grid[y][x] = c
		}
	}

	put(r.Food, 'F')
	for _, seg := range r.Snake.Tail() {
		put(seg.Position, 'o')
	}

	head := r.Snake.Head()
	if len(hits) == len(eyes) && len(hits) > 0 {
		if d, err := head.Heading.Normalize(); err == nil {
			for i, ray := range steering.Rays(d, eyes) {
				put(head.Position.Add(ray.Scale(hits[i].Distance)), '*')
			}
		}
	}
	put(head.Position, 'O')

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== TRACE Round %s Tick %d Score %d Len %d ===\n", r.ID, r.Ticks, r.Score, r.Snake.Len())
	// Row 0 is the top edge (y=0); y grows downward.
	for _, row := range grid {
		sb.Write(row)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "head=%v heading=%.1fdeg food=%v dist=%.2f\n",
		head.Position, headingDegrees(head.Heading), r.Food, head.Position.Dist(r.Food))
	for i, h := range hits {
		fmt.Fprintf(&sb, "  eye %d: %-4s %8.2f\n", i, h.Kind.String(), h.Distance)
	}
	if r.Finished {
		fmt.Fprintf(&sb, "finished: %s\n", r.Cause)
	}
	return sb.String()
}

// PrintArena writes RenderArena to w.
func PrintArena(w io.Writer, cfg game.Config, r *game.Round, eyes []float64, hits []rules.Hit) {
	_, _ = io.WriteString(w, RenderArena(cfg, r, eyes, hits))
}

// headingDegrees is the heading angle in degrees from +x. Since y points
// down, positive angles turn clockwise as drawn.
func headingDegrees(h game.Vector) float64 {
	return math.Atan2(h.Y, h.X) * 180 / math.Pi
}
