// Package env reads flag defaults from the environment and binds the arena
// config to a flag set, so every binary is configured the same way.
package env

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brensch/raysnek/game"
)

func StringOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func IntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func Int64OrDefault(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func FloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func DurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func BoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// BindConfig registers the arena settings on fs. Defaults come from cfg,
// overridden by RAYSNEK_* environment variables.
func BindConfig(fs *flag.FlagSet, cfg *game.Config) {
	fs.Float64Var(&cfg.Width, "width", FloatOrDefault("RAYSNEK_WIDTH", cfg.Width), "Arena width")
	fs.Float64Var(&cfg.Height, "height", FloatOrDefault("RAYSNEK_HEIGHT", cfg.Height), "Arena height")
	fs.Float64Var(&cfg.SnakeRadius, "snake-radius", FloatOrDefault("RAYSNEK_SNAKE_RADIUS", cfg.SnakeRadius), "Segment radius used by body rays and the eat distance")
	fs.Float64Var(&cfg.FoodRadius, "food-radius", FloatOrDefault("RAYSNEK_FOOD_RADIUS", cfg.FoodRadius), "Food radius used by food rays")
	fs.Float64Var(&cfg.Epsilon, "epsilon", FloatOrDefault("RAYSNEK_EPSILON", cfg.Epsilon), "Ray tangency tolerance")
	fs.Float64Var(&cfg.RotationRate, "rotation-rate", FloatOrDefault("RAYSNEK_ROTATION_RATE", cfg.RotationRate), "Per-tick turn gain")
	fs.Float64Var(&cfg.CollisionDistance, "collision-distance", FloatOrDefault("RAYSNEK_COLLISION_DISTANCE", cfg.CollisionDistance), "Head-to-segment distance that ends a round")
	fs.IntVar(&cfg.ScoreIncrement, "score-increment", IntOrDefault("RAYSNEK_SCORE_INCREMENT", cfg.ScoreIncrement), "Score per food eaten")
	fs.IntVar(&cfg.GrowthAmount, "growth", IntOrDefault("RAYSNEK_GROWTH", cfg.GrowthAmount), "Segments added per food eaten")
	fs.IntVar(&cfg.InitialLength, "initial-length", IntOrDefault("RAYSNEK_INITIAL_LENGTH", cfg.InitialLength), "Segments in a new snake")
	fs.IntVar(&cfg.RefreshRate, "refresh-rate", IntOrDefault("RAYSNEK_REFRESH_RATE", cfg.RefreshRate), "Live view frames per second")
}
