// Package inference evaluates steering networks. The in-process Network is
// the reference evaluator; OnnxClient and OnnxPool run an exported model
// through ONNX Runtime with request batching.
package inference

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrShape is returned when inputs or weights do not line up.
var ErrShape = errors.New("network shape mismatch")

// Evaluator reduces a vector of ray distances to one steering output, in
// units of a right angle relative to the current heading.
type Evaluator interface {
	Evaluate(inputs []float64) (float64, error)
}

// Activation is applied to every neuron's weighted sum.
type Activation int

const (
	Identity Activation = iota
	Tanh
	// Clamp bounds the output to [-1, 1].
	Clamp
)

func (a Activation) Apply(x float64) float64 {
	switch a {
	case Tanh:
		return math.Tanh(x)
	case Clamp:
		return math.Max(-1, math.Min(1, x))
	default:
		return x
	}
}

func (a Activation) String() string {
	switch a {
	case Tanh:
		return "tanh"
	case Clamp:
		return "clamp"
	default:
		return "identity"
	}
}

func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity", "linear":
		return Identity, nil
	case "tanh":
		return Tanh, nil
	case "clamp":
		return Clamp, nil
	}
	return Identity, fmt.Errorf("unknown activation %q", s)
}

// Layer holds one weight row per neuron. There are no biases.
type Layer struct {
	Weights [][]float64 `json:"weights"`
}

// Network is a stack of weighted-sum layers ending in a single neuron.
type Network struct {
	Layers     []Layer
	Activation Activation
}

// Evaluate implements Evaluator.
func (n Network) Evaluate(inputs []float64) (float64, error) {
	return n.Forward(inputs)
}

// Forward runs inputs through every layer. A neuron with fewer weights than
// the previous layer has outputs only reads the leading ones; more weights
// than outputs is a shape error.
func (n Network) Forward(inputs []float64) (float64, error) {
	if len(n.Layers) == 0 {
		return 0, fmt.Errorf("%w: no layers", ErrShape)
	}
	values := inputs
	for li, layer := range n.Layers {
		if len(layer.Weights) == 0 {
			return 0, fmt.Errorf("%w: layer %d has no neurons", ErrShape, li)
		}
		next := make([]float64, len(layer.Weights))
		for ni, w := range layer.Weights {
			if len(w) > len(values) {
				return 0, fmt.Errorf("%w: layer %d neuron %d has %d weights for %d inputs", ErrShape, li, ni, len(w), len(values))
			}
			sum := 0.0
			for i, wi := range w {
				sum += values[i] * wi
			}
			next[ni] = n.Activation.Apply(sum)
		}
		values = next
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%w: output layer has %d neurons, want 1", ErrShape, len(values))
	}
	return values[0], nil
}

// CheckShape validates the topology against an input width without
// evaluating anything.
func (n Network) CheckShape(inputs int) error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrShape)
	}
	width := inputs
	for li, layer := range n.Layers {
		if len(layer.Weights) == 0 {
			return fmt.Errorf("%w: layer %d has no neurons", ErrShape, li)
		}
		for ni, w := range layer.Weights {
			if len(w) > width {
				return fmt.Errorf("%w: layer %d neuron %d has %d weights for %d inputs", ErrShape, li, ni, len(w), width)
			}
		}
		width = len(layer.Weights)
	}
	if width != 1 {
		return fmt.Errorf("%w: output layer has %d neurons, want 1", ErrShape, width)
	}
	return nil
}
