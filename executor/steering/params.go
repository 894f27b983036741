// Package steering turns ray readings into a desired head direction.
package steering

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/brensch/raysnek/executor/inference"
)

var ErrInvalidParams = errors.New("invalid steering params")

// Params is the evolvable part of a neural controller: the eye fan and the
// layer weights. Eye angles are fractions of a right angle relative to the
// head heading. Params are never modified while a round is running.
type Params struct {
	EyeAngles  []float64         `json:"eye_angles"`
	Layers     []inference.Layer `json:"layers"`
	Activation string            `json:"activation,omitempty"`
}

// DefaultParams is the hand-written seed network: five eyes, two hidden
// neurons, linear activation.
func DefaultParams() Params {
	return Params{
		EyeAngles: []float64{-0.5, -0.1, 0, 0.1, 0.5},
		Layers: []inference.Layer{
			{Weights: [][]float64{{1, 0.5, 1, 0}, {0, 1, 0.5, 1}}},
			{Weights: [][]float64{{-0.5, 0.5}}},
		},
	}
}

// RandomParams builds 2*spread+1 evenly fanned eyes covering a full right
// angle either side, followed by fully connected layers of the given hidden
// widths and one output neuron. Weights are integers in [-10, 10).
func RandomParams(spread int, hidden []int, rng *rand.Rand) Params {
	var eyes []float64
	if spread <= 0 {
		eyes = []float64{0}
	} else {
		for k := -spread; k <= spread; k++ {
			eyes = append(eyes, float64(k)/float64(spread))
		}
	}

	widths := append(append([]int(nil), hidden...), 1)
	prev := len(eyes)
	layers := make([]inference.Layer, 0, len(widths))
	for _, w := range widths {
		weights := make([][]float64, w)
		for n := range weights {
			row := make([]float64, prev)
			for i := range row {
				row[i] = float64(rng.Intn(20) - 10)
			}
			weights[n] = row
		}
		layers = append(layers, inference.Layer{Weights: weights})
		prev = w
	}
	return Params{EyeAngles: eyes, Layers: layers}
}

func (p Params) Validate() error {
	if len(p.EyeAngles) == 0 {
		return fmt.Errorf("%w: no eyes", ErrInvalidParams)
	}
	if _, err := inference.ParseActivation(p.Activation); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := p.network().CheckShape(len(p.EyeAngles)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

func (p Params) network() inference.Network {
	act, _ := inference.ParseActivation(p.Activation)
	return inference.Network{Layers: p.Layers, Activation: act}
}

// Network returns the in-process evaluator for p.
func (p Params) Network() (inference.Network, error) {
	if err := p.Validate(); err != nil {
		return inference.Network{}, err
	}
	return p.network(), nil
}

// Clone performs a deep copy of the params.
func (p Params) Clone() Params {
	out := Params{
		EyeAngles:  append([]float64(nil), p.EyeAngles...),
		Layers:     make([]inference.Layer, len(p.Layers)),
		Activation: p.Activation,
	}
	for i, l := range p.Layers {
		rows := make([][]float64, len(l.Weights))
		for j, w := range l.Weights {
			rows[j] = append([]float64(nil), w...)
		}
		out.Layers[i] = inference.Layer{Weights: rows}
	}
	return out
}

// Shape lists the eye count followed by each layer's neuron count.
func (p Params) Shape() []int {
	out := []int{len(p.EyeAngles)}
	for _, l := range p.Layers {
		out = append(out, len(l.Weights))
	}
	return out
}

func (p Params) JSON() ([]byte, error) {
	return json.Marshal(p)
}

func ParseParams(data []byte) (Params, error) {
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("decode params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
