// Package activations provides activation functions optimized for performance.
package activations

import (
	"math"

	"github.com/pkg/errors"
)

// LeakySlope is the slope LeakyReLU applies for x <= 0.
const LeakySlope = 0.01

// Type tags an activation function.
type Type int

const (
	Linear Type = iota
	Sigmoid
	Tanh
	ReLU
	LeakyReLU
	Softmax
)

var typeNames = [...]string{
	Linear:    "LINEAR",
	Sigmoid:   "SIGMOID",
	Tanh:      "TANH",
	ReLU:      "RELU",
	LeakyReLU: "LEAKY_RELU",
	Softmax:   "SOFTMAX",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}
	return typeNames[t]
}

// Parse returns the Type named s (as produced by String).
func Parse(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, errors.Errorf("activations: unknown activation %q", s)
}

// Elementwise reports whether the activation applies to each value independently.
func (t Type) Elementwise() bool {
	return t != Softmax
}

// Value computes f(x). Softmax is not elementwise; use ApplySoftmax.
func (t Type) Value(x float64) float64 {
	switch t {
	case Sigmoid:
		return 1 / (1 + math.Exp(-x))
	case Tanh:
		return math.Tanh(x)
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case LeakyReLU:
		if x > 0 {
			return x
		}
		return LeakySlope * x
	case Softmax:
		panic("activations: Softmax.Value: use ApplySoftmax")
	default:
		return x
	}
}

// Derivative computes f'(x) given y = f(x).
// Expressing the derivative on the output lets layers skip storing pre-activations.
func (t Type) Derivative(y float64) float64 {
	switch t {
	case Sigmoid, Softmax:
		return y * (1 - y)
	case Tanh:
		return 1 - y*y
	case ReLU:
		if y > 0 {
			return 1
		}
		return 0
	case LeakyReLU:
		if y > 0 {
			return 1
		}
		return LeakySlope
	default:
		return 1
	}
}

// Apply replaces every x in values with f(x).
func (t Type) Apply(values []float64) {
	if t == Softmax {
		ApplySoftmax(values)
		return
	}
	if t == Linear {
		return
	}
	for i, x := range values {
		values[i] = t.Value(x)
	}
}

// ApplySoftmax computes softmax in place.
// The maximum is subtracted before exponentiating, so the result does not
// depend on a constant added to every input.
func ApplySoftmax(x []float64) {
	if len(x) == 0 {
		return
	}

	// Find max for numerical stability
	maxVal := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxVal {
			maxVal = x[i]
		}
	}

	sum := 0.0
	for i := range x {
		x[i] = math.Exp(x[i] - maxVal)
		sum += x[i]
	}

	for i := range x {
		x[i] /= sum
	}
}
