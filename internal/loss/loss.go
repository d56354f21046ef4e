// Package loss provides loss functions and the error signal fed to output layers.
//
// Backward returns the error the output layer consumes, predicted - target,
// for every loss here. The output layer decides whether that error still
// needs to be multiplied by its activation derivative.
package loss

import (
	"math"

	"github.com/pkg/errors"
)

// Type tags a loss function.
type Type int

const (
	MeanSquaredError Type = iota
	CrossEntropy
)

func (t Type) String() string {
	switch t {
	case MeanSquaredError:
		return "MEAN_SQUARED_ERROR"
	case CrossEntropy:
		return "CROSS_ENTROPY"
	}
	return "UNKNOWN"
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	switch s {
	case "MEAN_SQUARED_ERROR":
		return MeanSquaredError, nil
	case "CROSS_ENTROPY":
		return CrossEntropy, nil
	}
	return 0, errors.Errorf("loss: unknown loss %q", s)
}

// BackwardInPlacer is an optional interface for loss functions that support
// in-place gradient computation to avoid allocations.
type BackwardInPlacer interface {
	BackwardInPlace(yPred, yTrue, grad []float64)
}

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the output error signal.
	// This creates a new slice and should be avoided in hot loops.
	Backward(yPred, yTrue []float64) []float64

	Type() Type
}

// New returns the loss for t. Cross-entropy is categorical behind a softmax
// output and binary, summed over independent units, otherwise.
func New(t Type, softmax bool) (Loss, error) {
	switch t {
	case MeanSquaredError:
		return MSE{}, nil
	case CrossEntropy:
		if softmax {
			return CategoricalCrossEntropy{}, nil
		}
		return BinaryCrossEntropy{}, nil
	}
	return nil, errors.Errorf("loss: unsupported loss type %d", int(t))
}

func checkLen(name string, a, b []float64) {
	if len(a) != len(b) {
		panic(name + ": prediction and target must have same length")
	}
}

func errorSignal(yPred, yTrue, grad []float64) {
	for i := range yPred {
		grad[i] = yPred[i] - yTrue[i]
	}
}

// MSE is half the sum of squared errors of one pattern, whose gradient is
// predicted - target. Averaged by an Accumulator over n patterns it gives
// sum(err^2) / (2n).
type MSE struct{}

// Forward computes 0.5 * sum((y_pred - y_true)^2)
func (m MSE) Forward(yPred, yTrue []float64) float64 {
	checkLen("MSE", yPred, yTrue)

	var sum float64
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		sum += diff * diff
	}
	return 0.5 * sum
}

// Backward computes y_pred - y_true.
func (m MSE) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	m.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the error and stores it in grad.
func (m MSE) BackwardInPlace(yPred, yTrue, grad []float64) {
	checkLen("MSE", yPred, yTrue)
	checkLen("MSE", yPred, grad)
	errorSignal(yPred, yTrue, grad)
}

func (m MSE) Type() Type { return MeanSquaredError }

// probabilities are clipped away from 0 and 1 before taking logs
const eps = 1e-10

// BinaryCrossEntropy is cross-entropy for sigmoid outputs.
type BinaryCrossEntropy struct{}

// Forward computes -sum(t*log(p) + (1-t)*log(1-p)).
func (b BinaryCrossEntropy) Forward(yPred, yTrue []float64) float64 {
	checkLen("BinaryCrossEntropy", yPred, yTrue)

	var sum float64
	for i := range yPred {
		p := math.Min(math.Max(yPred[i], eps), 1-eps)
		sum -= yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p)
	}
	return sum
}

// Backward computes y_pred - y_true, the gradient with respect to the sigmoid input.
func (b BinaryCrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	b.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

func (b BinaryCrossEntropy) BackwardInPlace(yPred, yTrue, grad []float64) {
	checkLen("BinaryCrossEntropy", yPred, yTrue)
	checkLen("BinaryCrossEntropy", yPred, grad)
	errorSignal(yPred, yTrue, grad)
}

func (b BinaryCrossEntropy) Type() Type { return CrossEntropy }

// CategoricalCrossEntropy is cross-entropy for softmax outputs.
type CategoricalCrossEntropy struct{}

// Forward computes -sum(y_true * log(y_pred + eps))
func (c CategoricalCrossEntropy) Forward(yPred, yTrue []float64) float64 {
	checkLen("CategoricalCrossEntropy", yPred, yTrue)

	var sum float64
	for i := range yPred {
		if yTrue[i] != 0 {
			sum -= yTrue[i] * math.Log(yPred[i]+eps)
		}
	}
	return sum
}

// Backward computes y_pred - y_true, the gradient with respect to the softmax input.
func (c CategoricalCrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	c.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

func (c CategoricalCrossEntropy) BackwardInPlace(yPred, yTrue, grad []float64) {
	checkLen("CategoricalCrossEntropy", yPred, yTrue)
	checkLen("CategoricalCrossEntropy", yPred, grad)
	errorSignal(yPred, yTrue, grad)
}

func (c CategoricalCrossEntropy) Type() Type { return CrossEntropy }

// Accumulator sums pattern losses over an epoch.
type Accumulator struct {
	Loss Loss

	sum   float64
	count int
}

// Add adds the loss of one pattern and returns it.
func (a *Accumulator) Add(yPred, yTrue []float64) float64 {
	l := a.Loss.Forward(yPred, yTrue)
	a.sum += l
	a.count++
	return l
}

// Total returns the mean loss over the patterns added since the last Reset.
func (a *Accumulator) Total() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Count returns the number of patterns added since the last Reset.
func (a *Accumulator) Count() int { return a.count }

// Reset clears the running total.
func (a *Accumulator) Reset() {
	a.sum = 0
	a.count = 0
}
