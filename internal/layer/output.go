package layer

import (
	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// Output is a fully connected layer that ends a network. Its deltas come
// from output errors set by the caller instead of from a next layer.
type Output struct {
	Dense

	lossType     loss.Type
	outputErrors []float64
}

// NewOutput creates an output layer. lossType selects the delta rule: with
// cross-entropy and sigmoid the error is used as the delta directly.
func NewOutput(width int, act activations.Type, lossType loss.Type) *Output {
	return &Output{
		Dense:    *NewDense(width, act),
		lossType: lossType,
	}
}

func (o *Output) Kind() Kind { return KindOutput }

// Init allocates the layer. It must be the last layer.
func (o *Output) Init() error {
	if o.act == activations.Softmax {
		return errors.Wrap(ErrInvalidConfig, "use a softmax output layer for softmax")
	}
	return o.initTerminal(KindOutput)
}

func (o *Output) initTerminal(self Kind) error {
	if err := o.initDense(self); err != nil {
		return err
	}
	if o.next != nil {
		return errors.Wrapf(ErrInvalidChain, "%v layer must be the last layer", self)
	}
	o.outputErrors = make([]float64, o.width)
	return nil
}

// LossType returns the loss the delta rule was chosen for.
func (o *Output) LossType() loss.Type { return o.lossType }

// OutputErrors returns the errors of the last SetOutputErrors.
func (o *Output) OutputErrors() []float64 { return o.outputErrors }

// SetOutputErrors copies the error (predicted - target) for the next Backward.
func (o *Output) SetOutputErrors(errs []float64) error {
	if o.outputErrors == nil {
		return ErrNotInitialized
	}
	if len(errs) != len(o.outputErrors) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "got %d output errors, want %d", len(errs), len(o.outputErrors))
	}
	copy(o.outputErrors, errs)
	return nil
}

// Backward computes deltas from the output errors and accumulates weight changes.
func (o *Output) Backward() {
	delta := o.deltas.Values()
	if o.lossType == loss.CrossEntropy && o.act == activations.Sigmoid {
		copy(delta, o.outputErrors)
	} else {
		out := o.outputs.Values()
		for j, e := range o.outputErrors {
			delta[j] = e * o.act.Derivative(out[j])
		}
	}
	o.accumulate()
}

// SoftmaxOutput is an output layer with softmax activation. It is only valid
// with cross-entropy loss, for which the delta is the error itself.
type SoftmaxOutput struct {
	Output
}

// NewSoftmaxOutput creates a softmax output layer over width classes.
func NewSoftmaxOutput(width int) *SoftmaxOutput {
	return &SoftmaxOutput{Output: *NewOutput(width, activations.Softmax, loss.CrossEntropy)}
}

func (s *SoftmaxOutput) Kind() Kind { return KindSoftmaxOutput }

// SetLossType changes the loss the layer is trained with. Anything but
// cross-entropy makes Init fail.
func (s *SoftmaxOutput) SetLossType(t loss.Type) { s.lossType = t }

func (s *SoftmaxOutput) Init() error {
	if s.lossType != loss.CrossEntropy {
		return errors.Wrapf(ErrInvalidConfig, "softmax output requires %v loss, got %v", loss.CrossEntropy, s.lossType)
	}
	return s.initTerminal(KindSoftmaxOutput)
}

// Forward computes softmax(W·x + b).
func (s *SoftmaxOutput) Forward() {
	s.weightedSum()
	activations.ApplySoftmax(s.outputs.Values())
}

// Backward uses the output errors as deltas.
func (s *SoftmaxOutput) Backward() {
	copy(s.deltas.Values(), s.outputErrors)
	s.accumulate()
}
