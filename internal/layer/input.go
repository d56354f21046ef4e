package layer

import (
	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// Input holds the pattern fed to a network. It has no weights and does no
// computation; its outputs tensor is the first hidden layer's inputs.
type Input struct {
	base
}

// NewInput creates an input layer. Use height = depth = 1 for flat vectors.
func NewInput(width, height, depth int) *Input {
	return &Input{base: base{width: width, height: height, depth: depth, act: activations.Linear}}
}

func (in *Input) Kind() Kind { return KindInput }

// Init allocates the outputs tensor.
func (in *Input) Init() error {
	if in.width < 1 || in.height < 1 || in.depth < 1 {
		return errors.Wrapf(ErrInvalidConfig, "input dimensions %dx%dx%d", in.width, in.height, in.depth)
	}
	if in.prev != nil {
		return errors.Wrap(ErrInvalidChain, "input layer must be the first layer")
	}
	in.outputs = in.newActivations()
	return nil
}

// SetInput copies a pattern into the outputs tensor.
func (in *Input) SetInput(values []float64) error {
	if in.outputs == nil {
		return ErrNotInitialized
	}
	if len(values) != in.outputs.Len() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "input has %d values, layer takes %d", len(values), in.outputs.Len())
	}
	copy(in.outputs.Values(), values)
	return nil
}

func (in *Input) Forward()            {}
func (in *Input) Backward()           {}
func (in *Input) ApplyWeightChanges() {}
