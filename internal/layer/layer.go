// Package layer provides the layers of a feed-forward network and the
// backpropagation rules that connect them.
//
// Layers form a doubly linked chain. Each layer reads its previous layer's
// output tensor directly (the two share one buffer) and, during backward,
// reads its next layer's deltas and weights directly. Which backward rule a
// layer applies is decided by the Kind of the layer that follows it.
package layer

import (
	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

var (
	// ErrInvalidChain is returned when a layer is placed where it cannot work.
	ErrInvalidChain = errors.New("layer: invalid layer chain")

	// ErrInvalidConfig is returned for non-positive sizes, bad rates and
	// activation/loss combinations a layer does not support.
	ErrInvalidConfig = errors.New("layer: invalid configuration")

	// ErrNotInitialized is returned when weights are accessed before Init.
	ErrNotInitialized = errors.New("layer: not initialized")
)

// Kind identifies a layer variant. Backward dispatch switches on the Kind of
// the next layer.
type Kind int

const (
	KindInput Kind = iota
	KindDense
	KindConvolutional
	KindMaxPooling
	KindOutput
	KindSoftmaxOutput
	KindDropout
)

var kindNames = [...]string{
	KindInput:         "INPUT",
	KindDense:         "DENSE",
	KindConvolutional: "CONVOLUTIONAL",
	KindMaxPooling:    "MAX_POOLING",
	KindOutput:        "OUTPUT",
	KindSoftmaxOutput: "SOFTMAX_OUTPUT",
	KindDropout:       "DROPOUT",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, errors.Errorf("layer: unknown layer kind %q", s)
}

// Layer is one stage of a network.
type Layer interface {
	Kind() Kind

	// Init allocates tensors and weights. Prev and Next must already be set
	// and Prev must already be initialized.
	Init() error

	// Forward computes the outputs from the previous layer's outputs.
	Forward()

	// Backward computes deltas and accumulates weight changes.
	Backward()

	// ApplyWeightChanges adds the accumulated changes to the weights.
	ApplyWeightChanges()

	Width() int
	Height() int
	Depth() int
	Activation() activations.Type

	Inputs() *tensor.Tensor
	Outputs() *tensor.Tensor
	Deltas() *tensor.Tensor

	Prev() Layer
	Next() Layer
	SetPrev(l Layer)
	SetNext(l Layer)
}

// Trainable is a layer with weights and biases.
type Trainable interface {
	Layer

	Weights() *tensor.Tensor
	Biases() []float64
	SetWeights(values []float64) error
	SetBiases(values []float64) error

	// Gradients holds the raw gradient of the last Backward.
	Gradients() *tensor.Tensor
	DeltaWeights() *tensor.Tensor
	DeltaBiases() []float64

	OptimizerConfig() opt.Config
	SetOptimizer(cfg opt.Config) error
	LearningRate() float64
	SetLearningRate(lr float64)

	BatchMode() bool
	BatchSize() int
	SetBatchMode(batch bool, size int) error

	SetWeightInit(m winit.Method)
	SetRNG(rng *winit.RNG)
}

// Terminal is the last layer of a network, fed with output errors.
type Terminal interface {
	Trainable
	SetOutputErrors(errs []float64) error
	OutputErrors() []float64
	LossType() loss.Type
}

// Randomized is implemented by layers that draw random numbers.
type Randomized interface {
	SetRNG(rng *winit.RNG)
}

// Connect links layers in order and initializes each one.
func Connect(layers ...Layer) error {
	for i, l := range layers {
		if i > 0 {
			l.SetPrev(layers[i-1])
		}
		if i < len(layers)-1 {
			l.SetNext(layers[i+1])
		}
	}
	for i, l := range layers {
		if err := l.Init(); err != nil {
			return errors.WithMessagef(err, "layer %d (%v)", i, l.Kind())
		}
	}
	return nil
}

// base holds what every layer has.
type base struct {
	prev Layer
	next Layer

	// inputs is the previous layer's outputs tensor, shared not copied
	inputs  *tensor.Tensor
	outputs *tensor.Tensor
	deltas  *tensor.Tensor

	width  int
	height int
	depth  int
	act    activations.Type
}

func (b *base) Width() int                   { return b.width }
func (b *base) Height() int                  { return b.height }
func (b *base) Depth() int                   { return b.depth }
func (b *base) Activation() activations.Type { return b.act }
func (b *base) Inputs() *tensor.Tensor       { return b.inputs }
func (b *base) Outputs() *tensor.Tensor      { return b.outputs }
func (b *base) Deltas() *tensor.Tensor       { return b.deltas }
func (b *base) Prev() Layer                  { return b.prev }
func (b *base) Next() Layer                  { return b.next }
func (b *base) SetPrev(l Layer)              { b.prev = l }
func (b *base) SetNext(l Layer)              { b.next = l }

// linkPrev checks that prev exists and is initialized, then shares its outputs.
func (b *base) linkPrev(self Kind) error {
	if b.prev == nil {
		return errors.Wrapf(ErrInvalidChain, "%v layer has no previous layer", self)
	}
	switch b.prev.Kind() {
	case KindOutput, KindSoftmaxOutput:
		return errors.Wrapf(ErrInvalidChain, "%v layer cannot follow %v layer", self, b.prev.Kind())
	}
	if b.prev.Outputs() == nil {
		return errors.Wrapf(ErrNotInitialized, "previous layer of %v layer", self)
	}
	b.inputs = b.prev.Outputs()
	return nil
}

// requireNext fails when a hidden layer ends the chain.
func (b *base) requireNext(self Kind) error {
	if b.next == nil {
		return errors.Wrapf(ErrInvalidChain, "%v layer cannot end a network", self)
	}
	return nil
}

// newActivations allocates a tensor with the layer's shape; flat layers get a
// one dimensional tensor.
func (b *base) newActivations() *tensor.Tensor {
	if b.height == 1 && b.depth == 1 {
		return tensor.New(b.width)
	}
	return tensor.New3D(b.height, b.width, b.depth)
}

func is1D(l Layer) bool {
	return l.Height() == 1 && l.Depth() == 1
}

// spatialSource reports whether k produces a feature map that convolution
// and pooling can read.
func spatialSource(k Kind) bool {
	switch k {
	case KindInput, KindConvolutional, KindMaxPooling, KindDropout:
		return true
	}
	return false
}
