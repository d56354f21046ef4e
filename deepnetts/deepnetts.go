// Package deepnetts re-exports the engine's public API.
package deepnetts

import (
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/layer"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/net"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/parallel"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

// Re-export common types and functions for easier access
type (
	Network         = net.Network
	Builder         = net.Builder
	Layer           = layer.Layer
	Trainable       = layer.Trainable
	Tensor          = tensor.Tensor
	Activation      = activations.Type
	LossType        = loss.Type
	OptimizerType   = opt.Type
	OptimizerConfig = opt.Config
	WeightInit      = winit.Method
	Pool            = parallel.Pool
)

// Activations
const (
	Linear    = activations.Linear
	Sigmoid   = activations.Sigmoid
	Tanh      = activations.Tanh
	ReLU      = activations.ReLU
	LeakyReLU = activations.LeakyReLU
	Softmax   = activations.Softmax
)

// Losses
const (
	MeanSquaredError = loss.MeanSquaredError
	CrossEntropy     = loss.CrossEntropy
)

// Optimizers
const (
	SGD      = opt.SGD
	Momentum = opt.Momentum
	AdaGrad  = opt.AdaGrad
	RMSProp  = opt.RMSProp
	Adam     = opt.Adam
	AdaDelta = opt.AdaDelta
)

// Weight initialization
const (
	Xavier   = winit.Xavier
	Uniform  = winit.Uniform
	He       = winit.He
	Gaussian = winit.Gaussian
)

// Errors
var (
	ErrInvalidChain         = layer.ErrInvalidChain
	ErrInvalidConfig        = layer.ErrInvalidConfig
	ErrNotInitialized       = layer.ErrNotInitialized
	ErrShapeMismatch        = tensor.ErrShapeMismatch
	ErrUnsupportedOptimizer = opt.ErrUnsupportedOptimizer
	ErrNonFinite            = net.ErrNonFinite
)

// NewBuilder starts a network definition.
func NewBuilder() *Builder {
	return net.NewBuilder()
}

// New connects layers into a network.
func New(layers []Layer, lossType LossType) (*Network, error) {
	return net.New(layers, lossType)
}

// DefaultOptimizer returns SGD with learning rate 0.01.
func DefaultOptimizer() OptimizerConfig {
	return opt.DefaultConfig()
}

// Layers
func Input(width, height, depth int) Layer {
	return layer.NewInput(width, height, depth)
}

func Dense(width int, act Activation) Layer {
	return layer.NewDense(width, act)
}

func Convolutional(filterWidth, filterHeight, channels, stride int, act Activation) Layer {
	return layer.NewConvolutional(filterWidth, filterHeight, channels, stride, act)
}

func MaxPooling(filterWidth, filterHeight, stride int) Layer {
	return layer.NewMaxPooling(filterWidth, filterHeight, stride)
}

func Dropout(rate float64) Layer {
	return layer.NewDropout(rate)
}

func Output(width int, act Activation, lossType LossType) Layer {
	return layer.NewOutput(width, act, lossType)
}

func SoftmaxOutput(width int) Layer {
	return layer.NewSoftmaxOutput(width)
}

// Schedulers
func StepLR(n *Network, stepSize int, gamma float64) opt.Scheduler {
	return opt.NewStepLR(n, stepSize, gamma)
}

func ExponentialLR(n *Network, gamma float64) opt.Scheduler {
	return opt.NewExponentialLR(n, gamma)
}

func ReduceLROnPlateau(n *Network, factor float64, patience int, threshold, minLR float64) opt.Scheduler {
	return opt.NewReduceLROnPlateau(n, factor, patience, threshold, minLR)
}

// Model Persistence
func Load(filename string) (*Network, error) {
	return net.Load(filename)
}
