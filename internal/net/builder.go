package net

import (
	"log"

	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/layer"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/parallel"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

// Builder assembles a Network layer by layer. Errors are remembered and
// reported by Build, so calls can be chained.
//
//	n, err := net.NewBuilder().
//		Input(28, 28, 1).
//		Convolutional(3, 3, 8, 1).
//		MaxPooling(2, 2, 2).
//		Dense(32).
//		Output(10).
//		Loss(loss.CrossEntropy).
//		Build()
type Builder struct {
	layers []pendingLayer

	hiddenAct    *activations.Type
	outputAct    *activations.Type
	lossType     loss.Type
	optimizer    opt.Config
	batchSize    int
	seed         int64
	weightInit   winit.Method
	workers      int
	logger       *log.Logger
	hasOutput    bool
	hasConvLayer bool

	err error
}

type pendingLayer struct {
	spec layer.Spec
	// hidden is set when the layer takes the builder's hidden activation
	hidden bool
}

// NewBuilder returns a builder for an online, SGD trained network with
// mean squared error loss.
func NewBuilder() *Builder {
	return &Builder{
		lossType:  loss.MeanSquaredError,
		optimizer: opt.DefaultConfig(),
		seed:      winit.DefaultSeed,
	}
}

func (b *Builder) add(s layer.Spec, hidden bool) *Builder {
	if b.err != nil {
		return b
	}
	if b.hasOutput {
		b.err = errors.Wrapf(layer.ErrInvalidChain, "%v layer added after the output layer", s.Kind)
		return b
	}
	if len(b.layers) == 0 && s.Kind != layer.KindInput {
		b.err = errors.Wrapf(layer.ErrInvalidChain, "first layer must be %v, got %v", layer.KindInput, s.Kind)
		return b
	}
	b.layers = append(b.layers, pendingLayer{spec: s, hidden: hidden})
	return b
}

// Input adds the input layer. Use height = depth = 1 for flat vectors.
func (b *Builder) Input(width, height, depth int) *Builder {
	if len(b.layers) > 0 && b.err == nil {
		b.err = errors.Wrap(layer.ErrInvalidChain, "input layer must be the first layer")
		return b
	}
	return b.add(layer.Spec{Kind: layer.KindInput, Width: width, Height: height, Depth: depth}, false)
}

// Dense adds a fully connected layer with the hidden activation.
func (b *Builder) Dense(width int) *Builder {
	return b.add(layer.Spec{Kind: layer.KindDense, Width: width}, true)
}

// DenseActivation adds a fully connected layer with its own activation.
func (b *Builder) DenseActivation(width int, act activations.Type) *Builder {
	return b.add(layer.Spec{Kind: layer.KindDense, Width: width, Activation: act}, false)
}

// Convolutional adds a convolutional layer with the hidden activation.
func (b *Builder) Convolutional(filterWidth, filterHeight, channels, stride int) *Builder {
	b.hasConvLayer = true
	return b.add(layer.Spec{
		Kind:         layer.KindConvolutional,
		FilterWidth:  filterWidth,
		FilterHeight: filterHeight,
		Depth:        channels,
		Stride:       stride,
	}, true)
}

// MaxPooling adds a max pooling layer.
func (b *Builder) MaxPooling(filterWidth, filterHeight, stride int) *Builder {
	return b.add(layer.Spec{
		Kind:         layer.KindMaxPooling,
		FilterWidth:  filterWidth,
		FilterHeight: filterHeight,
		Stride:       stride,
	}, false)
}

// Dropout adds a dropout layer.
func (b *Builder) Dropout(rate float64) *Builder {
	return b.add(layer.Spec{Kind: layer.KindDropout, Rate: rate}, false)
}

// Output adds the output layer. Its kind and activation are chosen at Build
// from the loss: cross-entropy gives a sigmoid output for one unit and a
// softmax output otherwise; mean squared error uses OutputActivation,
// sigmoid by default.
func (b *Builder) Output(width int) *Builder {
	b.add(layer.Spec{Kind: layer.KindOutput, Width: width}, false)
	if b.err == nil {
		b.hasOutput = true
	}
	return b
}

// HiddenActivation sets the activation of dense and convolutional layers
// added without one. The default is ReLU when the network has a
// convolutional layer and Tanh otherwise.
func (b *Builder) HiddenActivation(act activations.Type) *Builder {
	b.hiddenAct = &act
	return b
}

// OutputActivation sets the output activation used with mean squared error.
func (b *Builder) OutputActivation(act activations.Type) *Builder {
	b.outputAct = &act
	return b
}

// Loss sets the loss function.
func (b *Builder) Loss(t loss.Type) *Builder {
	b.lossType = t
	return b
}

// Optimizer sets the optimizer of every trainable layer.
func (b *Builder) Optimizer(cfg opt.Config) *Builder {
	b.optimizer = cfg
	return b
}

// LearningRate sets the optimizer's learning rate.
func (b *Builder) LearningRate(lr float64) *Builder {
	b.optimizer.LearningRate = lr
	return b
}

// BatchMode makes the network average weight changes over size patterns.
func (b *Builder) BatchMode(size int) *Builder {
	if size < 1 && b.err == nil {
		b.err = errors.Wrapf(layer.ErrInvalidConfig, "batch size %d", size)
	}
	b.batchSize = size
	return b
}

// Seed sets the seed of the generator used for weights and dropout masks.
func (b *Builder) Seed(seed int64) *Builder {
	b.seed = seed
	return b
}

// WeightInit sets the weight initialization strategy.
func (b *Builder) WeightInit(m winit.Method) *Builder {
	b.weightInit = m
	return b
}

// Workers sets the number of goroutines pooling layers split their channels
// over. The network owns the pool; call Network.Close to stop it.
func (b *Builder) Workers(n int) *Builder {
	b.workers = n
	return b
}

// Logger makes Build log one line per layer.
func (b *Builder) Logger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) hiddenActivation() activations.Type {
	switch {
	case b.hiddenAct != nil:
		return *b.hiddenAct
	case b.hasConvLayer:
		return activations.ReLU
	default:
		return activations.Tanh
	}
}

func (b *Builder) outputSpec(s layer.Spec) layer.Spec {
	s.Loss = b.lossType
	switch {
	case b.lossType == loss.CrossEntropy && s.Width > 1:
		s.Kind = layer.KindSoftmaxOutput
		s.Activation = activations.Softmax
	case b.lossType == loss.CrossEntropy:
		s.Activation = activations.Sigmoid
	case b.outputAct != nil:
		s.Activation = *b.outputAct
	default:
		s.Activation = activations.Sigmoid
	}
	return s
}

// Build creates, connects and initializes the layers.
func (b *Builder) Build() (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.hasOutput {
		return nil, errors.Wrap(layer.ErrInvalidChain, "network has no output layer")
	}
	if err := b.optimizer.Validate(); err != nil {
		return nil, err
	}

	var pool *parallel.Pool
	if b.workers > 1 {
		pool = parallel.NewPool(parallel.Config{Workers: b.workers})
	}
	rng := winit.NewRNG(b.seed)
	hidden := b.hiddenActivation()

	layers := make([]layer.Layer, len(b.layers))
	for i, p := range b.layers {
		s := p.spec
		if p.hidden {
			s.Activation = hidden
		}
		if s.Kind == layer.KindOutput {
			s = b.outputSpec(s)
		}
		l, err := s.Build()
		if err != nil {
			pool.Close()
			return nil, err
		}
		if tr, ok := l.(layer.Trainable); ok {
			tr.SetWeightInit(b.weightInit)
			if err := tr.SetOptimizer(b.optimizer); err != nil {
				pool.Close()
				return nil, err
			}
		}
		if r, ok := l.(layer.Randomized); ok {
			r.SetRNG(rng)
		}
		if mp, ok := l.(*layer.MaxPooling); ok {
			mp.SetPool(pool)
		}
		layers[i] = l
	}

	n, err := New(layers, b.lossType)
	if err != nil {
		pool.Close()
		return nil, err
	}
	n.pool = pool
	if b.batchSize > 0 {
		if err := n.SetBatchMode(true, b.batchSize); err != nil {
			n.Close()
			return nil, err
		}
	}

	if b.logger != nil {
		for i, l := range layers {
			b.logger.Printf("layer %d: %v %dx%dx%d %v", i, l.Kind(), l.Width(), l.Height(), l.Depth(), l.Activation())
		}
		b.logger.Printf("network: %d params, loss %v, optimizer %v", n.NumParams(), b.lossType, b.optimizer.Type)
	}
	return n, nil
}
