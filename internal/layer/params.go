package layer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

// params is the trainable state shared by dense, output and convolutional layers.
type params struct {
	weights      *tensor.Tensor
	gradients    *tensor.Tensor
	deltaWeights *tensor.Tensor

	biases        []float64
	biasGradients []float64
	deltaBiases   []float64

	optCfg    opt.Config
	optimizer opt.Optimizer

	// batch mode sums deltas over batchSize patterns before applying them
	batchMode bool
	batchSize int

	rng        *winit.RNG
	weightInit winit.Method
}

func newParams() params {
	return params{
		optCfg:    opt.DefaultConfig(),
		batchSize: 1,
	}
}

// allocate takes ownership of w, randomizes it and creates the optimizer.
func (p *params) allocate(w *tensor.Tensor, numBiases, fanIn, fanOut int) error {
	if p.rng == nil {
		p.rng = winit.NewRNG(winit.DefaultSeed)
	}
	p.weights = w
	p.gradients = tensor.NewLike(w)
	p.deltaWeights = tensor.NewLike(w)
	p.biases = make([]float64, numBiases)
	p.biasGradients = make([]float64, numBiases)
	p.deltaBiases = make([]float64, numBiases)

	p.weightInit.Apply(w.Values(), fanIn, fanOut, p.rng)
	winit.Biases(p.biases, p.rng)
	return p.newOptimizer()
}

func (p *params) newOptimizer() error {
	o, err := opt.New(p.optCfg, p.weights.Len(), len(p.biases))
	if err != nil {
		return err
	}
	p.optimizer = o
	return nil
}

func (p *params) Weights() *tensor.Tensor      { return p.weights }
func (p *params) Biases() []float64            { return p.biases }
func (p *params) Gradients() *tensor.Tensor    { return p.gradients }
func (p *params) DeltaWeights() *tensor.Tensor { return p.deltaWeights }
func (p *params) DeltaBiases() []float64       { return p.deltaBiases }
func (p *params) OptimizerConfig() opt.Config  { return p.optCfg }
func (p *params) BatchMode() bool              { return p.batchMode }
func (p *params) BatchSize() int               { return p.batchSize }
func (p *params) LearningRate() float64        { return p.optCfg.LearningRate }

// SetWeights copies values into the weight tensor.
func (p *params) SetWeights(values []float64) error {
	if p.weights == nil {
		return ErrNotInitialized
	}
	if len(values) != p.weights.Len() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "got %d weights, want %d", len(values), p.weights.Len())
	}
	copy(p.weights.Values(), values)
	return nil
}

// SetBiases copies values into the biases.
func (p *params) SetBiases(values []float64) error {
	if p.biases == nil {
		return ErrNotInitialized
	}
	if len(values) != len(p.biases) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "got %d biases, want %d", len(values), len(p.biases))
	}
	copy(p.biases, values)
	return nil
}

// SetOptimizer replaces the optimizer. Any optimizer state is discarded.
func (p *params) SetOptimizer(cfg opt.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.optCfg = cfg
	if p.weights == nil {
		return nil
	}
	return p.newOptimizer()
}

func (p *params) SetLearningRate(lr float64) {
	p.optCfg.LearningRate = lr
	if p.optimizer != nil {
		p.optimizer.SetLearningRate(lr)
	}
}

// SetBatchMode switches between applying after every pattern and averaging
// over size patterns. Pending accumulated deltas are discarded.
func (p *params) SetBatchMode(batch bool, size int) error {
	if batch && size < 1 {
		return errors.Wrapf(ErrInvalidConfig, "batch size %d", size)
	}
	if !batch {
		size = 1
	}
	p.batchMode = batch
	p.batchSize = size
	p.clearDeltas()
	return nil
}

func (p *params) SetWeightInit(m winit.Method) { p.weightInit = m }
func (p *params) SetRNG(rng *winit.RNG)        { p.rng = rng }

func (p *params) clearDeltas() {
	if p.deltaWeights != nil {
		p.deltaWeights.Zero()
	}
	clear(p.deltaBiases)
}

// beginAccumulate is called at the start of every gradient accumulation.
func (p *params) beginAccumulate() {
	if !p.batchMode {
		p.clearDeltas()
	}
}

// applyWeightChanges adds the pending deltas to the weights. In batch mode the
// sums are averaged over the batch size first and reset afterwards.
func (p *params) applyWeightChanges() {
	if p.weights == nil {
		return
	}
	if p.batchMode {
		n := float64(p.batchSize)
		p.deltaWeights.DivScalar(n)
		for i := range p.deltaBiases {
			p.deltaBiases[i] /= n
		}
	}
	p.weights.Add(p.deltaWeights)
	floats.Add(p.biases, p.deltaBiases)
	p.optimizer.Applied(p.deltaWeights.Values(), p.deltaBiases)
	if p.batchMode {
		p.clearDeltas()
	}
}

// accumulateWeightDeltas turns every raw gradient into an optimizer step and
// adds it, divided by div, to the pending deltas.
func (p *params) accumulateWeightDeltas(div float64) {
	g := p.gradients.Values()
	dw := p.deltaWeights.Values()
	for i, grad := range g {
		dw[i] += p.optimizer.WeightDelta(grad, i) / div
	}
	for i, grad := range p.biasGradients {
		p.deltaBiases[i] += p.optimizer.BiasDelta(grad, i) / div
	}
}
