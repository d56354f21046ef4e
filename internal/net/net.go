// Package net provides the network chain that drives layers through forward,
// backward and weight update passes.
package net

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/layer"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/parallel"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// ErrNonFinite is returned when outputs or weights contain NaN or Inf.
var ErrNonFinite = errors.New("net: non-finite value")

// Network is a linear chain of layers starting with an input layer and
// ending with an output layer.
type Network struct {
	layers     []layer.Layer
	input      *layer.Input
	output     layer.Terminal
	trainables []layer.Trainable

	loss     loss.Loss
	lossType loss.Type

	batchMode bool
	batchSize int
	// patterns backpropagated since the last weight update in batch mode
	pending int

	// Pre-allocated output error buffer for training
	errBuf []float64

	// pool is owned by the network when the builder created it
	pool *parallel.Pool
}

// New connects and initializes layers. The first layer must be an input
// layer, the last one an output layer trained for lossType.
func New(layers []layer.Layer, lossType loss.Type) (*Network, error) {
	if len(layers) < 2 {
		return nil, errors.Wrapf(layer.ErrInvalidChain, "network needs at least 2 layers, got %d", len(layers))
	}
	in, ok := layers[0].(*layer.Input)
	if !ok {
		return nil, errors.Wrapf(layer.ErrInvalidChain, "first layer is %v, want %v", layers[0].Kind(), layer.KindInput)
	}
	out, ok := layers[len(layers)-1].(layer.Terminal)
	if !ok {
		return nil, errors.Wrapf(layer.ErrInvalidChain, "last layer is %v, want an output layer", layers[len(layers)-1].Kind())
	}
	if out.LossType() != lossType {
		return nil, errors.Wrapf(layer.ErrInvalidConfig, "output layer is set up for %v, network uses %v", out.LossType(), lossType)
	}
	if err := layer.Connect(layers...); err != nil {
		return nil, err
	}
	l, err := loss.New(lossType, out.Kind() == layer.KindSoftmaxOutput)
	if err != nil {
		return nil, err
	}

	n := &Network{
		layers:    layers,
		input:     in,
		output:    out,
		loss:      l,
		lossType:  lossType,
		batchSize: 1,
		errBuf:    make([]float64, out.Width()),
	}
	for _, ly := range layers {
		if tr, ok := ly.(layer.Trainable); ok {
			n.trainables = append(n.trainables, tr)
		}
	}
	return n, nil
}

// Layers returns the network's layers slice.
func (n *Network) Layers() []layer.Layer { return n.layers }

// Trainables returns the layers that have weights, in order.
func (n *Network) Trainables() []layer.Trainable { return n.trainables }

// Input returns the input layer.
func (n *Network) Input() *layer.Input { return n.input }

// OutputLayer returns the output layer.
func (n *Network) OutputLayer() layer.Terminal { return n.output }

// LossType returns the loss the network is trained with.
func (n *Network) LossType() loss.Type { return n.lossType }

// Loss returns the loss function.
func (n *Network) Loss() loss.Loss { return n.loss }

// Output returns the output tensor's values. The slice is overwritten by the
// next Forward.
func (n *Network) Output() []float64 { return n.output.Outputs().Values() }

// Forward sets input on the input layer and runs every layer in order. The
// returned slice is the output tensor's buffer, valid until the next Forward.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if err := n.input.SetInput(input); err != nil {
		return nil, err
	}
	for _, l := range n.layers[1:] {
		l.Forward()
	}
	out := n.output.Outputs()
	if !out.IsFinite() {
		return nil, errors.Wrap(ErrNonFinite, "network output")
	}
	return out.Values(), nil
}

// Predict runs Forward with dropout disabled and returns a copy of the output.
func (n *Network) Predict(input []float64) ([]float64, error) {
	defer n.inference()()
	out, err := n.Forward(input)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), out...), nil
}

// Backward sets the output errors (predicted - target) and runs every layer
// from last to first, accumulating weight changes.
func (n *Network) Backward(outputErrors []float64) error {
	if err := n.output.SetOutputErrors(outputErrors); err != nil {
		return err
	}
	for i := len(n.layers) - 1; i > 0; i-- {
		n.layers[i].Backward()
	}
	return nil
}

// ApplyWeightChanges applies the accumulated changes of every layer.
func (n *Network) ApplyWeightChanges() error {
	for _, l := range n.layers {
		l.ApplyWeightChanges()
	}
	n.pending = 0
	for i, tr := range n.trainables {
		if !tr.Weights().IsFinite() {
			return errors.Wrapf(ErrNonFinite, "weights of trainable layer %d (%v)", i, tr.Kind())
		}
	}
	return nil
}

// TrainStep runs one pattern forward and backward and returns its loss.
// Online, the weights are updated immediately; in batch mode they are
// updated after every batch size patterns.
func (n *Network) TrainStep(input, target []float64) (float64, error) {
	pred, err := n.Forward(input)
	if err != nil {
		return 0, err
	}
	if len(target) != len(pred) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "target has %d values, output %d", len(target), len(pred))
	}
	l := n.loss.Forward(pred, target)
	if bp, ok := n.loss.(loss.BackwardInPlacer); ok {
		bp.BackwardInPlace(pred, target, n.errBuf)
	} else {
		copy(n.errBuf, n.loss.Backward(pred, target))
	}
	if err := n.Backward(n.errBuf); err != nil {
		return 0, err
	}

	n.pending++
	if !n.batchMode || n.pending == n.batchSize {
		if err := n.ApplyWeightChanges(); err != nil {
			return l, err
		}
	}
	return l, nil
}

// TrainBatch runs TrainStep over every pattern and returns the mean loss.
func (n *Network) TrainBatch(inputs, targets [][]float64) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "%d inputs, %d targets", len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	var total float64
	for i := range inputs {
		l, err := n.TrainStep(inputs[i], targets[i])
		if err != nil {
			return 0, errors.WithMessagef(err, "pattern %d", i)
		}
		total += l
	}
	return total / float64(len(inputs)), nil
}

// Evaluate returns the mean loss over the patterns without training. Dropout
// is disabled for the duration of the call.
func (n *Network) Evaluate(inputs, targets [][]float64) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "%d inputs, %d targets", len(inputs), len(targets))
	}
	defer n.inference()()
	acc := loss.Accumulator{Loss: n.loss}
	for i := range inputs {
		pred, err := n.Forward(inputs[i])
		if err != nil {
			return 0, errors.WithMessagef(err, "pattern %d", i)
		}
		if len(targets[i]) != len(pred) {
			return 0, errors.Wrapf(tensor.ErrShapeMismatch, "pattern %d: target has %d values, output %d", i, len(targets[i]), len(pred))
		}
		acc.Add(pred, targets[i])
	}
	return acc.Total(), nil
}

// SetBatchMode switches every trainable layer between online updates and
// batches of size patterns. Pending changes are discarded.
func (n *Network) SetBatchMode(batch bool, size int) error {
	for i, tr := range n.trainables {
		if err := tr.SetBatchMode(batch, size); err != nil {
			return errors.WithMessagef(err, "trainable layer %d", i)
		}
	}
	n.batchMode = batch
	n.batchSize = 1
	if batch {
		n.batchSize = size
	}
	n.pending = 0
	return nil
}

// BatchMode reports whether updates are batched and the batch size.
func (n *Network) BatchMode() (bool, int) { return n.batchMode, n.batchSize }

// SetOptimizer gives every trainable layer a fresh optimizer of cfg.
func (n *Network) SetOptimizer(cfg opt.Config) error {
	for i, tr := range n.trainables {
		if err := tr.SetOptimizer(cfg); err != nil {
			return errors.WithMessagef(err, "trainable layer %d", i)
		}
	}
	return nil
}

// OptimizerConfig returns the optimizer settings of the first trainable layer.
func (n *Network) OptimizerConfig() opt.Config {
	if len(n.trainables) == 0 {
		return opt.DefaultConfig()
	}
	return n.trainables[0].OptimizerConfig()
}

// LearningRate returns the learning rate of the first trainable layer.
func (n *Network) LearningRate() float64 {
	return n.OptimizerConfig().LearningRate
}

// SetLearningRate sets the learning rate of every trainable layer, so a
// scheduler from package opt can drive the whole network.
func (n *Network) SetLearningRate(lr float64) {
	for _, tr := range n.trainables {
		tr.SetLearningRate(lr)
	}
}

// SetTraining switches dropout layers between training and inference.
func (n *Network) SetTraining(training bool) {
	for _, l := range n.layers {
		if d, ok := l.(*layer.Dropout); ok {
			d.SetTraining(training)
		}
	}
}

// inference switches dropout layers off and returns a func restoring their
// previous mode.
func (n *Network) inference() func() {
	var restore []*layer.Dropout
	for _, l := range n.layers {
		if d, ok := l.(*layer.Dropout); ok && d.Training() {
			d.SetTraining(false)
			restore = append(restore, d)
		}
	}
	return func() {
		for _, d := range restore {
			d.SetTraining(true)
		}
	}
}

// NumParams returns the number of weights and biases.
func (n *Network) NumParams() int {
	total := 0
	for _, tr := range n.trainables {
		total += tr.Weights().Len() + len(tr.Biases())
	}
	return total
}

// Summary writes a table of layers, output shapes and parameter counts.
func (n *Network) Summary(w io.Writer) {
	line := strings.Repeat("_", 65)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	for i, l := range n.layers {
		params := 0
		if tr, ok := l.(layer.Trainable); ok {
			params = tr.Weights().Len() + len(tr.Biases())
		}
		outShape := fmt.Sprintf("(%d, %d, %d)", l.Width(), l.Height(), l.Depth())
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%v_%d", l.Kind(), i), outShape, params)
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", n.NumParams())
	fmt.Fprintln(w, line)
}

// Close stops the worker pool the network was built with, if any.
func (n *Network) Close() {
	n.pool.Close()
	n.pool = nil
}
