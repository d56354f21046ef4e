package layer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

func connect(t *testing.T, layers ...Layer) {
	t.Helper()
	require.NoError(t, Connect(layers...))
}

func forwardAll(t *testing.T, layers []Layer, input []float64) []float64 {
	t.Helper()
	require.NoError(t, layers[0].(*Input).SetInput(input))
	for _, l := range layers[1:] {
		l.Forward()
	}
	return layers[len(layers)-1].Outputs().Values()
}

func backwardAll(t *testing.T, layers []Layer, errs []float64) {
	t.Helper()
	require.NoError(t, layers[len(layers)-1].(Terminal).SetOutputErrors(errs))
	for i := len(layers) - 1; i > 0; i-- {
		layers[i].Backward()
	}
}

func randomValues(n int, seed int64) []float64 {
	v := make([]float64, n)
	winit.UniformRange(v, -1, 1, winit.NewRNG(seed))
	return v
}

func TestKindNames(t *testing.T) {
	for k := KindInput; k <= KindDropout; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("LSTM")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", Kind(42).String())
}

func TestInvalidChains(t *testing.T) {
	tests := []struct {
		name   string
		layers func() []Layer
		want   error
	}{
		{"dense ends network", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewDense(2, activations.Tanh)}
		}, ErrInvalidChain},
		{"output not last", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewOutput(2, activations.Sigmoid, loss.MeanSquaredError), NewDense(2, activations.Tanh)}
		}, ErrInvalidChain},
		{"two inputs", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewInput(3, 1, 1)}
		}, ErrInvalidChain},
		{"convolution after dense", func() []Layer {
			return []Layer{NewInput(4, 1, 1), NewDense(4, activations.ReLU),
				NewConvolutional(3, 3, 1, 1, activations.ReLU), NewOutput(1, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidChain},
		{"pooling after dense", func() []Layer {
			return []Layer{NewInput(4, 1, 1), NewDense(4, activations.ReLU),
				NewMaxPooling(2, 2, 2), NewOutput(1, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidChain},
		{"hidden softmax", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewDense(2, activations.Softmax), NewOutput(1, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidConfig},
		{"softmax activation on plain output", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewOutput(2, activations.Softmax, loss.CrossEntropy)}
		}, ErrInvalidConfig},
		{"stride larger than input", func() []Layer {
			return []Layer{NewInput(2, 2, 1), NewConvolutional(3, 3, 1, 4, activations.ReLU), NewOutput(1, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidConfig},
		{"pooling filter larger than input", func() []Layer {
			return []Layer{NewInput(2, 2, 1), NewMaxPooling(3, 3, 1), NewOutput(1, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidConfig},
		{"zero width", func() []Layer {
			return []Layer{NewInput(3, 1, 1), NewOutput(0, activations.Linear, loss.MeanSquaredError)}
		}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Connect(tt.layers()...), tt.want)
		})
	}
}

func TestSoftmaxOutputRequiresCrossEntropy(t *testing.T) {
	out := NewSoftmaxOutput(3)
	out.SetLossType(loss.MeanSquaredError)
	assert.ErrorIs(t, Connect(NewInput(4, 1, 1), out), ErrInvalidConfig)

	connect(t, NewInput(4, 1, 1), NewSoftmaxOutput(3))
}

func TestDenseWeightedSum(t *testing.T) {
	in := NewInput(2, 1, 1)
	hidden := NewDense(2, activations.ReLU)
	out := NewOutput(1, activations.Linear, loss.MeanSquaredError)
	layers := []Layer{in, hidden, out}
	connect(t, layers...)

	// weights[i*width+j] connects input i to unit j
	require.NoError(t, hidden.SetWeights([]float64{1, -1, 2, 0.5}))
	require.NoError(t, hidden.SetBiases([]float64{0.5, -1}))
	require.NoError(t, out.SetWeights([]float64{3, 4}))
	require.NoError(t, out.SetBiases([]float64{0.1}))

	got := forwardAll(t, layers, []float64{1, 2})

	// unit 0: 1*1 + 2*2 + 0.5 = 5.5, unit 1: relu(-1 + 1 - 1) = 0
	assert.Equal(t, []float64{5.5, 0}, hidden.Outputs().Values())
	assert.InDelta(t, 16.6, got[0], 1e-12)
}

func TestDenseTenUnitsWeightedSum(t *testing.T) {
	in := NewInput(5, 1, 1)
	hidden := NewDense(10, activations.Sigmoid)
	out := NewOutput(1, activations.Linear, loss.MeanSquaredError)
	layers := []Layer{in, hidden, out}
	connect(t, layers...)

	w := make([]float64, 50)
	for i := range w {
		w[i] = float64(i%7)/10 - 0.3
	}
	b := make([]float64, 10)
	for j := range b {
		b[j] = float64(j) / 20
	}
	require.NoError(t, hidden.SetWeights(w))
	require.NoError(t, hidden.SetBiases(b))

	x := []float64{0.1, -0.4, 0.25, 1, -0.6}
	forwardAll(t, layers, x)

	for j := 0; j < 10; j++ {
		sum := b[j]
		for i := 0; i < 5; i++ {
			sum += x[i] * w[i*10+j]
		}
		assert.InDelta(t, 1/(1+math.Exp(-sum)), hidden.Outputs().Get(j), 1e-12, "unit %d", j)
	}
}

func TestDenseAfterFeatureMap(t *testing.T) {
	in := NewInput(2, 2, 2)
	out := NewOutput(1, activations.Linear, loss.MeanSquaredError)
	connect(t, in, out)

	assert.Equal(t, []int{2, 2, 2, 1}, out.Weights().Shape())
	require.NoError(t, out.SetWeights([]float64{1, 1, 1, 1, 1, 1, 1, 1}))
	require.NoError(t, out.SetBiases([]float64{0}))

	got := forwardAll(t, []Layer{in, out}, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	assert.InDelta(t, 28.0, got[0], 1e-12)
}

func TestOutputDeltas(t *testing.T) {
	errs := []float64{0.3, -0.2}

	t.Run("sigmoid with cross-entropy uses the error", func(t *testing.T) {
		in, out := NewInput(3, 1, 1), NewOutput(2, activations.Sigmoid, loss.CrossEntropy)
		layers := []Layer{in, out}
		connect(t, layers...)
		forwardAll(t, layers, []float64{0.5, -1, 2})
		backwardAll(t, layers, errs)
		assert.Equal(t, errs, out.Deltas().Values())
	})

	t.Run("softmax uses the error", func(t *testing.T) {
		in, out := NewInput(3, 1, 1), NewSoftmaxOutput(2)
		layers := []Layer{in, out}
		connect(t, layers...)
		forwardAll(t, layers, []float64{0.5, -1, 2})
		backwardAll(t, layers, errs)
		assert.Equal(t, errs, out.Deltas().Values())
	})

	t.Run("sigmoid with mean squared error scales by the derivative", func(t *testing.T) {
		in, out := NewInput(3, 1, 1), NewOutput(2, activations.Sigmoid, loss.MeanSquaredError)
		layers := []Layer{in, out}
		connect(t, layers...)
		y := forwardAll(t, layers, []float64{0.5, -1, 2})
		backwardAll(t, layers, errs)
		for j, e := range errs {
			assert.InDelta(t, e*y[j]*(1-y[j]), out.Deltas().Get(j), 1e-15)
		}
	})
}

func TestSoftmaxOutputSumsToOne(t *testing.T) {
	in, out := NewInput(4, 1, 1), NewSoftmaxOutput(5)
	layers := []Layer{in, out}
	connect(t, layers...)

	for seed := int64(1); seed <= 5; seed++ {
		y := forwardAll(t, layers, randomValues(4, seed))
		sum := 0.0
		for _, v := range y {
			assert.Greater(t, v, 0.0)
			assert.Less(t, v, 1.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

func newSmallNet(t *testing.T) []Layer {
	t.Helper()
	layers := []Layer{
		NewInput(3, 1, 1),
		NewDense(4, activations.Tanh),
		NewOutput(2, activations.Sigmoid, loss.MeanSquaredError),
	}
	connect(t, layers...)
	return layers
}

func TestBatchAccumulationMatchesOnlineSum(t *testing.T) {
	online := newSmallNet(t)
	batch := newSmallNet(t)

	const n = 4
	for _, l := range batch[1:] {
		require.NoError(t, l.(Trainable).SetBatchMode(true, n))
	}

	sums := make([][]float64, len(online))
	for i, l := range online[1:] {
		sums[i+1] = make([]float64, l.(Trainable).DeltaWeights().Len())
	}

	for p := 0; p < n; p++ {
		x := randomValues(3, int64(p+10))
		target := []float64{0, 1}

		y := forwardAll(t, online, x)
		backwardAll(t, online, loss.MSE{}.Backward(y, target))
		for i, l := range online[1:] {
			for k, v := range l.(Trainable).DeltaWeights().Values() {
				sums[i+1][k] += v
			}
		}

		y = forwardAll(t, batch, x)
		backwardAll(t, batch, loss.MSE{}.Backward(y, target))
	}

	for i, l := range batch[1:] {
		tr := l.(Trainable)
		assert.InDeltaSlice(t, sums[i+1], tr.DeltaWeights().Values(), 1e-12, "layer %d", i+1)

		before := tensor.NewLike(tr.Weights())
		before.CopyFrom(tr.Weights())
		tr.ApplyWeightChanges()
		for k, w := range tr.Weights().Values() {
			assert.InDelta(t, before.Get(k)+sums[i+1][k]/n, w, 1e-12)
		}
		assert.Zero(t, tr.DeltaWeights().SumAbs(), "batch deltas are reset after apply")
	}
}

func TestOnlineApplyIsSGDStep(t *testing.T) {
	layers := newSmallNet(t)
	hidden := layers[1].(*Dense)
	before := hidden.Weights().Clone()

	y := forwardAll(t, layers, []float64{0.2, -0.7, 0.4})
	backwardAll(t, layers, loss.MSE{}.Backward(y, []float64{1, 0}))
	grads := hidden.Gradients().Clone()
	hidden.ApplyWeightChanges()

	lr := opt.DefaultConfig().LearningRate
	for k, w := range hidden.Weights().Values() {
		assert.InDelta(t, before.Get(k)-lr*grads.Get(k), w, 1e-15)
	}
}

func TestSetOptimizer(t *testing.T) {
	layers := newSmallNet(t)
	hidden := layers[1].(*Dense)

	cfg := opt.DefaultConfig()
	cfg.Type = opt.Type(99)
	assert.ErrorIs(t, hidden.SetOptimizer(cfg), opt.ErrUnsupportedOptimizer)

	cfg.Type = opt.Adam
	require.NoError(t, hidden.SetOptimizer(cfg))
	assert.Equal(t, opt.Adam, hidden.OptimizerConfig().Type)

	hidden.SetLearningRate(0.5)
	assert.Equal(t, 0.5, hidden.LearningRate())

	assert.ErrorIs(t, hidden.SetBatchMode(true, 0), ErrInvalidConfig)
}

func TestSetWeightsShape(t *testing.T) {
	d := NewDense(3, activations.ReLU)
	assert.ErrorIs(t, d.SetWeights([]float64{1}), ErrNotInitialized)

	layers := newSmallNet(t)
	assert.ErrorIs(t, layers[1].(*Dense).SetWeights([]float64{1, 2}), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, layers[1].(*Dense).SetBiases([]float64{1, 2}), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, layers[0].(*Input).SetInput([]float64{1}), tensor.ErrShapeMismatch)
}

// checkGradients compares the central difference of the loss over the
// weights of tr with the gradient stored by Backward times scale.
func checkGradients(t *testing.T, layers []Layer, tr Trainable, x, target []float64, scale float64) {
	t.Helper()
	y := forwardAll(t, layers, x)
	backwardAll(t, layers, loss.MSE{}.Backward(y, target))
	analytic := tr.Gradients().Clone()

	w := tr.Weights().Values()
	w0 := append([]float64(nil), w...)
	lossAt := func(params []float64) float64 {
		copy(w, params)
		return loss.MSE{}.Forward(forwardAll(t, layers, x), target)
	}
	numeric := fd.Gradient(nil, lossAt, w0, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	copy(w, w0)

	for i := range numeric {
		assert.InDelta(t, numeric[i], analytic.Get(i)*scale, 1e-6, "weight %d", i)
	}
}

func TestDenseGradients(t *testing.T) {
	in := NewInput(3, 1, 1)
	h1 := NewDense(4, activations.Sigmoid)
	h2 := NewDense(3, activations.Tanh)
	out := NewOutput(2, activations.Linear, loss.MeanSquaredError)
	layers := []Layer{in, h1, h2, out}
	connect(t, layers...)

	x := []float64{0.3, -0.8, 0.5}
	target := []float64{0.25, -0.5}
	for _, tr := range []Trainable{h1, h2, out} {
		checkGradients(t, layers, tr, x, target, 1)
	}
}

func TestDescribeBuildRestore(t *testing.T) {
	layers := []Layer{
		NewInput(6, 6, 1),
		NewConvolutional(3, 3, 2, 1, activations.ReLU),
		NewMaxPooling(2, 2, 2),
		NewDropout(0.25),
		NewDense(4, activations.Tanh),
		NewSoftmaxOutput(3),
	}
	connect(t, layers...)

	specs := make([]Spec, len(layers))
	for i, l := range layers {
		specs[i] = Describe(l)
	}
	assert.Equal(t, 3, specs[1].FilterWidth)
	assert.Equal(t, 2, specs[2].Stride)
	assert.Equal(t, 0.25, specs[3].Rate)
	assert.Equal(t, loss.CrossEntropy, specs[5].Loss)
	assert.Nil(t, specs[2].Weights)

	rebuilt := make([]Layer, len(specs))
	for i, s := range specs {
		l, err := s.Build()
		require.NoError(t, err)
		rebuilt[i] = l
	}
	connect(t, rebuilt...)
	for i, s := range specs {
		require.NoError(t, s.Restore(rebuilt[i]))
	}

	for i := range layers {
		assert.Equal(t, layers[i].Kind(), rebuilt[i].Kind())
		assert.Equal(t, []int{layers[i].Width(), layers[i].Height(), layers[i].Depth()},
			[]int{rebuilt[i].Width(), rebuilt[i].Height(), rebuilt[i].Depth()})
		if tr, ok := layers[i].(Trainable); ok {
			assert.Equal(t, tr.Weights().Values(), rebuilt[i].(Trainable).Weights().Values())
			assert.Equal(t, tr.Biases(), rebuilt[i].(Trainable).Biases())
		}
	}

	assert.Error(t, Spec{Kind: KindDense, Weights: []float64{1}}.Restore(NewMaxPooling(2, 2, 2)))
}
