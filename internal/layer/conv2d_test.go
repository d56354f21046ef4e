package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
)

func sequence(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i + 1)
	}
	return v
}

func TestConvolutionalShape(t *testing.T) {
	tests := []struct {
		name                        string
		inW, inH, inD               int
		fW, fH, channels, stride    int
		wantW, wantH, wantD, weights int
	}{
		{"same size", 5, 5, 1, 3, 3, 2, 1, 5, 5, 2, 3 * 3 * 1 * 2},
		{"stride two", 6, 4, 3, 3, 3, 4, 2, 3, 2, 4, 3 * 3 * 3 * 4},
		{"even filter", 4, 4, 2, 2, 2, 1, 1, 4, 4, 1, 2 * 2 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConvolutional(tt.fW, tt.fH, tt.channels, tt.stride, activations.ReLU)
			connect(t, NewInput(tt.inW, tt.inH, tt.inD), conv, NewOutput(1, activations.Linear, loss.MeanSquaredError))

			assert.Equal(t, tt.wantW, conv.Width())
			assert.Equal(t, tt.wantH, conv.Height())
			assert.Equal(t, tt.wantD, conv.Depth())
			assert.Equal(t, tt.inD, conv.FilterDepth())
			assert.Equal(t, tt.weights, conv.Weights().Len())
			assert.Len(t, conv.Biases(), tt.channels)
			assert.Equal(t, []int{tt.fH, tt.fW, tt.inD}, conv.Filter(tt.channels-1).Shape())
		})
	}
}

func TestConvolutionalForward(t *testing.T) {
	in := NewInput(3, 3, 1)
	conv := NewConvolutional(3, 3, 1, 1, activations.Linear)
	layers := []Layer{in, conv, NewOutput(1, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	// centre tap and the tap to its right
	w := make([]float64, 9)
	w[4], w[5] = 1, 1
	require.NoError(t, conv.SetWeights(w))
	require.NoError(t, conv.SetBiases([]float64{0}))

	// 1 2 3
	// 4 5 6
	// 7 8 9
	forwardAll(t, layers, sequence(9))

	// out(r, c) = in(r, c) + in(r, c+1), the right neighbour of the last column is outside
	assert.Equal(t, []float64{3, 5, 3, 9, 11, 6, 15, 17, 9}, conv.Outputs().Values())
}

func TestConvolutionalForwardStride(t *testing.T) {
	in := NewInput(4, 4, 1)
	conv := NewConvolutional(3, 3, 1, 2, activations.Linear)
	layers := []Layer{in, conv, NewOutput(1, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	w := make([]float64, 9)
	w[4] = 1
	require.NoError(t, conv.SetWeights(w))
	require.NoError(t, conv.SetBiases([]float64{0.5}))

	forwardAll(t, layers, sequence(16))

	// output (r, c) is centred on input (2r, 2c)
	assert.Equal(t, []float64{1.5, 3.5, 9.5, 11.5}, conv.Outputs().Values())
}

func TestConvolutionalForwardChannels(t *testing.T) {
	in := NewInput(2, 2, 2)
	conv := NewConvolutional(1, 1, 2, 1, activations.ReLU)
	layers := []Layer{in, conv, NewOutput(1, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	// channel 0 adds both input channels, channel 1 subtracts the second from the first
	require.NoError(t, conv.SetWeights([]float64{1, 1, 1, -1}))
	require.NoError(t, conv.SetBiases([]float64{0, 0}))

	forwardAll(t, layers, []float64{1, 2, 3, 4, 4, 3, 2, 1})

	assert.Equal(t, []float64{5, 5, 5, 5, 0, 0, 1, 3}, conv.Outputs().Values())
}

func TestConvolutionalGradientsFromDense(t *testing.T) {
	in := NewInput(5, 4, 2)
	conv := NewConvolutional(3, 3, 3, 1, activations.Tanh)
	out := NewOutput(2, activations.Linear, loss.MeanSquaredError)
	layers := []Layer{in, conv, out}
	connect(t, layers...)

	checkGradients(t, layers, conv, randomValues(40, 3), []float64{0.5, -0.25}, 1)
	checkGradients(t, layers, out, randomValues(40, 3), []float64{0.5, -0.25}, 1)
}

func TestConvolutionalGradientsStride(t *testing.T) {
	in := NewInput(6, 6, 1)
	conv := NewConvolutional(3, 3, 2, 2, activations.Tanh)
	layers := []Layer{in, conv, NewOutput(1, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	checkGradients(t, layers, conv, randomValues(36, 4), []float64{0.3}, 1)
}

func TestConvolutionalGradientsFromPooling(t *testing.T) {
	in := NewInput(6, 6, 1)
	conv := NewConvolutional(3, 3, 2, 1, activations.Tanh)
	pool := NewMaxPooling(2, 2, 2)
	hidden := NewDense(3, activations.Sigmoid)
	layers := []Layer{in, conv, pool, hidden, NewOutput(2, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	x := randomValues(36, 5)
	target := []float64{1, -1}
	checkGradients(t, layers, conv, x, target, 1)
	checkGradients(t, layers, hidden, x, target, 1)
}

func TestConvolutionalAfterConvolutionalIsNormalized(t *testing.T) {
	in := NewInput(5, 5, 2)
	first := NewConvolutional(3, 3, 2, 1, activations.Tanh)
	second := NewConvolutional(3, 3, 2, 1, activations.Tanh)
	layers := []Layer{in, first, second, NewOutput(2, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	x := randomValues(50, 6)
	target := []float64{0.1, 0.2}

	// the error reaching the first layer is divided by the volume of the
	// second layer's filters
	vol := float64(second.FilterWidth() * second.FilterHeight() * second.FilterDepth())
	checkGradients(t, layers, first, x, target, vol)
	checkGradients(t, layers, second, x, target, 1)
}

func TestConvolutionalWeightDeltasAveragedOverPositions(t *testing.T) {
	in := NewInput(4, 4, 1)
	conv := NewConvolutional(3, 3, 1, 1, activations.Tanh)
	layers := []Layer{in, conv, NewOutput(1, activations.Linear, loss.MeanSquaredError)}
	connect(t, layers...)

	y := forwardAll(t, layers, randomValues(16, 7))
	backwardAll(t, layers, []float64{y[0] - 1})

	lr := conv.LearningRate()
	positions := float64(conv.Width() * conv.Height())
	for i, g := range conv.Gradients().Values() {
		assert.InDelta(t, -lr*g/positions, conv.DeltaWeights().Get(i), 1e-15)
	}
}
