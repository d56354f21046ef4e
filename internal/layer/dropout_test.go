package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
)

func dropoutNet(t *testing.T, rate float64, n int) ([]Layer, *Dropout, *Output) {
	t.Helper()
	d := NewDropout(rate)
	out := NewOutput(1, activations.Linear, loss.MeanSquaredError)
	layers := []Layer{NewInput(n, 1, 1), d, out}
	connect(t, layers...)
	return layers, d, out
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestDropoutForwardTraining(t *testing.T) {
	layers, d, _ := dropoutNet(t, 0.5, 100)
	forwardAll(t, layers, ones(100))

	kept := 0
	for _, v := range d.Outputs().Values() {
		if v != 0 {
			assert.Equal(t, 2.0, v)
			kept++
		}
	}
	// roughly half survive
	assert.InDelta(t, 50, kept, 20)
}

func TestDropoutForwardInference(t *testing.T) {
	layers, d, _ := dropoutNet(t, 0.5, 100)
	d.SetTraining(false)

	x := sequence(100)
	forwardAll(t, layers, x)
	assert.Equal(t, x, d.Outputs().Values())
}

func TestDropoutBackwardUsesMask(t *testing.T) {
	layers, d, out := dropoutNet(t, 0.3, 20)
	require.NoError(t, out.SetWeights(ones(20)))

	forwardAll(t, layers, ones(20))
	backwardAll(t, layers, []float64{0.5})

	for i, y := range d.Outputs().Values() {
		if y == 0 {
			assert.Zero(t, d.Deltas().Get(i))
		} else {
			assert.InDelta(t, 0.5/(1-0.3), d.Deltas().Get(i), 1e-15)
		}
	}
}

func TestDropoutMirrorsFeatureMap(t *testing.T) {
	d := NewDropout(0.1)
	connect(t, NewInput(3, 2, 4), d, NewOutput(1, activations.Linear, loss.MeanSquaredError))

	assert.Equal(t, []int{3, 2, 4}, []int{d.Width(), d.Height(), d.Depth()})
	assert.Equal(t, []int{2, 3, 4}, d.Outputs().Shape())
}

func TestDropoutRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1, 1.5} {
		err := Connect(NewInput(2, 1, 1), NewDropout(rate), NewOutput(1, activations.Linear, loss.MeanSquaredError))
		assert.ErrorIs(t, err, ErrInvalidConfig, "rate %v", rate)
	}
}
