package layer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// Dense is a fully connected layer.
//
// After a flat layer the weights are a prevWidth x width matrix, so
// weights[i*width+j] connects input i to unit j. After a feature map the
// weights are a (prevHeight, prevWidth, prevDepth, width) tensor in which every
// unit's weights form one contiguous block laid out like the input map.
type Dense struct {
	base
	params

	// flat is set when the previous layer is one dimensional
	flat  bool
	fanIn int

	// gonum views over the tensors above, used on the flat path
	wMat     *mat.Dense
	gradMat  *mat.Dense
	inVec    *mat.VecDense
	outVec   *mat.VecDense
	deltaVec *mat.VecDense
}

// NewDense creates a fully connected layer with width units.
func NewDense(width int, act activations.Type) *Dense {
	return &Dense{
		base:   base{width: width, height: 1, depth: 1, act: act},
		params: newParams(),
	}
}

func (d *Dense) Kind() Kind { return KindDense }

// Init allocates the layer. A dense layer cannot end a network and cannot
// use softmax.
func (d *Dense) Init() error {
	if d.act == activations.Softmax {
		return errors.Wrap(ErrInvalidConfig, "softmax is only supported by the softmax output layer")
	}
	if err := d.initDense(KindDense); err != nil {
		return err
	}
	return d.requireNext(KindDense)
}

func (d *Dense) initDense(self Kind) error {
	if d.width < 1 {
		return errors.Wrapf(ErrInvalidConfig, "%v layer width %d", self, d.width)
	}
	if err := d.linkPrev(self); err != nil {
		return err
	}
	prev := d.prev
	d.outputs = tensor.New(d.width)
	d.deltas = tensor.New(d.width)

	var w *tensor.Tensor
	d.flat = is1D(prev)
	if d.flat {
		d.fanIn = prev.Width()
		w = tensor.New2D(d.fanIn, d.width)
	} else {
		d.fanIn = prev.Width() * prev.Height() * prev.Depth()
		w = tensor.New4D(prev.Height(), prev.Width(), prev.Depth(), d.width)
	}
	if err := d.allocate(w, d.width, d.fanIn, d.width); err != nil {
		return err
	}

	if d.flat {
		d.wMat = d.weights.Matrix()
		d.gradMat = d.gradients.Matrix()
		d.inVec = d.inputs.Vector()
		d.outVec = d.outputs.Vector()
		d.deltaVec = d.deltas.Vector()
	}
	return nil
}

// Forward computes activation(W·x + b).
func (d *Dense) Forward() {
	d.weightedSum()
	d.act.Apply(d.outputs.Values())
}

func (d *Dense) weightedSum() {
	out := d.outputs.Values()
	if d.flat {
		d.outVec.MulVec(d.wMat.T(), d.inVec)
	} else {
		in := d.inputs.Values()
		w := d.weights.Values()
		n := d.fanIn
		for j := range out {
			out[j] = floats.Dot(in, w[j*n:(j+1)*n])
		}
	}
	floats.Add(out, d.biases)
}

// Backward collects the next layer's error, applies the activation
// derivative and accumulates weight changes.
func (d *Dense) Backward() {
	collectDeltas(d.next, d.deltas, 0, 1)
	delta := d.deltas.Values()
	out := d.outputs.Values()
	for j, y := range out {
		delta[j] *= d.act.Derivative(y)
	}
	d.accumulate()
}

// accumulate computes gradients from the current deltas and adds the
// optimizer's steps to the pending changes.
func (d *Dense) accumulate() {
	d.beginAccumulate()
	delta := d.deltas.Values()
	if d.flat {
		d.gradMat.Outer(1, d.inVec, d.deltaVec)
	} else {
		in := d.inputs.Values()
		g := d.gradients.Values()
		n := d.fanIn
		for j, dj := range delta {
			floats.ScaleTo(g[j*n:(j+1)*n], dj, in)
		}
	}
	copy(d.biasGradients, delta)
	d.accumulateWeightDeltas(1)
}

// ApplyWeightChanges adds the pending changes to weights and biases.
func (d *Dense) ApplyWeightChanges() {
	d.applyWeightChanges()
}
