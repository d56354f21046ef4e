package layer

import (
	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// Convolutional applies one filter per output channel over every input
// channel. The output map has size prevWidth/stride x prevHeight/stride;
// filter taps that fall outside the input are skipped, which acts as zero
// padding. Output cell (r, c) is centred on input cell (r*stride, c*stride).
type Convolutional struct {
	base
	params

	// Filter shape; filterDepth is the previous layer's depth
	filterWidth  int
	filterHeight int
	filterDepth  int
	stride       int

	// Offset of the filter's anchor cell from its top left corner
	anchorRow int
	anchorCol int

	// filters[ch] views the weights of output channel ch as (fH, fW, fD)
	filters []*tensor.Tensor
}

// NewConvolutional creates a convolutional layer with channels output channels.
func NewConvolutional(filterWidth, filterHeight, channels, stride int, act activations.Type) *Convolutional {
	return &Convolutional{
		base:         base{depth: channels, act: act},
		params:       newParams(),
		filterWidth:  filterWidth,
		filterHeight: filterHeight,
		stride:       stride,
	}
}

func (cv *Convolutional) Kind() Kind { return KindConvolutional }

func (cv *Convolutional) FilterWidth() int  { return cv.filterWidth }
func (cv *Convolutional) FilterHeight() int { return cv.filterHeight }
func (cv *Convolutional) FilterDepth() int  { return cv.filterDepth }
func (cv *Convolutional) Stride() int       { return cv.stride }

// Filter returns the weights of output channel ch.
func (cv *Convolutional) Filter(ch int) *tensor.Tensor { return cv.filters[ch] }

// Init sizes the output map from the previous layer and allocates filters.
func (cv *Convolutional) Init() error {
	if cv.filterWidth < 1 || cv.filterHeight < 1 || cv.depth < 1 || cv.stride < 1 {
		return errors.Wrapf(ErrInvalidConfig, "convolution filter %dx%d, %d channels, stride %d",
			cv.filterWidth, cv.filterHeight, cv.depth, cv.stride)
	}
	if cv.act == activations.Softmax {
		return errors.Wrap(ErrInvalidConfig, "softmax is only supported by the softmax output layer")
	}
	if err := cv.linkPrev(KindConvolutional); err != nil {
		return err
	}
	if !spatialSource(cv.prev.Kind()) {
		return errors.Wrapf(ErrInvalidChain, "%v layer cannot follow %v layer", KindConvolutional, cv.prev.Kind())
	}

	cv.width = cv.prev.Width() / cv.stride
	cv.height = cv.prev.Height() / cv.stride
	if cv.width < 1 || cv.height < 1 {
		return errors.Wrapf(ErrInvalidConfig, "stride %d leaves no output for %dx%d input",
			cv.stride, cv.prev.Width(), cv.prev.Height())
	}
	cv.filterDepth = cv.prev.Depth()
	cv.anchorRow = (cv.filterHeight - 1) / 2
	cv.anchorCol = (cv.filterWidth - 1) / 2

	cv.outputs = tensor.New3D(cv.height, cv.width, cv.depth)
	cv.deltas = tensor.New3D(cv.height, cv.width, cv.depth)

	w := tensor.New4D(cv.filterHeight, cv.filterWidth, cv.filterDepth, cv.depth)
	vol := cv.filterHeight * cv.filterWidth * cv.filterDepth
	if err := cv.allocate(w, cv.depth, vol, cv.filterHeight*cv.filterWidth*cv.depth); err != nil {
		return err
	}
	cv.filters = make([]*tensor.Tensor, cv.depth)
	for ch := range cv.filters {
		f, err := tensor.Of(w.Values()[ch*vol:(ch+1)*vol], cv.filterHeight, cv.filterWidth, cv.filterDepth)
		if err != nil {
			return err
		}
		cv.filters[ch] = f
	}
	return cv.requireNext(KindConvolutional)
}

// Forward convolves every filter over the input map.
func (cv *Convolutional) Forward() {
	in := cv.inputs
	inRows, inCols := in.Rows(), in.Cols()
	for ch, f := range cv.filters {
		b := cv.biases[ch]
		for r := 0; r < cv.height; r++ {
			for c := 0; c < cv.width; c++ {
				sum := b
				for fz := 0; fz < cv.filterDepth; fz++ {
					for fr := 0; fr < cv.filterHeight; fr++ {
						ir := r*cv.stride + fr - cv.anchorRow
						if ir < 0 || ir >= inRows {
							continue
						}
						for fc := 0; fc < cv.filterWidth; fc++ {
							ic := c*cv.stride + fc - cv.anchorCol
							if ic < 0 || ic >= inCols {
								continue
							}
							sum += in.Get3(ir, ic, fz) * f.Get3(fr, fc, fz)
						}
					}
				}
				cv.outputs.Set3(r, c, ch, sum)
			}
		}
	}
	cv.act.Apply(cv.outputs.Values())
}

// Backward collects the next layer's error over all channels, applies the
// activation derivative and accumulates filter changes.
func (cv *Convolutional) Backward() {
	collectDeltas(cv.next, cv.deltas, 0, cv.depth)
	delta := cv.deltas.Values()
	for i, y := range cv.outputs.Values() {
		delta[i] *= cv.act.Derivative(y)
	}
	cv.accumulate()
}

// accumulate sums the gradient of every filter weight over all output
// positions, then adds one optimizer step per weight divided by the number
// of positions.
func (cv *Convolutional) accumulate() {
	cv.beginAccumulate()
	cv.gradients.Zero()
	clear(cv.biasGradients)

	in := cv.inputs
	inRows, inCols := in.Rows(), in.Cols()
	g := cv.gradients
	for ch := 0; ch < cv.depth; ch++ {
		for r := 0; r < cv.height; r++ {
			for c := 0; c < cv.width; c++ {
				d := cv.deltas.Get3(r, c, ch)
				if d == 0 {
					continue
				}
				cv.biasGradients[ch] += d
				for fz := 0; fz < cv.filterDepth; fz++ {
					for fr := 0; fr < cv.filterHeight; fr++ {
						ir := r*cv.stride + fr - cv.anchorRow
						if ir < 0 || ir >= inRows {
							continue
						}
						for fc := 0; fc < cv.filterWidth; fc++ {
							ic := c*cv.stride + fc - cv.anchorCol
							if ic < 0 || ic >= inCols {
								continue
							}
							g.Add4(fr, fc, fz, ch, d*in.Get3(ir, ic, fz))
						}
					}
				}
			}
		}
	}
	cv.accumulateWeightDeltas(float64(cv.width * cv.height))
}

// ApplyWeightChanges adds the pending changes to filters and biases.
func (cv *Convolutional) ApplyWeightChanges() {
	cv.applyWeightChanges()
}
