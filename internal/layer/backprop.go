package layer

import (
	"gonum.org/v1/gonum/floats"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// collectDeltas overwrites channels [c0, c1) of deltas with the error that
// next propagates back, before the receiving layer's activation derivative.
// The rule depends on what next is:
//
//   - fully connected: the weighted sum of next's deltas over its weights
//   - dropout: next's deltas, which already carry the mask
//   - max pooling: next's deltas routed to the winning position of each window
//   - convolutional: the transposed convolution of next's deltas, divided by
//     the volume of next's filters
//
// Channel ranges let pooling split the work across goroutines.
func collectDeltas(next Layer, deltas *tensor.Tensor, c0, c1 int) {
	plane := deltas.Rows() * deltas.Cols()
	lo, hi := c0*plane, c1*plane
	dst := deltas.Values()[lo:hi]
	clear(dst)

	switch next.Kind() {
	case KindDense, KindOutput, KindSoftmaxOutput:
		fromFullyConnected(next.(Trainable), dst, lo)
	case KindDropout:
		copy(dst, next.Deltas().Values()[lo:hi])
	case KindMaxPooling:
		fromMaxPooling(next.(*MaxPooling), deltas, c0, c1)
	case KindConvolutional:
		fromConvolutional(next.(*Convolutional), deltas, c0, c1)
	default:
		panic("layer: cannot propagate deltas back from " + next.Kind().String())
	}
}

// fromFullyConnected fills dst, which starts at flat index lo of the
// receiving layer, from a dense or output layer.
func fromFullyConnected(next Trainable, dst []float64, lo int) {
	w := next.Weights().Values()
	nd := next.Deltas().Values()
	if next.Weights().Rank() == 2 {
		// weights[i*nw+k] connects input i to unit k
		nw := len(nd)
		for i := range dst {
			row := (lo + i) * nw
			dst[i] = floats.Dot(nd, w[row:row+nw])
		}
		return
	}
	// each unit's weights are a contiguous block shaped like the input
	n := len(w) / len(nd)
	for k, dk := range nd {
		if dk == 0 {
			continue
		}
		block := w[k*n+lo : k*n+lo+len(dst)]
		floats.AddScaled(dst, dk, block)
	}
}

func fromMaxPooling(p *MaxPooling, deltas *tensor.Tensor, c0, c1 int) {
	nd := p.deltas
	for ch := c0; ch < c1; ch++ {
		for r := 0; r < p.height; r++ {
			for c := 0; c < p.width; c++ {
				mr, mc := p.Argmax(ch, r, c)
				deltas.Add3(mr, mc, ch, nd.Get3(r, c, ch))
			}
		}
	}
}

func fromConvolutional(cv *Convolutional, deltas *tensor.Tensor, c0, c1 int) {
	nd := cv.deltas
	f := cv.weights
	rows, cols := deltas.Rows(), deltas.Cols()
	for ch := 0; ch < cv.depth; ch++ {
		for r := 0; r < cv.height; r++ {
			for c := 0; c < cv.width; c++ {
				d := nd.Get3(r, c, ch)
				if d == 0 {
					continue
				}
				for fz := c0; fz < c1; fz++ {
					for fr := 0; fr < cv.filterHeight; fr++ {
						ir := r*cv.stride + fr - cv.anchorRow
						if ir < 0 || ir >= rows {
							continue
						}
						for fc := 0; fc < cv.filterWidth; fc++ {
							ic := c*cv.stride + fc - cv.anchorCol
							if ic < 0 || ic >= cols {
								continue
							}
							deltas.Add3(ir, ic, fz, d*f.Get4(fr, fc, fz, ch))
						}
					}
				}
			}
		}
	}

	vol := float64(cv.filterWidth * cv.filterHeight * cv.filterDepth)
	plane := rows * cols
	floats.Scale(1/vol, deltas.Values()[c0*plane:c1*plane])
}
