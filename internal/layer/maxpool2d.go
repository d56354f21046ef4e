package layer

import (
	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/parallel"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/tensor"
)

// MaxPooling downsamples each channel by taking the maximum of every window.
// It remembers where each maximum came from so Backward can route the error
// to that single input cell. Channels are independent, so both passes are
// split by channel across the worker pool when one is set.
type MaxPooling struct {
	base

	filterWidth  int
	filterHeight int
	stride       int

	// argmax holds the (row, col) of each window's maximum, two ints per output cell
	argmax []int

	pool       *parallel.Pool
	forwardFn  func(c0, c1 int)
	backwardFn func(c0, c1 int)
}

// NewMaxPooling creates a max pooling layer.
func NewMaxPooling(filterWidth, filterHeight, stride int) *MaxPooling {
	return &MaxPooling{
		base:         base{act: activations.Linear},
		filterWidth:  filterWidth,
		filterHeight: filterHeight,
		stride:       stride,
	}
}

func (m *MaxPooling) Kind() Kind { return KindMaxPooling }

func (m *MaxPooling) FilterWidth() int  { return m.filterWidth }
func (m *MaxPooling) FilterHeight() int { return m.filterHeight }
func (m *MaxPooling) Stride() int       { return m.stride }

// SetPool sets the pool channel work is split over. Nil runs on the caller.
func (m *MaxPooling) SetPool(p *parallel.Pool) { m.pool = p }

// Init sizes the output map: (prev - filter)/stride + 1 along each axis.
func (m *MaxPooling) Init() error {
	if m.filterWidth < 1 || m.filterHeight < 1 || m.stride < 1 {
		return errors.Wrapf(ErrInvalidConfig, "pooling filter %dx%d, stride %d", m.filterWidth, m.filterHeight, m.stride)
	}
	if err := m.linkPrev(KindMaxPooling); err != nil {
		return err
	}
	prev := m.prev
	if !spatialSource(prev.Kind()) {
		return errors.Wrapf(ErrInvalidChain, "%v layer cannot follow %v layer", KindMaxPooling, prev.Kind())
	}
	if m.filterWidth > prev.Width() || m.filterHeight > prev.Height() {
		return errors.Wrapf(ErrInvalidConfig, "pooling filter %dx%d larger than %dx%d input",
			m.filterWidth, m.filterHeight, prev.Width(), prev.Height())
	}
	m.width = (prev.Width()-m.filterWidth)/m.stride + 1
	m.height = (prev.Height()-m.filterHeight)/m.stride + 1
	m.depth = prev.Depth()

	m.outputs = tensor.New3D(m.height, m.width, m.depth)
	m.deltas = tensor.New3D(m.height, m.width, m.depth)
	m.argmax = make([]int, 2*m.width*m.height*m.depth)
	m.forwardFn = m.forwardChannels
	m.backwardFn = m.backwardChannels
	return m.requireNext(KindMaxPooling)
}

// Argmax returns the input (row, col) that won output cell (r, c) of channel ch.
func (m *MaxPooling) Argmax(ch, r, c int) (int, int) {
	i := 2 * ((ch*m.height+r)*m.width + c)
	return m.argmax[i], m.argmax[i+1]
}

// Forward takes the maximum of every window.
func (m *MaxPooling) Forward() {
	m.pool.Run(m.depth, m.forwardFn)
}

func (m *MaxPooling) forwardChannels(c0, c1 int) {
	in := m.inputs
	for ch := c0; ch < c1; ch++ {
		for r := 0; r < m.height; r++ {
			for c := 0; c < m.width; c++ {
				mr, mc := r*m.stride, c*m.stride
				best := in.Get3(mr, mc, ch)
				for fr := 0; fr < m.filterHeight; fr++ {
					for fc := 0; fc < m.filterWidth; fc++ {
						ir, ic := r*m.stride+fr, c*m.stride+fc
						if v := in.Get3(ir, ic, ch); v > best {
							best, mr, mc = v, ir, ic
						}
					}
				}
				m.outputs.Set3(r, c, ch, best)
				i := 2 * ((ch*m.height+r)*m.width + c)
				m.argmax[i], m.argmax[i+1] = mr, mc
			}
		}
	}
}

// Backward collects the next layer's error. Pooling has no activation.
func (m *MaxPooling) Backward() {
	m.pool.Run(m.depth, m.backwardFn)
}

func (m *MaxPooling) backwardChannels(c0, c1 int) {
	collectDeltas(m.next, m.deltas, c0, c1)
}

// ApplyWeightChanges does nothing; pooling has no weights.
func (m *MaxPooling) ApplyWeightChanges() {}
