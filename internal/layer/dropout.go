package layer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

// Dropout implements dropout regularization.
// During training, randomly zeroes outputs with probability rate and scales
// the survivors by 1/(1-rate). During inference, passes inputs through unchanged.
type Dropout struct {
	base

	rate     float64
	training bool

	// mask holds 0 or 1/(1-rate) per value for the last Forward
	mask []float64

	rng *winit.RNG
}

// NewDropout creates a dropout layer in training mode.
func NewDropout(rate float64) *Dropout {
	return &Dropout{
		base:     base{act: activations.Linear},
		rate:     rate,
		training: true,
	}
}

func (d *Dropout) Kind() Kind { return KindDropout }

// Rate returns the drop probability.
func (d *Dropout) Rate() float64 { return d.rate }

// Training reports whether masks are drawn on Forward.
func (d *Dropout) Training() bool { return d.training }

// SetTraining switches between training and inference behaviour.
func (d *Dropout) SetTraining(training bool) { d.training = training }

func (d *Dropout) SetRNG(rng *winit.RNG) { d.rng = rng }

// Init mirrors the previous layer's shape.
func (d *Dropout) Init() error {
	if d.rate < 0 || d.rate >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "dropout rate %v not in [0, 1)", d.rate)
	}
	if err := d.linkPrev(KindDropout); err != nil {
		return err
	}
	d.width, d.height, d.depth = d.prev.Width(), d.prev.Height(), d.prev.Depth()
	d.outputs = d.newActivations()
	d.deltas = d.newActivations()
	d.mask = make([]float64, d.outputs.Len())
	for i := range d.mask {
		d.mask[i] = 1
	}
	if d.rng == nil {
		d.rng = winit.NewRNG(winit.DefaultSeed)
	}
	return d.requireNext(KindDropout)
}

// Forward draws a new mask in training mode and applies it.
func (d *Dropout) Forward() {
	if !d.training || d.rate == 0 {
		for i := range d.mask {
			d.mask[i] = 1
		}
	} else {
		scale := 1 / (1 - d.rate)
		for i := range d.mask {
			if d.rng.Float64() < d.rate {
				d.mask[i] = 0
			} else {
				d.mask[i] = scale
			}
		}
	}
	floats.MulTo(d.outputs.Values(), d.inputs.Values(), d.mask)
}

// Backward passes the next layer's error through the last mask.
func (d *Dropout) Backward() {
	collectDeltas(d.next, d.deltas, 0, d.depth)
	floats.Mul(d.deltas.Values(), d.mask)
}

// ApplyWeightChanges does nothing; dropout has no weights.
func (d *Dropout) ApplyWeightChanges() {}
