package layer

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/activations"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
)

// Spec describes a layer's configuration and, for layers with weights, the
// weights themselves. It holds only plain data so it can be gob encoded.
type Spec struct {
	Kind Kind

	Width  int
	Height int
	Depth  int

	FilterWidth  int
	FilterHeight int
	Stride       int

	Activation activations.Type
	Loss       loss.Type
	Rate       float64

	Weights []float64
	Biases  []float64
}

// Describe captures l, copying its weights if it has any.
func Describe(l Layer) Spec {
	s := Spec{
		Kind:       l.Kind(),
		Width:      l.Width(),
		Height:     l.Height(),
		Depth:      l.Depth(),
		Activation: l.Activation(),
	}
	switch v := l.(type) {
	case *Convolutional:
		s.FilterWidth, s.FilterHeight, s.Stride = v.filterWidth, v.filterHeight, v.stride
	case *MaxPooling:
		s.FilterWidth, s.FilterHeight, s.Stride = v.filterWidth, v.filterHeight, v.stride
	case *Dropout:
		s.Rate = v.rate
	case *Output:
		s.Loss = v.lossType
	case *SoftmaxOutput:
		s.Loss = v.lossType
	}
	if t, ok := l.(Trainable); ok && t.Weights() != nil {
		s.Weights = slices.Clone(t.Weights().Values())
		s.Biases = slices.Clone(t.Biases())
	}
	return s
}

// Build creates an unconnected layer from s. Weights are not restored until
// Restore is called on the initialized layer.
func (s Spec) Build() (Layer, error) {
	switch s.Kind {
	case KindInput:
		return NewInput(s.Width, s.Height, s.Depth), nil
	case KindDense:
		return NewDense(s.Width, s.Activation), nil
	case KindConvolutional:
		return NewConvolutional(s.FilterWidth, s.FilterHeight, s.Depth, s.Stride, s.Activation), nil
	case KindMaxPooling:
		return NewMaxPooling(s.FilterWidth, s.FilterHeight, s.Stride), nil
	case KindOutput:
		return NewOutput(s.Width, s.Activation, s.Loss), nil
	case KindSoftmaxOutput:
		so := NewSoftmaxOutput(s.Width)
		so.SetLossType(s.Loss)
		return so, nil
	case KindDropout:
		return NewDropout(s.Rate), nil
	}
	return nil, errors.Errorf("layer: cannot build layer of kind %v", s.Kind)
}

// Restore copies the saved weights into l, which must be initialized.
func (s Spec) Restore(l Layer) error {
	if s.Weights == nil {
		return nil
	}
	t, ok := l.(Trainable)
	if !ok {
		return errors.Errorf("layer: %v layer has no weights to restore", l.Kind())
	}
	if err := t.SetWeights(s.Weights); err != nil {
		return errors.WithMessagef(err, "restore %v weights", l.Kind())
	}
	if err := t.SetBiases(s.Biases); err != nil {
		return errors.WithMessagef(err, "restore %v biases", l.Kind())
	}
	return nil
}
