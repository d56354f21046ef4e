// Package opt provides optimization algorithms.
//
// An Optimizer turns a raw gradient into the delta that a layer adds to one
// of its weights or biases. Stateful variants keep their per-weight history in
// a State addressed by the same position the layer uses for the gradient, so
// one Optimizer instance belongs to exactly one layer.
package opt

import (
	"math"

	"github.com/pkg/errors"
)

// ErrUnsupportedOptimizer is returned for an unknown optimizer kind.
var ErrUnsupportedOptimizer = errors.New("opt: unsupported optimizer")

// Type selects an optimization algorithm.
type Type int

const (
	SGD Type = iota
	Momentum
	AdaGrad
	RMSProp
	Adam
	AdaDelta
)

var typeNames = [...]string{
	SGD:      "SGD",
	Momentum: "MOMENTUM",
	AdaGrad:  "ADAGRAD",
	RMSProp:  "RMSPROP",
	Adam:     "ADAM",
	AdaDelta: "ADADELTA",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}
	return typeNames[t]
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedOptimizer, "%q", s)
}

// Config holds optimizer hyperparameters. Fields a Type does not use are ignored.
type Config struct {
	Type         Type
	LearningRate float64
	Momentum     float64 // Momentum
	DecayRate    float64 // RMSProp, AdaDelta
	Beta1        float64 // Adam first moment decay
	Beta2        float64 // Adam second moment decay
	Epsilon      float64
}

// DefaultConfig returns plain SGD with learning rate 0.01 and the usual
// defaults for the other kinds.
func DefaultConfig() Config {
	return Config{
		Type:         SGD,
		LearningRate: 0.01,
		Momentum:     0.9,
		DecayRate:    0.9,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Validate checks the kind and hyperparameter ranges.
func (c Config) Validate() error {
	if c.Type < SGD || c.Type > AdaDelta {
		return errors.Wrapf(ErrUnsupportedOptimizer, "type %d", int(c.Type))
	}
	if c.LearningRate <= 0 && c.Type != AdaDelta {
		return errors.Errorf("opt: learning rate must be positive, got %v", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("opt: momentum must be in [0, 1), got %v", c.Momentum)
	}
	if c.Type == SGD || c.Type == Momentum {
		return nil
	}
	// adaptive kinds divide by a running magnitude plus epsilon
	if c.Epsilon <= 0 {
		return errors.Errorf("opt: %v needs a positive epsilon, got %v", c.Type, c.Epsilon)
	}
	switch c.Type {
	case RMSProp, AdaDelta:
		if c.DecayRate < 0 || c.DecayRate >= 1 {
			return errors.Errorf("opt: decay rate must be in [0, 1), got %v", c.DecayRate)
		}
	case Adam:
		if c.Beta1 < 0 || c.Beta1 >= 1 {
			return errors.Errorf("opt: beta1 must be in [0, 1), got %v", c.Beta1)
		}
		if c.Beta2 < 0 || c.Beta2 >= 1 {
			return errors.Errorf("opt: beta2 must be in [0, 1), got %v", c.Beta2)
		}
	}
	return nil
}

// Optimizer converts gradients into weight and bias deltas.
type Optimizer interface {
	// WeightDelta returns the delta for the weight at pos given its gradient.
	WeightDelta(grad float64, pos int) float64

	// BiasDelta returns the delta for the bias at pos given its gradient.
	BiasDelta(grad float64, pos int) float64

	// Applied records the deltas a layer has just added to its weights and biases.
	Applied(deltaWeights, deltaBiases []float64)

	Config() Config
	SetLearningRate(lr float64)
}

// State holds one scalar per weight and per bias.
type State struct {
	Weights []float64
	Biases  []float64
}

// NewState allocates a zeroed State.
func NewState(numWeights, numBiases int) State {
	return State{
		Weights: make([]float64, numWeights),
		Biases:  make([]float64, numBiases),
	}
}

// New creates an optimizer of kind cfg.Type for a layer with the given parameter counts.
func New(cfg Config, numWeights, numBiases int) (Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case SGD:
		return &sgd{cfg: cfg}, nil
	case Momentum:
		return &momentum{cfg: cfg, prev: NewState(numWeights, numBiases)}, nil
	case AdaGrad:
		return &adaGrad{cfg: cfg, sqrSum: NewState(numWeights, numBiases)}, nil
	case RMSProp:
		return &rmsProp{cfg: cfg, sqrAvg: NewState(numWeights, numBiases)}, nil
	case Adam:
		return &adam{
			cfg: cfg,
			m:   NewState(numWeights, numBiases),
			v:   NewState(numWeights, numBiases),
			t:   1,
		}, nil
	case AdaDelta:
		return &adaDelta{
			cfg:      cfg,
			sqrGrad:  NewState(numWeights, numBiases),
			sqrDelta: NewState(numWeights, numBiases),
		}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOptimizer, "type %v", cfg.Type)
}

// sgd: delta = -lr * grad
type sgd struct {
	cfg Config
}

func (s *sgd) WeightDelta(grad float64, _ int) float64 { return -s.cfg.LearningRate * grad }
func (s *sgd) BiasDelta(grad float64, _ int) float64   { return -s.cfg.LearningRate * grad }
func (s *sgd) Applied(_, _ []float64)                   {}
func (s *sgd) Config() Config                           { return s.cfg }
func (s *sgd) SetLearningRate(lr float64)               { s.cfg.LearningRate = lr }

// momentum: delta = -lr * grad + momentum * previousDelta
type momentum struct {
	cfg  Config
	prev State
}

func (m *momentum) WeightDelta(grad float64, pos int) float64 {
	return -m.cfg.LearningRate*grad + m.cfg.Momentum*m.prev.Weights[pos]
}

func (m *momentum) BiasDelta(grad float64, pos int) float64 {
	return -m.cfg.LearningRate*grad + m.cfg.Momentum*m.prev.Biases[pos]
}

func (m *momentum) Applied(deltaWeights, deltaBiases []float64) {
	copy(m.prev.Weights, deltaWeights)
	copy(m.prev.Biases, deltaBiases)
}

func (m *momentum) Config() Config             { return m.cfg }
func (m *momentum) SetLearningRate(lr float64) { m.cfg.LearningRate = lr }

// adaGrad: sqrSum += grad^2; delta = -lr * grad / (sqrt(sqrSum) + eps)
type adaGrad struct {
	cfg    Config
	sqrSum State
}

func (a *adaGrad) step(sqrSum []float64, grad float64, pos int) float64 {
	sqrSum[pos] += grad * grad
	return -a.cfg.LearningRate * grad / (math.Sqrt(sqrSum[pos]) + a.cfg.Epsilon)
}

func (a *adaGrad) WeightDelta(grad float64, pos int) float64 {
	return a.step(a.sqrSum.Weights, grad, pos)
}

func (a *adaGrad) BiasDelta(grad float64, pos int) float64 {
	return a.step(a.sqrSum.Biases, grad, pos)
}

func (a *adaGrad) Applied(_, _ []float64)     {}
func (a *adaGrad) Config() Config             { return a.cfg }
func (a *adaGrad) SetLearningRate(lr float64) { a.cfg.LearningRate = lr }

// rmsProp: avg = decay*avg + (1-decay)*grad^2; delta = -lr * grad / (sqrt(avg) + eps)
type rmsProp struct {
	cfg    Config
	sqrAvg State
}

func (r *rmsProp) step(avg []float64, grad float64, pos int) float64 {
	avg[pos] = r.cfg.DecayRate*avg[pos] + (1-r.cfg.DecayRate)*grad*grad
	return -r.cfg.LearningRate * grad / (math.Sqrt(avg[pos]) + r.cfg.Epsilon)
}

func (r *rmsProp) WeightDelta(grad float64, pos int) float64 {
	return r.step(r.sqrAvg.Weights, grad, pos)
}

func (r *rmsProp) BiasDelta(grad float64, pos int) float64 {
	return r.step(r.sqrAvg.Biases, grad, pos)
}

func (r *rmsProp) Applied(_, _ []float64)     {}
func (r *rmsProp) Config() Config             { return r.cfg }
func (r *rmsProp) SetLearningRate(lr float64) { r.cfg.LearningRate = lr }

// adam keeps bias-corrected first and second moments. The time step advances
// once per applied update, not once per gradient.
type adam struct {
	cfg  Config
	m, v State
	t    int
}

func (a *adam) step(m, v []float64, grad float64, pos int) float64 {
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	m[pos] = b1*m[pos] + (1-b1)*grad
	v[pos] = b2*v[pos] + (1-b2)*grad*grad
	mHat := m[pos] / (1 - math.Pow(b1, float64(a.t)))
	vHat := v[pos] / (1 - math.Pow(b2, float64(a.t)))
	return -a.cfg.LearningRate * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
}

func (a *adam) WeightDelta(grad float64, pos int) float64 {
	return a.step(a.m.Weights, a.v.Weights, grad, pos)
}

func (a *adam) BiasDelta(grad float64, pos int) float64 {
	return a.step(a.m.Biases, a.v.Biases, grad, pos)
}

func (a *adam) Applied(_, _ []float64)     { a.t++ }
func (a *adam) Config() Config             { return a.cfg }
func (a *adam) SetLearningRate(lr float64) { a.cfg.LearningRate = lr }

// adaDelta does not use the learning rate:
//
//	g2 = decay*g2 + (1-decay)*grad^2
//	delta = -sqrt(d2 + eps) / sqrt(g2 + eps) * grad
//	d2 = decay*d2 + (1-decay)*delta^2
type adaDelta struct {
	cfg      Config
	sqrGrad  State
	sqrDelta State
}

func (a *adaDelta) step(g2, d2 []float64, grad float64, pos int) float64 {
	rho, eps := a.cfg.DecayRate, a.cfg.Epsilon
	g2[pos] = rho*g2[pos] + (1-rho)*grad*grad
	delta := -math.Sqrt(d2[pos]+eps) / math.Sqrt(g2[pos]+eps) * grad
	d2[pos] = rho*d2[pos] + (1-rho)*delta*delta
	return delta
}

func (a *adaDelta) WeightDelta(grad float64, pos int) float64 {
	return a.step(a.sqrGrad.Weights, a.sqrDelta.Weights, grad, pos)
}

func (a *adaDelta) BiasDelta(grad float64, pos int) float64 {
	return a.step(a.sqrGrad.Biases, a.sqrDelta.Biases, grad, pos)
}

func (a *adaDelta) Applied(_, _ []float64)     {}
func (a *adaDelta) Config() Config             { return a.cfg }
func (a *adaDelta) SetLearningRate(lr float64) { a.cfg.LearningRate = lr }
