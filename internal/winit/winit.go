// Package winit provides seeded random generation and weight initialization strategies.
package winit

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed is used by layers that were not given a generator.
const DefaultSeed = 42

// RNG is a seeded random source shared by the distributions drawing from it.
// It is not safe for concurrent use.
type RNG struct {
	src rand.Source
	r   *rand.Rand
}

// NewRNG creates a generator with the given seed.
func NewRNG(seed int64) *RNG {
	src := rand.NewSource(uint64(seed))
	return &RNG{src: src, r: rand.New(src)}
}

// Float64 returns a value in [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// NormFloat64 returns a standard normally distributed value.
func (g *RNG) NormFloat64() float64 { return g.r.NormFloat64() }

// Range returns a value in [min, max).
func (g *RNG) Range(min, max float64) float64 {
	return min + g.r.Float64()*(max-min)
}

// Method selects a weight initialization strategy.
type Method int

const (
	Xavier Method = iota
	Uniform
	He
	Gaussian
)

var methodNames = map[Method]string{
	Xavier:   "XAVIER",
	Uniform:  "UNIFORM",
	He:       "HE",
	Gaussian: "GAUSSIAN",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseMethod returns the Method named s.
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if name == s {
			return m, nil
		}
	}
	return 0, errors.Errorf("winit: unknown method %q", s)
}

// Apply fills w using m. Gaussian uses mean 0 and standard deviation 1/sqrt(fanIn).
func (m Method) Apply(w []float64, fanIn, fanOut int, rng *RNG) {
	switch m {
	case Uniform:
		UniformFanIn(w, fanIn, rng)
	case He:
		HeNormal(w, fanIn, rng)
	case Gaussian:
		Normal(w, 0, 1/math.Sqrt(float64(fanIn)), rng)
	default:
		XavierUniform(w, fanIn, fanOut, rng)
	}
}

// UniformRange fills w with values in [min, max).
func UniformRange(w []float64, min, max float64, rng *RNG) {
	d := distuv.Uniform{Min: min, Max: max, Src: rng.src}
	for i := range w {
		w[i] = d.Rand()
	}
}

// UniformFanIn fills w with values in [-1/sqrt(fanIn), 1/sqrt(fanIn)).
func UniformFanIn(w []float64, fanIn int, rng *RNG) {
	bound := 1 / math.Sqrt(float64(fanIn))
	UniformRange(w, -bound, bound, rng)
}

// XavierUniform fills w with values in [-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func XavierUniform(w []float64, fanIn, fanOut int, rng *RNG) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	UniformRange(w, -bound, bound, rng)
}

// HeNormal fills w from N(0, sqrt(2/fanIn)).
func HeNormal(w []float64, fanIn int, rng *RNG) {
	Normal(w, 0, math.Sqrt(2.0/float64(fanIn)), rng)
}

// Normal fills w from N(mean, std).
func Normal(w []float64, mean, std float64, rng *RNG) {
	d := distuv.Normal{Mu: mean, Sigma: std, Src: rng.src}
	for i := range w {
		w[i] = d.Rand()
	}
}

// Biases fills b with small values in [-0.1, 0.1).
func Biases(b []float64, rng *RNG) {
	UniformRange(b, -0.1, 0.1, rng)
}
