// Package tensor provides the dense numeric container passed between layers.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when values or another tensor do not fit a tensor's shape.
var ErrShapeMismatch = errors.New("tensor: shape mismatch")

// Tensor is a fixed-shape dense buffer with up to four axes.
// Unused axes have size 1. Values are stored contiguously with cols varying
// fastest, then rows, then depth, then the fourth axis:
//
//	idx = ((f*depth + z)*rows + r)*cols + c
//
// The buffer length never changes after construction. Index arithmetic is not
// bounds checked beyond what the runtime does for slices.
type Tensor struct {
	rows   int
	cols   int
	depth  int
	fourth int
	rank   int

	values []float64
}

// New creates a one dimensional tensor with the given number of columns.
func New(cols int) *Tensor {
	return newTensor(1, cols, 1, 1, 1)
}

// New2D creates a rows x cols tensor.
func New2D(rows, cols int) *Tensor {
	return newTensor(rows, cols, 1, 1, 2)
}

// New3D creates a rows x cols x depth tensor.
func New3D(rows, cols, depth int) *Tensor {
	return newTensor(rows, cols, depth, 1, 3)
}

// New4D creates a rows x cols x depth x fourth tensor.
func New4D(rows, cols, depth, fourth int) *Tensor {
	return newTensor(rows, cols, depth, fourth, 4)
}

func newTensor(rows, cols, depth, fourth, rank int) *Tensor {
	return &Tensor{
		rows:   rows,
		cols:   cols,
		depth:  depth,
		fourth: fourth,
		rank:   rank,
		values: make([]float64, rows*cols*depth*fourth),
	}
}

// NewLike creates a zeroed tensor with the same shape as t.
func NewLike(t *Tensor) *Tensor {
	return newTensor(t.rows, t.cols, t.depth, t.fourth, t.rank)
}

// Of creates a tensor with the given dims (cols first for 1D; rows, cols,
// depth, fourth otherwise) that wraps values without copying them.
func Of(values []float64, dims ...int) (*Tensor, error) {
	if len(dims) == 0 || len(dims) > 4 {
		return nil, errors.Errorf("tensor: expected 1 to 4 dims, got %d", len(dims))
	}
	shape := [4]int{1, 1, 1, 1}
	if len(dims) == 1 {
		shape[1] = dims[0]
	} else {
		copy(shape[:], dims)
	}
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Errorf("tensor: non-positive dimension in %v", dims)
		}
		size *= d
	}
	if size != len(values) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d values for dims %v", len(values), dims)
	}
	return &Tensor{
		rows:   shape[0],
		cols:   shape[1],
		depth:  shape[2],
		fourth: shape[3],
		rank:   len(dims),
		values: values,
	}, nil
}

// FromValues creates a one dimensional tensor holding a copy of values.
func FromValues(values ...float64) *Tensor {
	t := New(len(values))
	copy(t.values, values)
	return t
}

// Rows returns the size of the row axis.
func (t *Tensor) Rows() int { return t.rows }

// Cols returns the size of the column axis.
func (t *Tensor) Cols() int { return t.cols }

// Depth returns the size of the depth axis.
func (t *Tensor) Depth() int { return t.depth }

// Fourth returns the size of the fourth axis.
func (t *Tensor) Fourth() int { return t.fourth }

// Rank returns the number of declared axes.
func (t *Tensor) Rank() int { return t.rank }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.values) }

// Shape returns the declared axis sizes.
func (t *Tensor) Shape() []int {
	switch t.rank {
	case 1:
		return []int{t.cols}
	case 2:
		return []int{t.rows, t.cols}
	case 3:
		return []int{t.rows, t.cols, t.depth}
	default:
		return []int{t.rows, t.cols, t.depth, t.fourth}
	}
}

// SameShape reports whether both tensors hold the same axis sizes.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.rows == o.rows && t.cols == o.cols && t.depth == o.depth && t.fourth == o.fourth
}

// Values returns the backing buffer. Writes through it are visible to the tensor.
func (t *Tensor) Values() []float64 { return t.values }

// Get returns the element at linear index i.
func (t *Tensor) Get(i int) float64 { return t.values[i] }

// Set sets the element at linear index i.
func (t *Tensor) Set(i int, v float64) { t.values[i] = v }

// Index2 returns the linear index of (row, col).
func (t *Tensor) Index2(row, col int) int {
	return row*t.cols + col
}

// Index3 returns the linear index of (row, col, z).
func (t *Tensor) Index3(row, col, z int) int {
	return (z*t.rows+row)*t.cols + col
}

// Index4 returns the linear index of (row, col, z, f).
func (t *Tensor) Index4(row, col, z, f int) int {
	return ((f*t.depth+z)*t.rows+row)*t.cols + col
}

// Get2 returns the element at (row, col).
func (t *Tensor) Get2(row, col int) float64 { return t.values[row*t.cols+col] }

// Set2 sets the element at (row, col).
func (t *Tensor) Set2(row, col int, v float64) { t.values[row*t.cols+col] = v }

// Add2 adds v to the element at (row, col).
func (t *Tensor) Add2(row, col int, v float64) { t.values[row*t.cols+col] += v }

// Get3 returns the element at (row, col, z).
func (t *Tensor) Get3(row, col, z int) float64 { return t.values[t.Index3(row, col, z)] }

// Set3 sets the element at (row, col, z).
func (t *Tensor) Set3(row, col, z int, v float64) { t.values[t.Index3(row, col, z)] = v }

// Add3 adds v to the element at (row, col, z).
func (t *Tensor) Add3(row, col, z int, v float64) { t.values[t.Index3(row, col, z)] += v }

// Get4 returns the element at (row, col, z, f).
func (t *Tensor) Get4(row, col, z, f int) float64 { return t.values[t.Index4(row, col, z, f)] }

// Set4 sets the element at (row, col, z, f).
func (t *Tensor) Set4(row, col, z, f int, v float64) { t.values[t.Index4(row, col, z, f)] = v }

// Add4 adds v to the element at (row, col, z, f).
func (t *Tensor) Add4(row, col, z, f int, v float64) { t.values[t.Index4(row, col, z, f)] += v }

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.values {
		t.values[i] = v
	}
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	clear(t.values)
}

// Add adds o element-wise into t.
func (t *Tensor) Add(o *Tensor) {
	floats.Add(t.values, o.values)
}

// Sub subtracts o element-wise from t.
func (t *Tensor) Sub(o *Tensor) {
	floats.Sub(t.values, o.values)
}

// Multiply multiplies t element-wise by o.
func (t *Tensor) Multiply(o *Tensor) {
	floats.Mul(t.values, o.values)
}

// Div divides t element-wise by o.
func (t *Tensor) Div(o *Tensor) {
	floats.Div(t.values, o.values)
}

// AddScalar adds v to every element.
func (t *Tensor) AddScalar(v float64) {
	floats.AddConst(v, t.values)
}

// Scale multiplies every element by v.
func (t *Tensor) Scale(v float64) {
	floats.Scale(v, t.values)
}

// DivScalar divides every element by v.
func (t *Tensor) DivScalar(v float64) {
	for i := range t.values {
		t.values[i] /= v
	}
}

// Randomize fills t with successive values of next, typically a seeded
// generator's draw.
func (t *Tensor) Randomize(next func() float64) {
	for i := range t.values {
		t.values[i] = next()
	}
}

// CopyFrom copies the values of src into t. Shapes must have the same length.
func (t *Tensor) CopyFrom(src *Tensor) {
	copy(t.values, src.values)
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	c := newTensor(t.rows, t.cols, t.depth, t.fourth, t.rank)
	copy(c.values, t.values)
	return c
}

// Copy copies src into dst.
func Copy(src, dst *Tensor) {
	copy(dst.values, src.values)
}

// Subtract stores t1 - t2 into t1.
func Subtract(t1, t2 *Tensor) {
	floats.Sub(t1.values, t2.values)
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.values)
}

// SumAbs returns the L1 norm.
func (t *Tensor) SumAbs() float64 {
	return floats.Norm(t.values, 1)
}

// SumSqr returns the sum of squared elements.
func (t *Tensor) SumSqr() float64 {
	return floats.Dot(t.values, t.values)
}

// Max returns the largest element.
func (t *Tensor) Max() float64 {
	return floats.Max(t.values)
}

// IsFinite reports whether no element is NaN or infinite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Equals reports whether o has the same shape and all values within delta.
func (t *Tensor) Equals(o *Tensor, delta float64) bool {
	if !t.SameShape(o) {
		return false
	}
	return floats.EqualApprox(t.values, o.values, delta)
}

// Matrix returns a gonum view over a rank 1 or 2 tensor sharing its buffer.
func (t *Tensor) Matrix() *mat.Dense {
	if t.rank > 2 {
		panic(fmt.Sprintf("tensor: Matrix on rank %d tensor", t.rank))
	}
	return mat.NewDense(t.rows, t.cols, t.values)
}

// Vector returns a gonum vector view over the whole buffer.
func (t *Tensor) Vector() *mat.VecDense {
	return mat.NewVecDense(len(t.values), t.values)
}

func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v{", t.Shape())
	for i, v := range t.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteString("}")
	return sb.String()
}
