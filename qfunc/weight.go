package qfunc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// WeightShape selects how the per-point weight of a field block is stored.
type WeightShape uint8

const (
	// Diagonal is one scalar per point, applied to every component.
	Diagonal WeightShape = iota + 1
	// Symmetric is the lower triangle of a d×d tensor per point.
	Symmetric
	// Full is a general d×d tensor per point, column-major.
	Full
)

func (s WeightShape) String() string {
	switch s {
	case Diagonal:
		return "diagonal"
	case Symmetric:
		return "symmetric"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("WeightShape(%d)", uint8(s))
	}
}

// suffix is the letter used for the shape in variant names.
func (s WeightShape) suffix() byte {
	switch s {
	case Diagonal:
		return 'd'
	case Symmetric:
		return 's'
	case Full:
		return 't'
	}
	return '?'
}

// NComp is the number of weight values per point for a field of dim
// components.
func (s WeightShape) NComp(dim int) int {
	switch s {
	case Diagonal:
		return 1
	case Symmetric:
		return dim * (dim + 1) / 2
	case Full:
		return dim * dim
	}
	return 0
}

// Symmetric tensors keep the lower triangle, column by column:
// 2D (0,0),(1,0),(1,1); 3D (0,0),(1,0),(2,0),(1,1),(2,1),(2,2).
var (
	sym2 = [2][2]int{{0, 1}, {1, 2}}
	sym3 = [3][3]int{{0, 1, 2}, {1, 3, 4}, {2, 4, 5}}
)

// TensorComp returns the weight component holding entry (r,c) of a dim×dim
// tensor stored with shape s.
func TensorComp(s WeightShape, dim, r, c int) int {
	switch s {
	case Full:
		return r + dim*c
	case Symmetric:
		if dim == 2 {
			return sym2[r][c]
		}
		return sym3[r][c]
	}
	return 0
}

// PackDiagonal wraps one weight per point as a diagonal weight field.
func PackDiagonal(w []float64) Field {
	return Field{Data: w, Q: len(w), NComp: 1}
}

// PackTensor stores one general dim×dim matrix per point, Q = len(ms).
func PackTensor(ms []mat.Matrix) (Field, error) {
	return packTensor(ms, Full)
}

// PackSymTensor stores the lower triangle of one symmetric matrix per point.
func PackSymTensor(ms []mat.Symmetric) (Field, error) {
	gen := make([]mat.Matrix, len(ms))
	for i, m := range ms {
		gen[i] = m
	}
	return packTensor(gen, Symmetric)
}

func packTensor(ms []mat.Matrix, s WeightShape) (Field, error) {
	Q := len(ms)
	if Q == 0 {
		return Field{NComp: s.NComp(3)}, nil
	}
	dim, cols := ms[0].Dims()
	if dim != cols || (dim != 2 && dim != 3) {
		return Field{}, fmt.Errorf("tensor weights must be 2x2 or 3x3, got %dx%d: %w",
			dim, cols, ErrUnsupportedShape)
	}
	f := AllocField(Q, s.NComp(dim))
	for i, m := range ms {
		r0, c0 := m.Dims()
		if r0 != dim || c0 != dim {
			return Field{}, fmt.Errorf("point %d: tensor is %dx%d, expected %dx%d: %w",
				i, r0, c0, dim, dim, ErrUnsupportedShape)
		}
		for c := 0; c < dim; c++ {
			for r := 0; r < dim; r++ {
				if s == Symmetric && r < c {
					continue
				}
				f.Set(i, TensorComp(s, dim, r, c), m.At(r, c))
			}
		}
	}
	return f, nil
}

// TensorAt unpacks the dim×dim tensor of point i from a weight field of
// shape s.
func TensorAt(w Field, s WeightShape, dim, i int) *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for r := 0; r < dim; r++ {
		for c := 0; c < dim; c++ {
			m.Set(r, c, w.At(i, TensorComp(s, dim, r, c)))
		}
	}
	return m
}

// ConcatWeights packs the weight fields of consecutive blocks into the single
// buffer QFunction.Apply expects as in[0]. All fields must share Q.
func ConcatWeights(ws ...Field) ([]float64, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	Q := ws[0].Q
	total := 0
	for b, w := range ws {
		if err := w.Check(); err != nil {
			return nil, fmt.Errorf("weight block %d: %w", b, err)
		}
		if w.Q != Q {
			return nil, fmt.Errorf("weight block %d has Q=%d, block 0 has Q=%d: %w",
				b, w.Q, Q, ErrBufferSize)
		}
		total += w.NComp
	}
	qd := make([]float64, Q*total)
	off := 0
	for _, w := range ws {
		off += copy(qd[off:], w.Data[:w.Len()])
	}
	return qd, nil
}
