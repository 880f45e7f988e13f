package qfunc

import (
	"fmt"
	"strings"
)

// FieldSpec describes one field block of a kernel variant.
type FieldSpec struct {
	NComp  int
	Weight WeightShape
}

// Scalar is a one-component field with a diagonal weight.
func Scalar() FieldSpec {
	return FieldSpec{NComp: 1, Weight: Diagonal}
}

// Vector is a dim-component field with the given weight shape.
func Vector(dim int, w WeightShape) FieldSpec {
	return FieldSpec{NComp: dim, Weight: w}
}

// WeightComps is the number of weight values per point of the block.
func (fs FieldSpec) WeightComps() int {
	return fs.Weight.NComp(fs.NComp)
}

// defaultWeight is the weight shape implied by a bare component count in a
// variant name.
func defaultWeight(ncomp int) WeightShape {
	if ncomp == 1 {
		return Diagonal
	}
	return Full
}

// Validate reports whether the kernel family has a member for the block.
func (fs FieldSpec) Validate() error {
	_, err := fs.kernel()
	return err
}

func (fs FieldSpec) kernel() (BlockFunc, error) {
	switch {
	case fs.NComp == 1 && fs.Weight == Diagonal:
		return ScalarDiag, nil
	case (fs.NComp == 2 || fs.NComp == 3) && fs.Weight == Diagonal:
		return VectorDiag(fs.NComp), nil
	case fs.NComp == 2 && fs.Weight == Full:
		return Tensor2, nil
	case fs.NComp == 3 && fs.Weight == Full:
		return Tensor3, nil
	case fs.NComp == 2 && fs.Weight == Symmetric:
		return SymTensor2, nil
	case fs.NComp == 3 && fs.Weight == Symmetric:
		return SymTensor3, nil
	}
	return nil, fmt.Errorf("%d-component field with %v weight: %w",
		fs.NComp, fs.Weight, ErrUnsupportedShape)
}

// Variant is the ordered list of field blocks one kernel processes.
type Variant []FieldSpec

// Apply13 couples a scalar field with a diagonal weight and a 3-vector with
// a general 3×3 weight.
var Apply13 = Variant{Scalar(), Vector(3, Full)}

// Name returns the variant's kernel name, e.g. "apply_13". A block whose
// weight is not the default for its component count carries a shape letter:
// d diagonal, s symmetric, t full tensor.
func (v Variant) Name() string {
	var sb strings.Builder
	sb.WriteString("apply_")
	for _, fs := range v {
		sb.WriteByte(byte('0' + fs.NComp))
		if fs.Weight != defaultWeight(fs.NComp) {
			sb.WriteByte(fs.Weight.suffix())
		}
	}
	return sb.String()
}

// WeightComps is the number of packed weight values per point over all
// blocks.
func (v Variant) WeightComps() int {
	total := 0
	for _, fs := range v {
		total += fs.WeightComps()
	}
	return total
}

// WeightOffsets returns, per block, the first weight component of the block
// inside the packed weight buffer.
func (v Variant) WeightOffsets() []int {
	offs := make([]int, len(v))
	off := 0
	for b, fs := range v {
		offs[b] = off
		off += fs.WeightComps()
	}
	return offs
}

// ParseVariant is the inverse of Variant.Name.
func ParseVariant(name string) (Variant, error) {
	digits, ok := strings.CutPrefix(name, "apply_")
	if !ok || digits == "" {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownVariant)
	}
	var v Variant
	for i := 0; i < len(digits); i++ {
		ch := digits[i]
		if ch < '1' || ch > '3' {
			return nil, fmt.Errorf("%q: bad component count %q: %w", name, ch, ErrUnknownVariant)
		}
		fs := FieldSpec{NComp: int(ch - '0')}
		fs.Weight = defaultWeight(fs.NComp)
		if i+1 < len(digits) {
			switch digits[i+1] {
			case 'd':
				fs.Weight, i = Diagonal, i+1
			case 's':
				fs.Weight, i = Symmetric, i+1
			case 't':
				fs.Weight, i = Full, i+1
			}
		}
		if err := fs.Validate(); err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		v = append(v, fs)
	}
	return v, nil
}
