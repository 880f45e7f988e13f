package qfunc

import "fmt"

// Offset returns the position of component c at point i in a
// component-major buffer holding Q points.
func Offset(Q, c, i int) int {
	return i + Q*c
}

// Field is a component-major view of one quantity sampled at Q quadrature
// points. It does not own Data; it only records how to read it.
type Field struct {
	Data  []float64
	Q     int
	NComp int
}

// NewField wraps data as a field of ncomp components over Q points.
func NewField(data []float64, Q, ncomp int) (Field, error) {
	f := Field{Data: data, Q: Q, NComp: ncomp}
	if err := f.Check(); err != nil {
		return Field{}, err
	}
	return f, nil
}

// AllocField returns a zeroed field of ncomp components over Q points.
func AllocField(Q, ncomp int) Field {
	return Field{Data: make([]float64, Q*ncomp), Q: Q, NComp: ncomp}
}

// Len is the number of values the field addresses, Q*NComp.
func (f Field) Len() int {
	return f.Q * f.NComp
}

// Check verifies that the view is well formed.
func (f Field) Check() error {
	if f.Q < 0 {
		return fmt.Errorf("field has negative point count %d", f.Q)
	}
	if f.NComp < 1 {
		return fmt.Errorf("field has %d components: %w", f.NComp, ErrUnsupportedShape)
	}
	if len(f.Data) < f.Len() {
		return fmt.Errorf("field needs %d values (Q=%d, NComp=%d), has %d: %w",
			f.Len(), f.Q, f.NComp, len(f.Data), ErrBufferSize)
	}
	return nil
}

// Comp returns the contiguous values of component c.
func (f Field) Comp(c int) []float64 {
	return f.Data[f.Q*c : f.Q*(c+1)]
}

// At returns component c at point i.
func (f Field) At(i, c int) float64 {
	return f.Data[Offset(f.Q, c, i)]
}

// Set stores v as component c at point i.
func (f Field) Set(i, c int, v float64) {
	f.Data[Offset(f.Q, c, i)] = v
}

// Point gathers all components of point i into dst, growing it if needed.
func (f Field) Point(i int, dst []float64) []float64 {
	if cap(dst) < f.NComp {
		dst = make([]float64, f.NComp)
	}
	dst = dst[:f.NComp]
	for c := range dst {
		dst[c] = f.Data[Offset(f.Q, c, i)]
	}
	return dst
}

// SetPoint scatters vals as the components of point i.
func (f Field) SetPoint(i int, vals []float64) {
	for c, v := range vals[:f.NComp] {
		f.Data[Offset(f.Q, c, i)] = v
	}
}
