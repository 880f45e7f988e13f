package element

import "fmt"

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D1 Dimensionality = iota + 1 // 1D elements (lines)
	D2                           // 2D elements (quadrilaterals)
	D3                           // 3D elements (hexahedra)
)

type ElementGeometry uint8

const (
	Line ElementGeometry = iota
	Quad
	Hex
)

func (g ElementGeometry) String() string {
	switch g {
	case Line:
		return "Line"
	case Quad:
		return "Quad"
	case Hex:
		return "Hex"
	}
	return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
}

// Element is a mapped tensor-product element that can produce the
// per-quadrature-point weights consumed by the qfunc kernels.
type Element interface {
	GeometryType() ElementGeometry
	Dimensions() Dimensionality
	NumVertices() int

	// Factors evaluates the geometric factors of the element at every point
	// of the rule.
	Factors(rule *Rule) (*GeometricFactors, error)
}

// GeometricFactors holds the reference-to-physical map sampled at Q points.
// Jac is component-major over the dim×dim Jacobian ∂x/∂ξ, entry (r,c) at
// component r+dim*c.
type GeometricFactors struct {
	Dim  int
	Q    int
	Jac  []float64 // [dim*dim × Q]
	DetJ []float64 // [Q]
	W    []float64 // quadrature weights of the rule, [Q]
}

// Volume is the physical measure of the element, Σ w_q |J_q|.
func (gf *GeometricFactors) Volume() float64 {
	vol := 0.
	for q, w := range gf.W {
		vol += w * gf.DetJ[q]
	}
	return vol
}
