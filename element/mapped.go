package element

import (
	"fmt"

	"github.com/notargets/QFKernel/qfunc"
	"gonum.org/v1/gonum/mat"
)

// Reference vertex signs, counter-clockwise on the bottom face then the top.
var (
	quadSigns = [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	hexSigns  = [8][3]float64{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
)

// Hex8 is a trilinear hexahedron given by its eight vertices.
type Hex8 struct {
	Vertices [8][3]float64
}

func (h *Hex8) GeometryType() ElementGeometry { return Hex }
func (h *Hex8) Dimensions() Dimensionality    { return D3 }
func (h *Hex8) NumVertices() int              { return 8 }

// Factors evaluates ∂x/∂ξ of the trilinear map at the rule points.
func (h *Hex8) Factors(rule *Rule) (*GeometricFactors, error) {
	if rule.Dim != D3 {
		return nil, fmt.Errorf("hex needs a 3D rule, got dimension %d", rule.Dim)
	}
	Q := rule.NumPoints()
	gf := &GeometricFactors{Dim: 3, Q: Q, Jac: make([]float64, 9*Q), DetJ: make([]float64, Q), W: rule.W}
	jac := gf.jacobian()
	for q := 0; q < Q; q++ {
		xi := [3]float64{rule.R[q], rule.S[q], rule.T[q]}
		var J [3][3]float64
		for a, sa := range hexSigns {
			// ∂N_a/∂ξ_j with N_a = Π (1 + s_a,k ξ_k) / 8
			for j := 0; j < 3; j++ {
				dN := sa[j] / 8
				for k := 0; k < 3; k++ {
					if k != j {
						dN *= 1 + sa[k]*xi[k]
					}
				}
				for i := 0; i < 3; i++ {
					J[i][j] += h.Vertices[a][i] * dN
				}
			}
		}
		for c := 0; c < 3; c++ {
			for r := 0; r < 3; r++ {
				jac.Set(q, qfunc.TensorComp(qfunc.Full, 3, r, c), J[r][c])
			}
		}
		gf.DetJ[q] = J[0][0]*(J[1][1]*J[2][2]-J[1][2]*J[2][1]) -
			J[0][1]*(J[1][0]*J[2][2]-J[1][2]*J[2][0]) +
			J[0][2]*(J[1][0]*J[2][1]-J[1][1]*J[2][0])
		if gf.DetJ[q] <= 0 {
			return nil, fmt.Errorf("hex is inverted at point %d (det J = %g)", q, gf.DetJ[q])
		}
	}
	return gf, nil
}

// Quad4 is a bilinear quadrilateral given by its four vertices.
type Quad4 struct {
	Vertices [4][2]float64
}

func (e *Quad4) GeometryType() ElementGeometry { return Quad }
func (e *Quad4) Dimensions() Dimensionality    { return D2 }
func (e *Quad4) NumVertices() int              { return 4 }

func (e *Quad4) Factors(rule *Rule) (*GeometricFactors, error) {
	if rule.Dim != D2 {
		return nil, fmt.Errorf("quad needs a 2D rule, got dimension %d", rule.Dim)
	}
	Q := rule.NumPoints()
	gf := &GeometricFactors{Dim: 2, Q: Q, Jac: make([]float64, 4*Q), DetJ: make([]float64, Q), W: rule.W}
	jac := gf.jacobian()
	for q := 0; q < Q; q++ {
		r, s := rule.R[q], rule.S[q]
		var J [2][2]float64
		for a, sa := range quadSigns {
			dNr := sa[0] * (1 + sa[1]*s) / 4
			dNs := sa[1] * (1 + sa[0]*r) / 4
			for i := 0; i < 2; i++ {
				J[i][0] += e.Vertices[a][i] * dNr
				J[i][1] += e.Vertices[a][i] * dNs
			}
		}
		for c := 0; c < 2; c++ {
			for r := 0; r < 2; r++ {
				jac.Set(q, qfunc.TensorComp(qfunc.Full, 2, r, c), J[r][c])
			}
		}
		gf.DetJ[q] = J[0][0]*J[1][1] - J[0][1]*J[1][0]
		if gf.DetJ[q] <= 0 {
			return nil, fmt.Errorf("quad is inverted at point %d (det J = %g)", q, gf.DetJ[q])
		}
	}
	return gf, nil
}

// jacobian views Jac as a full-tensor weight field.
func (gf *GeometricFactors) jacobian() qfunc.Field {
	return qfunc.Field{Data: gf.Jac, Q: gf.Q, NComp: qfunc.Full.NComp(gf.Dim)}
}

// JacobianAt returns ∂x/∂ξ at point q.
func (gf *GeometricFactors) JacobianAt(q int) *mat.Dense {
	return qfunc.TensorAt(gf.jacobian(), qfunc.Full, gf.Dim, q)
}

// MassWeights returns w_q |J_q|, the diagonal weight of a mass term.
func (gf *GeometricFactors) MassWeights() qfunc.Field {
	w := make([]float64, gf.Q)
	for q := range w {
		w[q] = gf.W[q] * gf.DetJ[q]
	}
	return qfunc.PackDiagonal(w)
}

// TensorWeights returns w_q |J_q| J_q⁻¹ K J_q⁻ᵀ, the full tensor weight that
// maps reference gradients to reference fluxes for a material tensor K. A nil
// K is the identity. K need not be symmetric.
func (gf *GeometricFactors) TensorWeights(K mat.Matrix) (qfunc.Field, error) {
	if K != nil {
		if r, c := K.Dims(); r != gf.Dim || c != gf.Dim {
			return qfunc.Field{}, fmt.Errorf("material tensor is %dx%d, element is %dD", r, c, gf.Dim)
		}
	}
	ms := make([]mat.Matrix, gf.Q)
	var Jinv, tmp mat.Dense
	for q := 0; q < gf.Q; q++ {
		if err := Jinv.Inverse(gf.JacobianAt(q)); err != nil {
			return qfunc.Field{}, fmt.Errorf("point %d: %w", q, err)
		}
		D := mat.NewDense(gf.Dim, gf.Dim, nil)
		if K != nil {
			tmp.Mul(&Jinv, K)
			D.Mul(&tmp, Jinv.T())
		} else {
			D.Mul(&Jinv, Jinv.T())
		}
		D.Scale(gf.W[q]*gf.DetJ[q], D)
		ms[q] = D
		tmp.Reset()
	}
	return qfunc.PackTensor(ms)
}

// Apply13Weights packs the mass and tensor weights of one element into the
// single weight buffer of the apply_13 kernel.
func (gf *GeometricFactors) Apply13Weights(K mat.Matrix) ([]float64, error) {
	if gf.Dim != 3 {
		return nil, fmt.Errorf("apply_13 weights need a 3D element, got %dD", gf.Dim)
	}
	tw, err := gf.TensorWeights(K)
	if err != nil {
		return nil, err
	}
	return qfunc.ConcatWeights(gf.MassWeights(), tw)
}
