package meshopt

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	TargetIdealShapeUnitSize  = 1
	TargetIdealShapeGivenSize = 2
)

// regularSimplex returns the edge matrix of the unit-edge equilateral
// triangle or regular tetrahedron.
func regularSimplex(dim int) *mat.Dense {
	if dim == 2 {
		return mat.NewDense(2, 2, []float64{
			1, 0.5,
			0, math.Sqrt(3) / 2,
		})
	}
	return mat.NewDense(3, 3, []float64{
		1, 0.5, 0.5,
		0, math.Sqrt(3) / 2, math.Sqrt(3) / 6,
		0, 0, math.Sqrt(2. / 3.),
	})
}

// targets holds W⁻¹ and the target measure det W for every element.
type targets struct {
	Winv []*mat.Dense
	detW []float64
}

// newTargets builds the target matrices for the initial mesh. Unit size uses
// the regular simplex everywhere; given size scales it per element to the
// element's initial measure.
func newTargets(m *Mesh, target int) (*targets, error) {
	if target != TargetIdealShapeUnitSize && target != TargetIdealShapeGivenSize {
		return nil, &ConfigError{Kind: UnknownTarget, Value: target}
	}
	W := regularSimplex(m.Dim)
	detW := mat.Det(W)
	var unitInv mat.Dense
	if err := unitInv.Inverse(W); err != nil {
		return nil, err
	}

	t := &targets{Winv: make([]*mat.Dense, len(m.Elements)), detW: make([]float64, len(m.Elements))}
	A := mat.NewDense(m.Dim, m.Dim, nil)
	for e, el := range m.Elements {
		if target == TargetIdealShapeUnitSize {
			t.Winv[e], t.detW[e] = &unitInv, detW
			continue
		}
		edgeMatrix(A, m.Nodes, el)
		detA := mat.Det(A)
		s := math.Pow(detA/detW, 1/float64(m.Dim))
		inv := mat.NewDense(m.Dim, m.Dim, nil)
		inv.Scale(1/s, &unitInv)
		t.Winv[e], t.detW[e] = inv, detA
	}
	return t, nil
}
