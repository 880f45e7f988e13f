package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGQ computes the N+1 point Gauss quadrature for the Jacobi weight
// (1-x)^alpha (1+x)^beta on [-1,1]. Nodes come back in ascending order.
func JacobiGQ(alpha, beta float64, N int) (X, W []float64) {
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2.)}, []float64{2.}
	}

	h1 := make([]float64, N+1)
	for i := range h1 {
		h1[i] = 2*float64(i) + alpha + beta
	}

	// Golub-Welsch: nodes are the eigenvalues of the symmetric tridiagonal
	// Jacobi matrix, weights the squared first eigenvector components.
	JJ := mat.NewSymDense(N+1, nil)
	fac := beta*beta - alpha*alpha
	for i := 0; i <= N; i++ {
		JJ.SetSym(i, i, fac/(h1[i]*(h1[i]+2.)))
	}
	if alpha+beta < 1e-15 {
		JJ.SetSym(0, 0, 0.)
	}
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		JJ.SetSym(i, i+1, 2.0/(val+2.0)*math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(val+1)/(val+3),
		))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	X = eig.Values(nil)

	var VVr mat.Dense
	eig.VectorsTo(&VVr)
	g0 := gamma0(alpha, beta)
	W = make([]float64, N+1)
	for i := range W {
		v := VVr.At(0, i)
		W[i] = v * v * g0
	}
	return X, W
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	return math.Gamma(alpha+1.) * math.Gamma(beta+1.) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

// GaussLegendre returns the n-point Gauss-Legendre rule on [-1,1], exact for
// polynomials of degree 2n-1.
func GaussLegendre(n int) (x, w []float64, err error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("gauss-legendre rule needs at least one point, got %d", n)
	}
	x, w = JacobiGQ(0, 0, n-1)
	return x, w, nil
}

// Rule is a quadrature rule on a reference element. Coordinates of unused
// dimensions are nil.
type Rule struct {
	Dim     Dimensionality
	R, S, T []float64
	W       []float64
}

// NumPoints is Q, the number of quadrature points.
func (r *Rule) NumPoints() int { return len(r.W) }

// TensorRule builds the tensor-product Gauss-Legendre rule with n points per
// direction. Points are ordered with r fastest, then s, then t.
func TensorRule(dim Dimensionality, n int) (*Rule, error) {
	x, w, err := GaussLegendre(n)
	if err != nil {
		return nil, err
	}
	switch dim {
	case D1:
		return &Rule{Dim: D1, R: x, W: w}, nil
	case D2:
		rule := &Rule{Dim: D2, R: make([]float64, 0, n*n), S: make([]float64, 0, n*n), W: make([]float64, 0, n*n)}
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				rule.R = append(rule.R, x[i])
				rule.S = append(rule.S, x[j])
				rule.W = append(rule.W, w[i]*w[j])
			}
		}
		return rule, nil
	case D3:
		nq := n * n * n
		rule := &Rule{Dim: D3, R: make([]float64, 0, nq), S: make([]float64, 0, nq),
			T: make([]float64, 0, nq), W: make([]float64, 0, nq)}
		for k := 0; k < n; k++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					rule.R = append(rule.R, x[i])
					rule.S = append(rule.S, x[j])
					rule.T = append(rule.T, x[k])
					rule.W = append(rule.W, w[i]*w[j]*w[k])
				}
			}
		}
		return rule, nil
	}
	return nil, fmt.Errorf("no tensor rule for dimension %d", dim)
}
