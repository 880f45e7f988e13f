package meshopt

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Metric measures the quality of the Jacobian T = A·W⁻¹ of an element
// relative to its target. It is zero for T matching the target and +Inf for
// inverted elements.
type Metric struct {
	ID   int // resolved metric number, e.g. 2 or 302
	eval func(T, Ti *mat.Dense, tau float64, d int) float64
	grad func(dst, T, Ti *mat.Dense, tau float64, d int)
}

// prepare returns det T, T⁻¹ and whether μ is finite at T.
func prepare(T *mat.Dense) (tau float64, Ti *mat.Dense, ok bool) {
	tau = mat.Det(T)
	if tau <= 0 || math.IsNaN(tau) {
		return tau, nil, false
	}
	Ti, ok = inverse(T)
	return tau, Ti, ok
}

// Eval returns μ(T).
func (m Metric) Eval(T *mat.Dense) float64 {
	d, _ := T.Dims()
	tau, Ti, ok := prepare(T)
	if !ok {
		return math.Inf(1)
	}
	return m.eval(T, Ti, tau, d)
}

// Grad stores ∂μ/∂T in dst. It reports false, leaving dst untouched, where μ
// is +Inf.
func (m Metric) Grad(dst, T *mat.Dense) bool {
	d, _ := T.Dims()
	tau, Ti, ok := prepare(T)
	if !ok {
		return false
	}
	m.grad(dst, T, Ti, tau, d)
	return true
}

func frob2(T mat.Matrix) float64 {
	n := mat.Norm(T, 2)
	return n * n
}

// inverse returns T⁻¹, or false when T is singular to working precision.
// Ill-conditioned but invertible T is accepted.
func inverse(T *mat.Dense) (*mat.Dense, bool) {
	var inv mat.Dense
	if err := inv.Inverse(T); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, false
		}
	}
	return &inv, true
}

// μ2 = |T|²/(2τ) − 1, shape.
func mu2(T, _ *mat.Dense, tau float64, _ int) float64 {
	return frob2(T)/(2*tau) - 1
}

// ∂μ2 = T/τ − |T|²/(2τ) T⁻ᵗ
func mu2Grad(dst, T, Ti *mat.Dense, tau float64, _ int) {
	var s mat.Dense
	s.Scale(-frob2(T)/(2*tau), Ti.T())
	dst.Scale(1/tau, T)
	dst.Add(dst, &s)
}

// μ7 = |T − T⁻ᵗ|², shape and size.
func mu7(T, Ti *mat.Dense, _ float64, _ int) float64 {
	var diff mat.Dense
	diff.Sub(T, Ti.T())
	return frob2(&diff)
}

// ∂μ7 = 2X + 2 T⁻ᵗ Xᵗ T⁻ᵗ with X = T − T⁻ᵗ
func mu7Grad(dst, T, Ti *mat.Dense, _ float64, _ int) {
	var X, P mat.Dense
	X.Sub(T, Ti.T())
	P.Product(Ti.T(), X.T(), Ti.T())
	dst.Add(&X, &P)
	dst.Scale(2, dst)
}

// μ77 = ½(τ − 1/τ)², size.
func mu77(_, _ *mat.Dense, tau float64, _ int) float64 {
	s := tau - 1/tau
	return 0.5 * s * s
}

// ∂μ77 = (τ² − 1/τ²) T⁻ᵗ
func mu77Grad(dst, _, Ti *mat.Dense, tau float64, _ int) {
	dst.Scale(tau*tau-1/(tau*tau), Ti.T())
}

// μ80 = γ μ2 + (1−γ) μ77.
func mu80(gamma float64) (func(T, Ti *mat.Dense, tau float64, d int) float64, func(dst, T, Ti *mat.Dense, tau float64, d int)) {
	eval := func(T, Ti *mat.Dense, tau float64, d int) float64 {
		return gamma*mu2(T, Ti, tau, d) + (1-gamma)*mu77(T, Ti, tau, d)
	}
	grad := func(dst, T, Ti *mat.Dense, tau float64, d int) {
		var size mat.Dense
		mu77Grad(&size, T, Ti, tau, d)
		mu2Grad(dst, T, Ti, tau, d)
		dst.Scale(gamma, dst)
		size.Scale(1-gamma, &size)
		dst.Add(dst, &size)
	}
	return eval, grad
}

// condGrad stores ∂(|T|²|T⁻¹|²) = 2|T⁻¹|² T − 2|T|² T⁻ᵗ T⁻¹ T⁻ᵗ in dst.
func condGrad(dst, T, Ti *mat.Dense) {
	var P, s mat.Dense
	P.Product(Ti.T(), Ti, Ti.T())
	s.Scale(2*frob2(Ti), T)
	dst.Scale(-2*frob2(T), &P)
	dst.Add(dst, &s)
}

// μ301 = |T||T⁻¹|/d − 1, shape.
func mu301(T, Ti *mat.Dense, _ float64, d int) float64 {
	return math.Sqrt(frob2(T)*frob2(Ti))/float64(d) - 1
}

func mu301Grad(dst, T, Ti *mat.Dense, _ float64, d int) {
	condGrad(dst, T, Ti)
	dst.Scale(1/(2*math.Sqrt(frob2(T)*frob2(Ti))*float64(d)), dst)
}

// μ302 = |T|²|T⁻¹|²/d² − 1, shape.
func mu302(T, Ti *mat.Dense, _ float64, d int) float64 {
	return frob2(T)*frob2(Ti)/float64(d*d) - 1
}

func mu302Grad(dst, T, Ti *mat.Dense, _ float64, d int) {
	condGrad(dst, T, Ti)
	dst.Scale(1/float64(d*d), dst)
}

// μ303 = |T|²/(d τ^(2/d)) − 1, shape.
func mu303(T, _ *mat.Dense, tau float64, d int) float64 {
	return frob2(T)/(float64(d)*math.Pow(tau, 2/float64(d))) - 1
}

// ∂μ303 = 2T/(d τ^(2/d)) − 2|T|²/(d² τ^(2/d)) T⁻ᵗ
func mu303Grad(dst, T, Ti *mat.Dense, tau float64, d int) {
	fd := float64(d)
	s := math.Pow(tau, 2/fd)
	var b mat.Dense
	b.Scale(-2*frob2(T)/(fd*fd*s), Ti.T())
	dst.Scale(2/(fd*s), T)
	dst.Add(dst, &b)
}

// NewMetric resolves a metric selector for a mesh dimension. The 2D numbers
// and their 3xx aliases pick the 2D metric on 2D meshes; on 3D meshes 307,
// 377 and 380 have no 3D form and fall back to 302.
func NewMetric(id, dim int) (Metric, error) {
	m302 := Metric{ID: 302, eval: mu302, grad: mu302Grad}
	switch id {
	case 2, 302:
		if dim == 2 {
			return Metric{ID: 2, eval: mu2, grad: mu2Grad}, nil
		}
		return m302, nil
	case 7, 307:
		if dim == 2 {
			return Metric{ID: 7, eval: mu7, grad: mu7Grad}, nil
		}
		return m302, nil
	case 77, 377:
		if dim == 2 {
			return Metric{ID: 77, eval: mu77, grad: mu77Grad}, nil
		}
		return m302, nil
	case 80, 380:
		if dim == 2 {
			eval, grad := mu80(0.5)
			return Metric{ID: 80, eval: eval, grad: grad}, nil
		}
		return m302, nil
	case 303:
		return Metric{ID: 303, eval: mu303, grad: mu303Grad}, nil
	case 301:
		return Metric{ID: 301, eval: mu301, grad: mu301Grad}, nil
	}
	return Metric{}, &ConfigError{Kind: UnknownMetric, Value: id}
}
