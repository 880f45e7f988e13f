package qfunc

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// BlockFunc evaluates one field block over the points [lo, hi) of buffers
// holding q points. w is the block's weight buffer, u its input and v its
// output; all three are component-major with stride q.
type BlockFunc func(q, lo, hi int, w, u, v []float64)

// comp returns component c of a q-point buffer restricted to [lo, hi).
func comp(buf []float64, q, c, lo, hi int) []float64 {
	return buf[q*c+lo : q*c+hi]
}

// ScalarDiag computes v[i] = w[i]*u[i].
func ScalarDiag(q, lo, hi int, w, u, v []float64) {
	vecmath.MulBlock(v[lo:hi], w[lo:hi], u[lo:hi])
}

// VectorDiag returns the kernel scaling every one of ncomp components by the
// same per-point weight.
func VectorDiag(ncomp int) BlockFunc {
	return func(q, lo, hi int, w, u, v []float64) {
		wi := w[lo:hi]
		for c := 0; c < ncomp; c++ {
			vecmath.MulBlock(comp(v, q, c, lo, hi), wi, comp(u, q, c, lo, hi))
		}
	}
}

// Tensor3 computes v(i) = M(i)·u(i) for a general 3×3 M stored column-major
// per point: M[r][c] is weight component r + 3c.
func Tensor3(q, lo, hi int, w, u, v []float64) {
	n := hi - lo
	u0, u1, u2 := comp(u, q, 0, lo, hi), comp(u, q, 1, lo, hi), comp(u, q, 2, lo, hi)
	v0, v1, v2 := comp(v, q, 0, lo, hi), comp(v, q, 1, lo, hi), comp(v, q, 2, lo, hi)
	m00, m10, m20 := comp(w, q, 0, lo, hi), comp(w, q, 1, lo, hi), comp(w, q, 2, lo, hi)
	m01, m11, m21 := comp(w, q, 3, lo, hi), comp(w, q, 4, lo, hi), comp(w, q, 5, lo, hi)
	m02, m12, m22 := comp(w, q, 6, lo, hi), comp(w, q, 7, lo, hi), comp(w, q, 8, lo, hi)
	u0, u1, u2 = u0[:n], u1[:n], u2[:n]
	v0, v1, v2 = v0[:n], v1[:n], v2[:n]
	m00, m10, m20 = m00[:n], m10[:n], m20[:n]
	m01, m11, m21 = m01[:n], m11[:n], m21[:n]
	m02, m12, m22 = m02[:n], m12[:n], m22[:n]
	for i := 0; i < n; i++ {
		a, b, c := u0[i], u1[i], u2[i]
		v0[i] = m00[i]*a + m01[i]*b + m02[i]*c
		v1[i] = m10[i]*a + m11[i]*b + m12[i]*c
		v2[i] = m20[i]*a + m21[i]*b + m22[i]*c
	}
}

// Tensor2 is the 2×2 member of the Tensor3 family.
func Tensor2(q, lo, hi int, w, u, v []float64) {
	n := hi - lo
	u0, u1 := comp(u, q, 0, lo, hi), comp(u, q, 1, lo, hi)
	v0, v1 := comp(v, q, 0, lo, hi), comp(v, q, 1, lo, hi)
	m00, m10 := comp(w, q, 0, lo, hi), comp(w, q, 1, lo, hi)
	m01, m11 := comp(w, q, 2, lo, hi), comp(w, q, 3, lo, hi)
	u0, u1, v0, v1 = u0[:n], u1[:n], v0[:n], v1[:n]
	m00, m10, m01, m11 = m00[:n], m10[:n], m01[:n], m11[:n]
	for i := 0; i < n; i++ {
		a, b := u0[i], u1[i]
		v0[i] = m00[i]*a + m01[i]*b
		v1[i] = m10[i]*a + m11[i]*b
	}
}

// SymTensor3 applies a symmetric 3×3 weight stored as its lower triangle.
func SymTensor3(q, lo, hi int, w, u, v []float64) {
	n := hi - lo
	u0, u1, u2 := comp(u, q, 0, lo, hi), comp(u, q, 1, lo, hi), comp(u, q, 2, lo, hi)
	v0, v1, v2 := comp(v, q, 0, lo, hi), comp(v, q, 1, lo, hi), comp(v, q, 2, lo, hi)
	s00, s10, s20 := comp(w, q, 0, lo, hi), comp(w, q, 1, lo, hi), comp(w, q, 2, lo, hi)
	s11, s21, s22 := comp(w, q, 3, lo, hi), comp(w, q, 4, lo, hi), comp(w, q, 5, lo, hi)
	u0, u1, u2 = u0[:n], u1[:n], u2[:n]
	v0, v1, v2 = v0[:n], v1[:n], v2[:n]
	s00, s10, s20 = s00[:n], s10[:n], s20[:n]
	s11, s21, s22 = s11[:n], s21[:n], s22[:n]
	for i := 0; i < n; i++ {
		a, b, c := u0[i], u1[i], u2[i]
		v0[i] = s00[i]*a + s10[i]*b + s20[i]*c
		v1[i] = s10[i]*a + s11[i]*b + s21[i]*c
		v2[i] = s20[i]*a + s21[i]*b + s22[i]*c
	}
}

// SymTensor2 applies a symmetric 2×2 weight stored as (0,0),(1,0),(1,1).
func SymTensor2(q, lo, hi int, w, u, v []float64) {
	n := hi - lo
	u0, u1 := comp(u, q, 0, lo, hi), comp(u, q, 1, lo, hi)
	v0, v1 := comp(v, q, 0, lo, hi), comp(v, q, 1, lo, hi)
	s00, s10, s11 := comp(w, q, 0, lo, hi), comp(w, q, 1, lo, hi), comp(w, q, 2, lo, hi)
	u0, u1, v0, v1 = u0[:n], u1[:n], v0[:n], v1[:n]
	s00, s10, s11 = s00[:n], s10[:n], s11[:n]
	for i := 0; i < n; i++ {
		a, b := u0[i], u1[i]
		v0[i] = s00[i]*a + s10[i]*b
		v1[i] = s10[i]*a + s11[i]*b
	}
}

// ApplyScalar runs the scalar-term kernel over all q points.
func ApplyScalar(q int, w, u, v []float64) {
	ScalarDiag(q, 0, q, w, u, v)
}

// ApplyTensor3 runs the 3×3 contraction kernel over all q points.
func ApplyTensor3(q int, w, u, v []float64) {
	Tensor3(q, 0, q, w, u, v)
}
