// Package meshopt moves interior mesh nodes to improve element quality with
// target-matrix optimization: every element's Jacobian relative to an ideal
// target is scored by a quality metric and the sum is minimized with L-BFGS
// while boundary nodes stay fixed. Energy and gradient are evaluated element
// by element in closed form, so one solver iteration costs O(elements).
package meshopt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimizer relocates mesh nodes. The input mesh is never modified.
type Optimizer interface {
	Optimize(ctx context.Context, m *Mesh, opts Options) (*Mesh, error)
}

// TMOP is the target-matrix optimizer.
type TMOP struct{}

var _ Optimizer = TMOP{}

// objective is the quality energy over the free node coordinates.
type objective struct {
	mesh    *Mesh
	metric  Metric
	targets *targets
	free    []int     // free node indices
	x0      []float64 // initial free coordinates, node-major
	limit   float64

	nodes    [][]float64 // scratch positions
	nodeGrad [][]float64 // scratch gradient per node
	A, T     *mat.Dense
	G, dA    *mat.Dense // ∂μ/∂T and ∂E/∂A of one element
}

func newObjective(m *Mesh, metric Metric, tg *targets, limit float64) *objective {
	bdry := m.BoundaryNodes()
	obj := &objective{
		mesh:     m,
		metric:   metric,
		targets:  tg,
		limit:    limit,
		nodes:    make([][]float64, len(m.Nodes)),
		nodeGrad: make([][]float64, len(m.Nodes)),
		A:        mat.NewDense(m.Dim, m.Dim, nil),
		T:        mat.NewDense(m.Dim, m.Dim, nil),
		G:        mat.NewDense(m.Dim, m.Dim, nil),
		dA:       mat.NewDense(m.Dim, m.Dim, nil),
	}
	for n, x := range m.Nodes {
		obj.nodes[n] = append([]float64(nil), x...)
		obj.nodeGrad[n] = make([]float64, m.Dim)
		if !bdry[n] {
			obj.free = append(obj.free, n)
			obj.x0 = append(obj.x0, x...)
		}
	}
	return obj
}

func (o *objective) scatter(x []float64) {
	d := o.mesh.Dim
	for k, n := range o.free {
		copy(o.nodes[n], x[k*d:(k+1)*d])
	}
}

// quality is Σ_e det(W_e) μ(A_e W_e⁻¹) at the current scratch positions.
func (o *objective) quality() float64 {
	total := 0.
	for e, el := range o.mesh.Elements {
		edgeMatrix(o.A, o.nodes, el)
		o.T.Mul(o.A, o.targets.Winv[e])
		mu := o.metric.Eval(o.T)
		if math.IsInf(mu, 1) {
			return mu
		}
		total += o.targets.detW[e] * mu
	}
	return total
}

// Func is the quality energy plus the limiting term.
func (o *objective) Func(x []float64) float64 {
	o.scatter(x)
	q := o.quality()
	if o.limit > 0 {
		dist := floats.Distance(x, o.x0, 2)
		q += 0.5 * o.limit * dist * dist
	}
	return q
}

// Grad is the gradient of Func. Per element ∂E/∂A = det(W) ∂μ/∂T W⁻ᵗ, and
// column k of ∂E/∂A acts on node k+1 with the opposite sum on node 0.
// Inverted elements contribute nothing; Func is +Inf there.
func (o *objective) Grad(grad, x []float64) {
	o.scatter(x)
	d := o.mesh.Dim
	for _, g := range o.nodeGrad {
		clear(g)
	}
	for e, el := range o.mesh.Elements {
		edgeMatrix(o.A, o.nodes, el)
		o.T.Mul(o.A, o.targets.Winv[e])
		if !o.metric.Grad(o.G, o.T) {
			continue
		}
		o.dA.Mul(o.G, o.targets.Winv[e].T())
		for k := 1; k <= d; k++ {
			for i := 0; i < d; i++ {
				v := o.targets.detW[e] * o.dA.At(i, k-1)
				o.nodeGrad[el[k]][i] += v
				o.nodeGrad[el[0]][i] -= v
			}
		}
	}
	for k, n := range o.free {
		copy(grad[k*d:(k+1)*d], o.nodeGrad[n])
	}
	if o.limit > 0 {
		for i := range grad {
			grad[i] += o.limit * (x[i] - o.x0[i])
		}
	}
}

// Quality returns the metric energy of m, without the limiting term. Targets
// are built from initial, the mesh handed to the optimizer, so the energy of
// a refined mesh is comparable with the energy of its input. initial must
// have the dimension and element count of m.
func Quality(m, initial *Mesh, opts Options) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if initial.Dim != m.Dim || len(initial.Elements) != len(m.Elements) {
		return 0, fmt.Errorf("reference mesh is %dD with %d elements, mesh is %dD with %d: %w",
			initial.Dim, len(initial.Elements), m.Dim, len(m.Elements), ErrInvalidMesh)
	}
	metric, err := NewMetric(opts.Metric, m.Dim)
	if err != nil {
		return 0, err
	}
	tg, err := newTargets(initial, opts.Target)
	if err != nil {
		return 0, err
	}
	return newObjective(m, metric, tg, 0).quality(), nil
}

// Optimize moves the interior nodes of m. On failure the returned mesh is an
// unchanged copy of m.
func (TMOP) Optimize(ctx context.Context, m *Mesh, opts Options) (*Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(m.Dim); err != nil {
		return nil, err
	}
	metric, _ := NewMetric(opts.Metric, m.Dim)
	for e, v := range m.Volumes() {
		if v <= 0 {
			return nil, fmt.Errorf("element %d is inverted (measure %g): %w", e, v, ErrInvalidMesh)
		}
	}
	tg, err := newTargets(m, opts.Target)
	if err != nil {
		return nil, err
	}
	obj := newObjective(m, metric, tg, opts.LimitWeight)

	if opts.Verbosity > 0 {
		fmt.Printf("\n=== Mesh Quality Optimization ===\n")
		fmt.Printf(" Metric ID: %d (resolved %d)\n", opts.Metric, metric.ID)
		fmt.Printf(" Target ID: %d\n", opts.Target)
		fmt.Printf(" Solver: LBFGS\n")
		fmt.Printf(" MaxIts: %d\n", opts.MaxIterations)
		fmt.Printf(" Tol: %.2e\n", opts.Tolerance)
		fmt.Printf(" DOFs: %d\n", len(obj.x0))
		fmt.Printf(" Fixed boundary nodes: %d\n\n", len(m.Nodes)-len(obj.free))
	}

	out := m.Clone()
	if len(obj.free) == 0 {
		return out, nil
	}

	f0 := obj.Func(obj.x0)
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: opts.Tolerance,
		MajorIterations:   opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Relative:   opts.Tolerance,
			Iterations: 10,
		},
	}
	method := &optimize.LBFGS{Linesearcher: &optimize.Backtracking{}}
	res, err := optimize.Minimize(problem, append([]float64(nil), obj.x0...), settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("mesh optimization: %w", ctxErr)
	}
	if res == nil || !(res.F < f0) {
		// A stalled line search at the starting point means it is already
		// optimal to working precision.
		if err != nil && !stalled(err) {
			return out, fmt.Errorf("mesh optimization: %w", err)
		}
		if opts.Verbosity > 0 {
			fmt.Printf("Mesh optimization: no improvement from energy %.6e\n\n", f0)
		}
		return out, nil
	}

	// A line search that stalls after progress is an acceptable stop.
	if err != nil && !stalled(err) {
		return m.Clone(), fmt.Errorf("mesh optimization: %w", err)
	}
	d := m.Dim
	for k, n := range obj.free {
		copy(out.Nodes[n], res.X[k*d:(k+1)*d])
	}
	if opts.Verbosity > 0 {
		fmt.Printf("Mesh optimization complete: %d iterations, energy %.6e -> %.6e (%v)\n\n",
			res.Stats.MajorIterations, f0, res.F, res.Status)
	}
	return out, nil
}

func stalled(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)
}
