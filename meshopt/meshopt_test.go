package meshopt

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// gridMesh triangulates [0,1]² with n×n cells, two triangles per cell.
func gridMesh(n int) *Mesh {
	m := &Mesh{Dim: 2}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.Nodes = append(m.Nodes, []float64{float64(i) / float64(n), float64(j) / float64(n)})
		}
	}
	id := func(i, j int) int { return i + (n+1)*j }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			m.Elements = append(m.Elements,
				[]int{id(i, j), id(i+1, j), id(i+1, j+1)},
				[]int{id(i, j), id(i+1, j+1), id(i, j+1)},
			)
		}
	}
	return m
}

// cubeMesh splits the unit cube into 12 tets around its centre, node 8.
func cubeMesh() *Mesh {
	m := &Mesh{Dim: 3}
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				m.Nodes = append(m.Nodes, []float64{float64(i), float64(j), float64(k)})
			}
		}
	}
	m.Nodes = append(m.Nodes, []float64{0.5, 0.5, 0.5})
	faces := [][4]int{
		{0, 2, 3, 1}, {4, 5, 7, 6}, // z=0, z=1
		{0, 1, 5, 4}, {2, 6, 7, 3}, // y=0, y=1
		{0, 4, 6, 2}, {1, 3, 7, 5}, // x=0, x=1
	}
	for _, f := range faces {
		m.Elements = append(m.Elements, []int{f[0], f[1], f[2], 8}, []int{f[0], f[2], f[3], 8})
	}
	// Orient every tet positively.
	for e, v := range m.Volumes() {
		if v < 0 {
			el := m.Elements[e]
			el[0], el[1] = el[1], el[0]
		}
	}
	return m
}

// ============================================================================
// Section 1: Metrics and targets
// ============================================================================

func TestMetrics_ZeroAtIdentity(t *testing.T) {
	for _, tc := range []struct {
		id, dim, resolved int
	}{
		{2, 2, 2}, {302, 2, 2}, {7, 2, 7}, {77, 2, 77}, {80, 2, 80},
		{2, 3, 302}, {307, 3, 302}, {377, 3, 302}, {380, 3, 302},
		{303, 3, 303}, {301, 3, 301},
	} {
		metric, err := NewMetric(tc.id, tc.dim)
		require.NoError(t, err)
		assert.Equal(t, tc.resolved, metric.ID, "metric %d in %dD", tc.id, tc.dim)

		I := mat.NewDiagDense(tc.dim, nil)
		for i := 0; i < tc.dim; i++ {
			I.SetDiag(i, 1)
		}
		T := mat.DenseCopyOf(I)
		assert.InDeltaf(t, 0, metric.Eval(T), 1e-14, "metric %d in %dD", tc.id, tc.dim)
	}
}

func TestMetrics_ShapeVersusSize(t *testing.T) {
	scaled := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	sheared := mat.NewDense(2, 2, []float64{1, 1, 0, 1})
	flipped := mat.NewDense(2, 2, []float64{-1, 0, 0, 1})

	shape, _ := NewMetric(2, 2)
	size, _ := NewMetric(77, 2)
	assert.InDelta(t, 0, shape.Eval(scaled), 1e-14)
	assert.Greater(t, size.Eval(scaled), 0.)
	assert.InDelta(t, 0.5, shape.Eval(sheared), 1e-14) // |T|²=3, τ=1
	assert.True(t, math.IsInf(shape.Eval(flipped), 1))
}

func TestInverse_Singular(t *testing.T) {
	_, ok := inverse(mat.NewDense(2, 2, []float64{1, 2, 2, 4}))
	assert.False(t, ok)

	Ti, ok := inverse(mat.NewDense(2, 2, []float64{2, 0, 0, 4}))
	require.True(t, ok)
	assert.InDelta(t, 0.25, Ti.At(1, 1), 1e-15)

	// Singular T scores +Inf rather than a value from a garbage inverse.
	shape, _ := NewMetric(2, 2)
	assert.True(t, math.IsInf(shape.Eval(mat.NewDense(2, 2, []float64{1, 2, 2, 4})), 1))
}

func TestMetrics_GradientMatchesDifferences(t *testing.T) {
	flipped := mat.NewDense(2, 2, []float64{-1, 0, 0, 1})
	T2 := mat.NewDense(2, 2, []float64{1.3, 0.4, -0.2, 0.9})
	T3 := mat.NewDense(3, 3, []float64{1.2, 0.3, -0.1, 0.2, 0.8, 0.25, -0.15, 0.1, 1.1})

	for _, tc := range []struct {
		id int
		T  *mat.Dense
	}{
		{2, T2}, {7, T2}, {77, T2}, {80, T2}, {301, T2}, {302, T2}, {303, T2},
		{301, T3}, {302, T3}, {303, T3},
	} {
		d, _ := tc.T.Dims()
		metric, err := NewMetric(tc.id, d)
		require.NoError(t, err)

		G := mat.NewDense(d, d, nil)
		require.True(t, metric.Grad(G, tc.T))
		want := fd.Gradient(nil, func(x []float64) float64 {
			return metric.Eval(mat.NewDense(d, d, x))
		}, mat.DenseCopyOf(tc.T).RawMatrix().Data, &fd.Settings{Formula: fd.Central, Step: 1e-6})
		assert.InDeltaSlicef(t, want, G.RawMatrix().Data, 1e-7, "metric %d in %dD", tc.id, d)

		if d == 2 {
			assert.False(t, metric.Grad(G, flipped), "metric %d", tc.id)
		}
	}
}

func TestNewMetric_Unknown(t *testing.T) {
	_, err := NewMetric(42, 2)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, UnknownMetric, cfgErr.Kind)
	assert.Equal(t, 42, cfgErr.Value)
}

func TestRegularSimplex(t *testing.T) {
	// All edges of the target simplex have unit length.
	for _, dim := range []int{2, 3} {
		W := regularSimplex(dim)
		cols := make([][]float64, dim)
		for c := range cols {
			cols[c] = mat.Col(nil, c, W)
			assert.InDelta(t, 1, floats.Norm(cols[c], 2), 1e-14)
		}
		for a := 0; a < dim; a++ {
			for b := a + 1; b < dim; b++ {
				assert.InDelta(t, 1, floats.Distance(cols[a], cols[b], 2), 1e-14)
			}
		}
	}
}

// ============================================================================
// Section 2: Mesh helpers
// ============================================================================

func TestBoundaryNodes(t *testing.T) {
	m := gridMesh(2)
	bdry := m.BoundaryNodes()
	for n, b := range bdry {
		assert.Equal(t, n != 4, b, "node %d", n)
	}

	c := cubeMesh()
	cb := c.BoundaryNodes()
	assert.False(t, cb[8])
	for n := 0; n < 8; n++ {
		assert.True(t, cb[n])
	}
	assert.InDelta(t, 1, floats.Sum(c.Volumes()), 1e-14)
}

func TestMesh_Validate(t *testing.T) {
	assert.NoError(t, gridMesh(1).Validate())

	bad := gridMesh(1)
	bad.Elements[0][2] = 99
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh)

	bad = gridMesh(1)
	bad.Dim = 4
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh)

	bad = gridMesh(1)
	bad.Nodes[0] = []float64{0}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh)
}

// ============================================================================
// Section 3: Options
// ============================================================================

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Options)
		kind ErrorKind
	}{
		{"metric", func(o *Options) { o.Metric = 5 }, UnknownMetric},
		{"target", func(o *Options) { o.Target = 3 }, UnknownTarget},
		{"tolerance", func(o *Options) { o.Tolerance = 0 }, InvalidTolerance},
		{"nan tolerance", func(o *Options) { o.Tolerance = math.NaN() }, InvalidTolerance},
		{"iterations", func(o *Options) { o.MaxIterations = 0 }, InvalidIterations},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.edit(&opts)
			var cfgErr *ConfigError
			require.ErrorAs(t, opts.Validate(2), &cfgErr)
			assert.Equal(t, tc.kind, cfgErr.Kind)
		})
	}
	assert.NoError(t, DefaultOptions().Validate(3))
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte("metric_id: 303\nmax_it: 25\n"))
	require.NoError(t, err)
	assert.Equal(t, 303, opts.Metric)
	assert.Equal(t, 25, opts.MaxIterations)
	assert.Equal(t, 1, opts.Target)
	assert.Equal(t, 1e-10, opts.Tolerance)

	_, err = ParseOptions([]byte("metric_id: [1"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "tmop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_id: 2\ntol: 1.0e-6\n"), 0o644))
	opts, err = LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, opts.Target)
	assert.Equal(t, 1e-6, opts.Tolerance)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// ============================================================================
// Section 4: Optimization
// ============================================================================

func TestTMOP_ImprovesPerturbedGrid(t *testing.T) {
	m := gridMesh(3)
	// Pull the four interior nodes off their grid positions.
	m.Nodes[5] = []float64{0.45, 0.25}
	m.Nodes[6] = []float64{0.60, 0.40}
	m.Nodes[9] = []float64{0.30, 0.55}
	m.Nodes[10] = []float64{0.70, 0.75}
	orig := m.Clone()

	opts := DefaultOptions()
	opts.Tolerance = 1e-8
	opts.MaxIterations = 200
	before, err := Quality(m, m, opts)
	require.NoError(t, err)

	out, err := TMOP{}.Optimize(context.Background(), m, opts)
	require.NoError(t, err)
	after, err := Quality(out, m, opts)
	require.NoError(t, err)
	assert.Less(t, after, before)

	// Input untouched, boundary fixed, nothing inverted.
	assert.Equal(t, orig, m)
	bdry := m.BoundaryNodes()
	for n := range m.Nodes {
		if bdry[n] {
			assert.Equal(t, m.Nodes[n], out.Nodes[n], "boundary node %d moved", n)
		}
	}
	for e, v := range out.Volumes() {
		assert.Greater(t, v, 0., "element %d inverted", e)
	}
}

func TestTMOP_Cube3D(t *testing.T) {
	m := cubeMesh()
	m.Nodes[8] = []float64{0.7, 0.35, 0.6}

	opts := DefaultOptions()
	opts.Metric = 302
	opts.Target = TargetIdealShapeGivenSize
	before, err := Quality(m, m, opts)
	require.NoError(t, err)
	out, err := TMOP{}.Optimize(context.Background(), m, opts)
	require.NoError(t, err)
	after, err := Quality(out, m, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, after, before)
	for n := 0; n < 8; n++ {
		assert.Equal(t, m.Nodes[n], out.Nodes[n])
	}
}

func TestTMOP_Errors(t *testing.T) {
	ctx := context.Background()

	opts := DefaultOptions()
	opts.Metric = 999
	_, err := TMOP{}.Optimize(ctx, gridMesh(2), opts)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, UnknownMetric, cfgErr.Kind)

	// Inverted input
	m := gridMesh(2)
	m.Nodes[4] = []float64{1.5, 1.5}
	_, err = TMOP{}.Optimize(ctx, m, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidMesh)

	// Only boundary nodes: nothing to move
	one := gridMesh(1)
	out, err := TMOP{}.Optimize(ctx, one, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, one, out)

	// Cancelled before the first iteration
	perturbed := gridMesh(2)
	perturbed.Nodes[4] = []float64{0.6, 0.4}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	out, err = TMOP{}.Optimize(cctx, perturbed, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, perturbed, out)
}

// perturbedGrid is gridMesh(3) with its four interior nodes displaced.
func perturbedGrid() *Mesh {
	m := gridMesh(3)
	m.Nodes[5] = []float64{0.45, 0.25}
	m.Nodes[6] = []float64{0.60, 0.40}
	m.Nodes[9] = []float64{0.30, 0.55}
	m.Nodes[10] = []float64{0.70, 0.75}
	return m
}

func TestObjective_GradientMatchesDifferences(t *testing.T) {
	cube := cubeMesh()
	cube.Nodes[8] = []float64{0.6, 0.45, 0.55}

	for _, tc := range []struct {
		mesh    *Mesh
		metrics []int
	}{
		{perturbedGrid(), []int{2, 7, 77, 80, 302, 303, 301}},
		{cube, []int{302, 303, 301}},
	} {
		for _, id := range tc.metrics {
			for _, target := range []int{TargetIdealShapeUnitSize, TargetIdealShapeGivenSize} {
				for _, limit := range []float64{0, 0.3} {
					metric, err := NewMetric(id, tc.mesh.Dim)
					require.NoError(t, err)
					tg, err := newTargets(tc.mesh, target)
					require.NoError(t, err)
					obj := newObjective(tc.mesh, metric, tg, limit)

					// Step off x0 so the limiting term has a gradient too.
					x := append([]float64(nil), obj.x0...)
					for i := range x {
						x[i] += 0.01 * float64(i%3-1)
					}
					got := make([]float64, len(x))
					obj.Grad(got, x)
					want := fd.Gradient(nil, obj.Func, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})
					assert.InDeltaSlicef(t, want, got, 1e-6,
						"metric %d target %d limit %g in %dD", id, target, limit, tc.mesh.Dim)
				}
			}
		}
	}
}

func TestQuality_MeasuredAgainstInitialMesh(t *testing.T) {
	ref := gridMesh(3)
	moved := ref.Clone()
	moved.Nodes[5] = []float64{0.45, 0.25}

	opts := DefaultOptions()
	opts.Metric = 77
	opts.Target = TargetIdealShapeGivenSize

	q, err := Quality(ref, ref, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0, q, 1e-12)

	// Every mesh matches targets sized from itself; only the reference
	// exposes the change in element size.
	q, err = Quality(moved, moved, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0, q, 1e-12)
	q, err = Quality(moved, ref, opts)
	require.NoError(t, err)
	assert.Greater(t, q, 1e-3)

	_, err = Quality(moved, gridMesh(2), opts)
	assert.ErrorIs(t, err, ErrInvalidMesh)
	flat := &Mesh{Dim: 3, Nodes: moved.Nodes, Elements: moved.Elements}
	_, err = Quality(moved, flat, opts)
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestTMOP_GivenSizeTargets(t *testing.T) {
	m := perturbedGrid()
	opts := DefaultOptions()
	opts.Metric = 80
	opts.Target = TargetIdealShapeGivenSize
	opts.MaxIterations = 200

	before, err := Quality(m, m, opts)
	require.NoError(t, err)
	require.Greater(t, before, 0.)
	out, err := TMOP{}.Optimize(context.Background(), m, opts)
	require.NoError(t, err)
	after, err := Quality(out, m, opts)
	require.NoError(t, err)
	assert.Less(t, after, before)
	for e, v := range out.Volumes() {
		assert.Greater(t, v, 0., "element %d inverted", e)
	}
}

func TestTMOP_ConvergedMeshNoError(t *testing.T) {
	// Size-only metric against targets sized from the input: the input is
	// already a minimizer.
	m := gridMesh(4)
	m.Nodes[6] = []float64{0.35, 0.33}

	opts := DefaultOptions()
	opts.Metric = 77
	opts.Target = TargetIdealShapeGivenSize
	out, err := TMOP{}.Optimize(context.Background(), m, opts)
	require.NoError(t, err)
	for n := range m.Nodes {
		assert.InDeltaSlice(t, m.Nodes[n], out.Nodes[n], 1e-12, "node %d", n)
	}
	q, err := Quality(out, m, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0, q, 1e-12)
}
