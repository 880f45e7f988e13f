package meshopt

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Mesh is a simplex mesh: triangles when Dim is 2, tetrahedra when Dim is 3.
type Mesh struct {
	Dim      int
	Nodes    [][]float64 // [node][dim]
	Elements [][]int     // [element][Dim+1] node indices
}

// Validate checks dimensions and connectivity.
func (m *Mesh) Validate() error {
	if m.Dim != 2 && m.Dim != 3 {
		return fmt.Errorf("mesh dimension %d: %w", m.Dim, ErrInvalidMesh)
	}
	for n, x := range m.Nodes {
		if len(x) != m.Dim {
			return fmt.Errorf("node %d has %d coordinates in a %dD mesh: %w", n, len(x), m.Dim, ErrInvalidMesh)
		}
	}
	for e, el := range m.Elements {
		if len(el) != m.Dim+1 {
			return fmt.Errorf("element %d has %d nodes, want %d: %w", e, len(el), m.Dim+1, ErrInvalidMesh)
		}
		for _, n := range el {
			if n < 0 || n >= len(m.Nodes) {
				return fmt.Errorf("element %d references node %d of %d: %w", e, n, len(m.Nodes), ErrInvalidMesh)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{Dim: m.Dim, Nodes: make([][]float64, len(m.Nodes)), Elements: make([][]int, len(m.Elements))}
	for i, x := range m.Nodes {
		c.Nodes[i] = slices.Clone(x)
	}
	for i, el := range m.Elements {
		c.Elements[i] = slices.Clone(el)
	}
	return c
}

// BoundaryNodes marks every node lying on a boundary facet, a facet (edge in
// 2D, triangle in 3D) used by exactly one element. Nodes referenced by no
// element are marked as well so they are never moved.
func (m *Mesh) BoundaryNodes() []bool {
	type facet [3]int
	count := make(map[facet]int)
	for _, el := range m.Elements {
		for skip := range el {
			f := facet{-1, -1, -1}
			k := 0
			for i, n := range el {
				if i != skip {
					f[k] = n
					k++
				}
			}
			slices.Sort(f[:k])
			count[f]++
		}
	}

	bdry := make([]bool, len(m.Nodes))
	used := make([]bool, len(m.Nodes))
	for _, el := range m.Elements {
		for _, n := range el {
			used[n] = true
		}
	}
	for f, c := range count {
		if c != 1 {
			continue
		}
		for _, n := range f[:m.Dim] {
			bdry[n] = true
		}
	}
	for n := range bdry {
		if !used[n] {
			bdry[n] = true
		}
	}
	return bdry
}

// edgeMatrix fills A with the edge vectors x_k - x_0 of element e as columns.
func edgeMatrix(A *mat.Dense, nodes [][]float64, el []int) {
	x0 := nodes[el[0]]
	for k := 1; k < len(el); k++ {
		xk := nodes[el[k]]
		for i := range x0 {
			A.Set(i, k-1, xk[i]-x0[i])
		}
	}
}

// Volumes returns the signed measure of every element; a non-positive value
// marks an inverted or degenerate element.
func (m *Mesh) Volumes() []float64 {
	vols := make([]float64, len(m.Elements))
	A := mat.NewDense(m.Dim, m.Dim, nil)
	fact := 1.
	for d := 2; d <= m.Dim; d++ {
		fact *= float64(d)
	}
	for e, el := range m.Elements {
		edgeMatrix(A, m.Nodes, el)
		vols[e] = mat.Det(A) / fact
	}
	return vols
}
