package meshopt

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// ReadMeshFile loads the tetrahedra of a mesh file. Elements with other
// vertex counts are skipped.
func ReadMeshFile(path string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh %s: %w", path, err)
	}
	m := &Mesh{Dim: 3, Nodes: make([][]float64, len(msh.Vertices))}
	for i, v := range msh.Vertices {
		m.Nodes[i] = []float64{v[0], v[1], v[2]}
	}
	for _, el := range msh.EtoV {
		if len(el) != 4 {
			continue
		}
		m.Elements = append(m.Elements, append([]int(nil), el...))
	}
	if len(m.Elements) == 0 {
		return nil, fmt.Errorf("mesh file %s does not have any tets: %w", path, ErrInvalidMesh)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("mesh file %s: %w", path, err)
	}
	return m, nil
}
