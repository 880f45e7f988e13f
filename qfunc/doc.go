// Package qfunc implements the per-quadrature-point kernel family used by
// matrix-free operator application.
//
// Every buffer handled here is component-major: for a quantity with C
// components sampled at Q points, component c of point i lives at
// i + Q*c. Weight tensors follow the same rule per entry, with entry (r,c)
// of a full d×d tensor stored as component r + d*c (column-major per point).
// Producers of weight data must use the same convention.
//
// Kernels are resolved once by Build for an ordered list of field blocks
// (a Variant) and are then applied with QFunction.Apply, which walks the
// points in chunks and evaluates every block on each chunk. No checking
// happens inside the point loop; shape checks belong to NewField and
// QFunction.Check, or to builds tagged qfdebug.
package qfunc
