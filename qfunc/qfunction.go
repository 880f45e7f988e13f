package qfunc

import (
	"fmt"
)

type block struct {
	kernel       BlockFunc
	ncomp        int
	weightOffset int // first weight component inside the packed buffer
	weightComps  int
}

// QFunction is a built kernel variant. It is immutable and safe for
// concurrent use on disjoint buffers.
type QFunction struct {
	name        string
	variant     Variant
	blocks      []block
	weightComps int
}

// Build resolves the block kernels and weight layout of a variant.
func Build(v Variant) (*QFunction, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("variant has no field blocks: %w", ErrUnsupportedShape)
	}
	qf := &QFunction{
		name:    v.Name(),
		variant: append(Variant(nil), v...),
		blocks:  make([]block, len(v)),
	}
	offs := v.WeightOffsets()
	for b, fs := range v {
		k, err := fs.kernel()
		if err != nil {
			return nil, fmt.Errorf("block %d of %s: %w", b, qf.name, err)
		}
		qf.blocks[b] = block{
			kernel:       k,
			ncomp:        fs.NComp,
			weightOffset: offs[b],
			weightComps:  fs.WeightComps(),
		}
	}
	qf.weightComps = v.WeightComps()
	return qf, nil
}

// MustBuild is Build for variants known to be valid; it panics otherwise.
func MustBuild(v Variant) *QFunction {
	qf, err := Build(v)
	if err != nil {
		panic(err)
	}
	return qf
}

func (qf *QFunction) Name() string { return qf.name }

// Variant returns a copy of the block list the function was built from.
func (qf *QFunction) Variant() Variant { return append(Variant(nil), qf.variant...) }

// NumInputs is the number of input handles: the packed weights plus one per
// field.
func (qf *QFunction) NumInputs() int { return 1 + len(qf.blocks) }

// NumOutputs is the number of output handles, one per field.
func (qf *QFunction) NumOutputs() int { return len(qf.blocks) }

// WeightComps is the number of packed weight values per point.
func (qf *QFunction) WeightComps() int { return qf.weightComps }

// InputLen returns the length buffer in[k] must have for Q points.
func (qf *QFunction) InputLen(Q, k int) int {
	if k == 0 {
		return Q * qf.weightComps
	}
	return Q * qf.blocks[k-1].ncomp
}

// OutputLen returns the length buffer out[k] must have for Q points.
func (qf *QFunction) OutputLen(Q, k int) int {
	return Q * qf.blocks[k].ncomp
}

// Check validates buffer counts and sizes for a call over Q points. Callers
// run it once when they size their buffers, not on every Apply.
func (qf *QFunction) Check(Q int, in, out [][]float64) error {
	if err := qf.checkCount(in, out); err != nil {
		return err
	}
	if Q < 0 {
		return fmt.Errorf("%s: negative point count %d", qf.name, Q)
	}
	for k, buf := range in {
		if need := qf.InputLen(Q, k); len(buf) < need {
			return fmt.Errorf("%s: input %d has %d values, needs %d: %w",
				qf.name, k, len(buf), need, ErrBufferSize)
		}
	}
	for k, buf := range out {
		if need := qf.OutputLen(Q, k); len(buf) < need {
			return fmt.Errorf("%s: output %d has %d values, needs %d: %w",
				qf.name, k, len(buf), need, ErrBufferSize)
		}
	}
	return nil
}

func (qf *QFunction) checkCount(in, out [][]float64) error {
	if len(in) != qf.NumInputs() || len(out) != qf.NumOutputs() {
		return fmt.Errorf("%s: got %d inputs and %d outputs, want %d and %d: %w",
			qf.name, len(in), len(out), qf.NumInputs(), qf.NumOutputs(), ErrBufferCount)
	}
	return nil
}

// Apply evaluates every block at the Q points. in[0] holds the packed
// weights, in[1:] the fields in variant order, out the matching outputs,
// which are overwritten. Buffer sizes are the caller's contract.
func (qf *QFunction) Apply(Q int, in, out [][]float64) error {
	if err := qf.checkCount(in, out); err != nil {
		return err
	}
	if debugChecks {
		if err := qf.Check(Q, in, out); err != nil {
			return err
		}
	}
	qf.run(Q, in, out)
	return nil
}

func (qf *QFunction) run(Q int, in, out [][]float64) {
	qd := in[0]
	chunk := ChunkSize()
	for lo := 0; lo < Q; lo += chunk {
		hi := min(lo+chunk, Q)
		for b := range qf.blocks {
			bl := &qf.blocks[b]
			bl.kernel(Q, lo, hi, qd[Q*bl.weightOffset:], in[b+1], out[b])
		}
	}
}

// Block binds typed views to one field block for ApplyBlocks.
type Block struct {
	Spec    FieldSpec
	W, U, V Field
}

// ApplyBlocks checks the views of each block against its FieldSpec and then
// evaluates all blocks in one pass over the shared points. Unlike
// QFunction.Apply the weights of each block live in their own buffer.
func ApplyBlocks(blocks ...Block) error {
	if len(blocks) == 0 {
		return nil
	}
	Q := blocks[0].U.Q
	kernels := make([]BlockFunc, len(blocks))
	for b, bl := range blocks {
		k, err := bl.Spec.kernel()
		if err != nil {
			return fmt.Errorf("block %d: %w", b, err)
		}
		kernels[b] = k
		for _, f := range []struct {
			name  string
			view  Field
			ncomp int
		}{
			{"weight", bl.W, bl.Spec.WeightComps()},
			{"input", bl.U, bl.Spec.NComp},
			{"output", bl.V, bl.Spec.NComp},
		} {
			if f.view.Q != Q || f.view.NComp != f.ncomp {
				return fmt.Errorf("block %d %s is %dx%d, want Q=%d with %d components: %w",
					b, f.name, f.view.Q, f.view.NComp, Q, f.ncomp, ErrBufferSize)
			}
			if err := f.view.Check(); err != nil {
				return fmt.Errorf("block %d %s: %w", b, f.name, err)
			}
		}
	}
	chunk := ChunkSize()
	for lo := 0; lo < Q; lo += chunk {
		hi := min(lo+chunk, Q)
		for b, bl := range blocks {
			kernels[b](Q, lo, hi, bl.W.Data, bl.U.Data, bl.V.Data)
		}
	}
	return nil
}
