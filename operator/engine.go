// Package operator runs a built quadrature kernel over every element of a
// mesh. Buffers are element-contiguous: element e's slice of a buffer with C
// values per point occupies [e*Q*C, (e+1)*Q*C).
package operator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/notargets/QFKernel/partitions"
	"github.com/notargets/QFKernel/qfunc"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Workers       int // concurrent partitions, 0 means GOMAXPROCS
	PartitionSize int // target elements per partition, 0 means balanced over Workers
	Strategy      partitions.PartitionStrategy
	Verbose       bool
}

// Engine applies one QFunction over many elements.
type Engine struct {
	qf  *qfunc.QFunction
	cfg Config
}

// NewEngine panics on a nil kernel.
func NewEngine(qf *qfunc.QFunction, cfg Config) *Engine {
	if qf == nil {
		panic("operator: nil QFunction")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{qf: qf, cfg: cfg}
}

func (e *Engine) QFunction() *qfunc.QFunction { return e.qf }

// strides returns the per-element length of every input and output buffer.
func (e *Engine) strides(Q int) (in, out []int) {
	in = make([]int, e.qf.NumInputs())
	for k := range in {
		in[k] = e.qf.InputLen(Q, k)
	}
	out = make([]int, e.qf.NumOutputs())
	for k := range out {
		out[k] = e.qf.OutputLen(Q, k)
	}
	return in, out
}

// NumElements infers the element count from the first field buffer and checks
// that every buffer holds exactly that many elements.
func (e *Engine) NumElements(Q int, in, out [][]float64) (int, error) {
	if len(in) != e.qf.NumInputs() || len(out) != e.qf.NumOutputs() {
		return 0, fmt.Errorf("operator %s: got %d inputs and %d outputs: %w",
			e.qf.Name(), len(in), len(out), qfunc.ErrBufferCount)
	}
	if Q <= 0 {
		return 0, fmt.Errorf("operator %s: need at least one point per element, got Q=%d", e.qf.Name(), Q)
	}
	inStride, outStride := e.strides(Q)
	K := len(in[1]) / inStride[1]
	check := func(kind string, k, n, stride int) error {
		if n != K*stride {
			return fmt.Errorf("operator %s: %s %d has %d values, want %d for %d elements: %w",
				e.qf.Name(), kind, k, n, K*stride, K, qfunc.ErrBufferSize)
		}
		return nil
	}
	for k, buf := range in {
		if err := check("input", k, len(buf), inStride[k]); err != nil {
			return 0, err
		}
	}
	for k, buf := range out {
		if err := check("output", k, len(buf), outStride[k]); err != nil {
			return 0, err
		}
	}
	return K, nil
}

// Apply evaluates the kernel on every element. Partitions run concurrently;
// cancellation is checked between elements. Layouts whose partitions are not
// contiguous runs stage the buffers partition-major and gather the outputs
// once every partition has succeeded.
func (e *Engine) Apply(ctx context.Context, Q int, in, out [][]float64) error {
	K, err := e.NumElements(Q, in, out)
	if err != nil {
		return err
	}
	if K == 0 {
		return nil
	}
	target := e.cfg.PartitionSize
	if target <= 0 {
		target = (K + e.cfg.Workers - 1) / e.cfg.Workers
	}
	layout, err := (&partitions.PartitionBuilder{
		NumElements:         K,
		TargetPartitionSize: target,
		Strategy:            e.cfg.Strategy,
	}).BuildPartitions()
	if err != nil {
		return fmt.Errorf("operator %s: %w", e.qf.Name(), err)
	}

	start := time.Now()
	inStride, outStride := e.strides(Q)
	inView := stage(layout, in, inStride)
	outView := stage(layout, out, outStride)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for pID := range layout.Partitions {
		part := &layout.Partitions[pID]
		g.Go(func() error {
			elemIn := make([][]float64, len(in))
			elemOut := make([][]float64, len(out))
			for local, elem := range part.Elements {
				if err := ctx.Err(); err != nil {
					return err
				}
				for k, v := range inView {
					elemIn[k] = v.element(pID, local, elem)
				}
				for k, v := range outView {
					elemOut[k] = v.element(pID, local, elem)
				}
				if err := e.qf.Apply(Q, elemIn, elemOut); err != nil {
					return fmt.Errorf("element %d: %w", elem, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("operator %s: %w", e.qf.Name(), err)
	}
	for k, v := range outView {
		if v.staged != nil {
			v.staged.Gather(layout, out[k])
		}
	}

	if e.cfg.Verbose {
		stats := layout.PartitionStatistics()
		fmt.Printf("%s: %d elements x %d points in %d %s partitions (imbalance %.2f), %v\n",
			e.qf.Name(), K, Q, layout.NumPartitions, e.cfg.Strategy, stats.Imbalance, time.Since(start))
	}
	return nil
}

// fieldView resolves an element's slice of one buffer, either in place or in
// a partition-major copy.
type fieldView struct {
	global []float64
	staged *partitions.PartitionedArray
	stride int
}

func (v fieldView) element(pID, local, elem int) []float64 {
	if v.staged == nil {
		return v.global[elem*v.stride : (elem+1)*v.stride]
	}
	data := v.staged.GetPartitionData(pID)
	return data[local*v.stride : (local+1)*v.stride]
}

// stage returns views over bufs. When some partition is not a contiguous run
// of elements, each buffer is scattered into partition-major storage so every
// worker walks its own contiguous block.
func stage(layout *partitions.PartitionLayout, bufs [][]float64, strides []int) []fieldView {
	contiguous := true
	for p := range layout.Partitions {
		contiguous = contiguous && layout.Partitions[p].Contiguous()
	}
	views := make([]fieldView, len(bufs))
	for k, buf := range bufs {
		views[k] = fieldView{global: buf, stride: strides[k]}
		if !contiguous {
			views[k].staged = partitions.AllocatePartitionedArray(layout, strides[k])
			views[k].staged.Scatter(layout, buf)
		}
	}
	return views
}
