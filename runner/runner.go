package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/QFKernel/partitions"
	"github.com/notargets/QFKernel/qfunc"
	"github.com/notargets/QFKernel/runner/builder"
	"github.com/notargets/gocca"
)

// deviceArray is one pooled device buffer and its partition offsets.
type deviceArray struct {
	global           *gocca.OCCAMemory
	offsets          *gocca.OCCAMemory
	hostOffsets      []int64
	valuesPerElement int
}

// qfunctionDef is a QFunction compiled for the device.
type qfunctionDef struct {
	qf      *qfunc.QFunction
	source  string
	inputs  []string
	outputs []string
}

// Runner compiles QFunctions to OCCA kernels and executes them over
// partitioned elements.
type Runner struct {
	*builder.Builder
	Device       *gocca.OCCADevice
	Kernels      map[string]*gocca.OCCAKernel
	PooledMemory map[string]*gocca.OCCAMemory
	arrays       map[string]*deviceArray
	definitions  map[string]*qfunctionDef
}

// NewRunner creates a new Runner instance
func NewRunner(device *gocca.OCCADevice, cfg builder.Config) (kr *Runner) {
	if device == nil {
		panic("Device cannot be nil")
	}
	bld := builder.NewBuilder(cfg)
	if bld.KpartMax > 1048576 { // 2^20 elements
		panic(fmt.Sprintf("KpartMax exceeds 2^20 (1048576), usually caused by unbalanced workloads.\n"+
			"Found KpartMax=%d. Please balance K values or increase partition count.\n"+
			"Current K values: %v", bld.KpartMax, bld.K))
	}

	kr = &Runner{
		Builder:      bld,
		Device:       device,
		Kernels:      make(map[string]*gocca.OCCAKernel),
		PooledMemory: make(map[string]*gocca.OCCAMemory),
		arrays:       make(map[string]*deviceArray),
		definitions:  make(map[string]*qfunctionDef),
	}
	kr.PooledMemory["K"] = kr.mallocInts(bld.K)
	return
}

// ConfigFromLayout builds a runner configuration from a block partition
// layout. Partitions must hold consecutive elements in order.
func ConfigFromLayout(layout *partitions.PartitionLayout, Q int, floatType builder.DataType) (builder.Config, error) {
	next := 0
	for _, p := range layout.Partitions {
		if !p.Contiguous() || (p.NumElements > 0 && p.Elements[0] != next) {
			return builder.Config{}, fmt.Errorf("partition %d is not a consecutive element block", p.ID)
		}
		next += p.NumElements
	}
	return builder.Config{K: layout.K(), Q: Q, FloatType: floatType}, nil
}

func (kr *Runner) mallocInts(vals []int) *gocca.OCCAMemory {
	if kr.IntType == builder.INT32 {
		v32 := make([]int32, len(vals))
		for i, v := range vals {
			v32[i] = int32(v)
		}
		return kr.Device.Malloc(int64(len(v32)*4), unsafe.Pointer(&v32[0]), nil)
	}
	v64 := make([]int64, len(vals))
	for i, v := range vals {
		v64[i] = int64(v)
	}
	return kr.Device.Malloc(int64(len(v64)*8), unsafe.Pointer(&v64[0]), nil)
}

// DefineQFunction generates, compiles and allocates device storage for a
// kernel. Defining the same name twice is a no-op.
func (kr *Runner) DefineQFunction(qf *qfunc.QFunction) error {
	name := qf.Name()
	if _, exists := kr.definitions[name]; exists {
		return nil
	}
	source, err := kr.GenerateQFunctionSource(qf.Variant())
	if err != nil {
		return fmt.Errorf("kernel %s: %w", name, err)
	}
	if _, err := kr.BuildKernel(source, name); err != nil {
		return err
	}

	def := &qfunctionDef{qf: qf, source: source}
	def.inputs, def.outputs = builder.ArrayNames(qf.Variant())
	for k, arr := range def.inputs {
		def.inputs[k] = name + "_" + arr
		kr.allocateArray(def.inputs[k], qf.InputLen(kr.Q, k))
	}
	for k, arr := range def.outputs {
		def.outputs[k] = name + "_" + arr
		kr.allocateArray(def.outputs[k], qf.OutputLen(kr.Q, k))
	}
	kr.definitions[name] = def
	return nil
}

// GetKernelSource returns the generated source of a defined kernel, without
// the preamble.
func (kr *Runner) GetKernelSource(name string) (string, error) {
	def, exists := kr.definitions[name]
	if !exists {
		return "", fmt.Errorf("kernel %s not defined - use DefineQFunction first", name)
	}
	return def.source, nil
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	fullSource := kr.GeneratePreamble() + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if kr.Device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	kr.Kernels[kernelName] = kernel
	return kernel, nil
}

// Apply runs a defined kernel. in and out are element-contiguous host
// buffers over all partitions, laid out as for QFunction.Apply per element.
func (kr *Runner) Apply(name string, in, out [][]float64) error {
	def, exists := kr.definitions[name]
	if !exists {
		return fmt.Errorf("kernel %s not defined - use DefineQFunction first", name)
	}
	kernel, exists := kr.Kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not compiled", name)
	}
	if len(in) != len(def.inputs) || len(out) != len(def.outputs) {
		return fmt.Errorf("kernel %s: got %d inputs and %d outputs: %w",
			name, len(in), len(out), qfunc.ErrBufferCount)
	}

	for k, arr := range def.inputs {
		if err := kr.copyToDevice(arr, in[k]); err != nil {
			return fmt.Errorf("pre-kernel copy failed: %w", err)
		}
	}

	args := []interface{}{kr.PooledMemory["K"]}
	for _, arr := range append(append([]string(nil), def.inputs...), def.outputs...) {
		args = append(args, kr.arrays[arr].global, kr.arrays[arr].offsets)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	kr.Device.Finish()

	for k, arr := range def.outputs {
		if err := kr.copyFromDevice(arr, out[k]); err != nil {
			return fmt.Errorf("post-kernel copy failed: %w", err)
		}
	}
	return nil
}

// Free releases all resources
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for _, mem := range kr.PooledMemory {
		mem.Free()
	}
}
