package builder

import (
	"fmt"
	"strings"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// Size returns the size in bytes of one value
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// Builder generates OCCA kernels for quadrature functions evaluated over
// partitioned elements: one @outer iteration per partition, one @inner
// iteration per element, Q points per element.
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int // Maximum K value across all partitions

	// Quadrature points per element
	Q int

	// Type configuration
	FloatType DataType
	IntType   DataType
	Alignment AlignmentType

	// Generated code
	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int // elements per partition, partitions hold consecutive elements
	Q         int
	FloatType DataType
	IntType   DataType
	Alignment AlignmentType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}
	if cfg.Q < 1 {
		panic(fmt.Sprintf("quadrature point count must be positive, got %d", cfg.Q))
	}
	kpartMax := 0
	for _, k := range cfg.K {
		kpartMax = max(kpartMax, k)
	}
	kb := &Builder{
		NumPartitions: len(cfg.K),
		K:             append([]int(nil), cfg.K...),
		KpartMax:      kpartMax,
		Q:             cfg.Q,
		FloatType:     cfg.FloatType,
		IntType:       cfg.IntType,
		Alignment:     cfg.Alignment,
	}
	if kb.FloatType == 0 {
		kb.FloatType = Float64
	}
	if kb.IntType == 0 {
		kb.IntType = INT64
	}
	if kb.Alignment == 0 {
		kb.Alignment = NoAlignment
	}
	return kb
}

// GetTotalElements returns sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int {
	return int(kb.IntType.Size())
}

// PartitionStarts returns the first global element of every partition.
func (kb *Builder) PartitionStarts() []int {
	starts := make([]int, kb.NumPartitions)
	for i := 1; i < kb.NumPartitions; i++ {
		starts[i] = starts[i-1] + kb.K[i-1]
	}
	return starts
}

// CalculateAlignedOffsets computes where each partition's data starts, in
// values, for an array holding valuesPerElement values per element. The
// final entry is the padded total length; the second result is its size in
// bytes.
func (kb *Builder) CalculateAlignedOffsets(valuesPerElement int) ([]int64, int64) {
	valueSize := kb.FloatType.Size()
	alignment := int64(kb.Alignment)
	align := func(off int64) int64 {
		return ((off + alignment - 1) / alignment) * alignment
	}

	offsets := make([]int64, kb.NumPartitions+1)
	currentByteOffset := int64(0)
	for i := 0; i < kb.NumPartitions; i++ {
		currentByteOffset = align(currentByteOffset)
		// Offsets are in VALUES so kernels can use ptr + offset
		offsets[i] = currentByteOffset / valueSize
		currentByteOffset += int64(kb.K[i]*valuesPerElement) * valueSize
	}
	currentByteOffset = align(currentByteOffset)
	offsets[kb.NumPartitions] = currentByteOffset / valueSize
	return offsets, offsets[kb.NumPartitions] * valueSize
}

// GeneratePreamble generates the type definitions and sizing constants
// shared by every kernel.
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	floatTypeStr, floatSuffix := "double", ""
	if kb.FloatType == Float32 {
		floatTypeStr, floatSuffix = "float", "f"
	}
	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}

	fmt.Fprintf(&sb, "typedef %s real_t;\n", floatTypeStr)
	fmt.Fprintf(&sb, "typedef %s int_t;\n", intTypeStr)
	fmt.Fprintf(&sb, "#define REAL_ZERO 0.0%s\n", floatSuffix)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "#define NPART %d\n", kb.NumPartitions)
	fmt.Fprintf(&sb, "#define KpartMax %d\n", kb.KpartMax)
	fmt.Fprintf(&sb, "#define NQ %d\n", kb.Q)
	sb.WriteString("\n")

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}
