package partitions

import (
	"fmt"
	"math"
)

// Partition is a group of elements evaluated together by one worker or one
// OCCA @outer iteration.
type Partition struct {
	ID int

	Elements    []int // Global element indices in this partition
	NumElements int   // Actual number of active elements
	MaxElements int   // Padded size for OCCA @inner loop uniformity
}

// Contiguous reports whether the partition's elements form one run
// [Elements[0], Elements[0]+NumElements).
func (p *Partition) Contiguous() bool {
	for i, e := range p.Elements {
		if e != p.Elements[0]+i {
			return false
		}
	}
	return true
}

// PartitionLayout manages the complete element decomposition
type PartitionLayout struct {
	Partitions []Partition

	KpartMax      int // max(NumElements) across all partitions for OCCA
	TotalElements int
	NumPartitions int

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// K returns the active element count of each partition.
func (pl *PartitionLayout) K() []int {
	k := make([]int, pl.NumPartitions)
	for i, p := range pl.Partitions {
		k[i] = p.NumElements
	}
	return k
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("layout has %d partitions, NumPartitions is %d",
			len(pl.Partitions), pl.NumPartitions)
	}
	actualMax, total := 0, 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if len(p.Elements) != p.NumElements {
			return fmt.Errorf("partition %d: lists %d elements, NumElements is %d",
				p.ID, len(p.Elements), p.NumElements)
		}
		for _, e := range p.Elements {
			if pl.GetPartition(e) != p.ID {
				return fmt.Errorf("element %d listed in partition %d, EToP says %d",
					e, p.ID, pl.GetPartition(e))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, TotalElements is %d",
			total, pl.TotalElements)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}
	for _, p := range pl.Partitions {
		stats.MinElements = min(stats.MinElements, p.NumElements)
		stats.MaxElements = max(stats.MaxElements, p.NumElements)
	}
	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

// PartitionedArray is a per-element field stored partition by partition,
// each partition padded to KpartMax elements so device kernels see a uniform
// stride.
type PartitionedArray struct {
	// Layout: [Partition 0 Data][Partition 1 Data]...[Partition N-1 Data]
	GlobalData []float64

	// Partition p's data starts at GlobalData[Offsets[p]]
	Offsets []int

	// Number of values per element (Q*NComp for a quadrature field)
	Stride int
}

// AllocatePartitionedArray creates padded storage with stride values per
// element.
func AllocatePartitionedArray(layout *PartitionLayout, stride int) *PartitionedArray {
	offsets := make([]int, layout.NumPartitions+1)
	for i := range layout.Partitions {
		offsets[i+1] = offsets[i] + stride*layout.KpartMax
	}
	return &PartitionedArray{
		GlobalData: make([]float64, offsets[layout.NumPartitions]),
		Offsets:    offsets,
		Stride:     stride,
	}
}

// GetPartitionData returns a slice for partition p's data
func (pa *PartitionedArray) GetPartitionData(partitionID int) []float64 {
	if partitionID < 0 || partitionID >= len(pa.Offsets)-1 {
		return nil
	}
	return pa.GlobalData[pa.Offsets[partitionID]:pa.Offsets[partitionID+1]]
}

// Scatter copies an element-contiguous global array into the partitioned
// layout.
func (pa *PartitionedArray) Scatter(layout *PartitionLayout, global []float64) {
	for pID, p := range layout.Partitions {
		dst := pa.GetPartitionData(pID)
		for local, e := range p.Elements {
			copy(dst[local*pa.Stride:(local+1)*pa.Stride], global[e*pa.Stride:(e+1)*pa.Stride])
		}
	}
}

// Gather is the inverse of Scatter; padding is dropped.
func (pa *PartitionedArray) Gather(layout *PartitionLayout, global []float64) {
	for pID, p := range layout.Partitions {
		src := pa.GetPartitionData(pID)
		for local, e := range p.Elements {
			copy(global[e*pa.Stride:(e+1)*pa.Stride], src[local*pa.Stride:(local+1)*pa.Stride])
		}
	}
}
