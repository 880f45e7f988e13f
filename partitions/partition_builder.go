package partitions

import (
	"fmt"
	"math"
)

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy is the inverse of String.
func ParseStrategy(name string) (PartitionStrategy, error) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// PartitionBuilder splits NumElements elements into partitions of about
// TargetPartitionSize elements.
type PartitionBuilder struct {
	NumElements         int
	TargetPartitionSize int
	Strategy            PartitionStrategy
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumElements < 0 {
		return nil, fmt.Errorf("negative element count %d", pb.NumElements)
	}
	if pb.TargetPartitionSize < 1 {
		return nil, fmt.Errorf("target partition size must be positive, got %d", pb.TargetPartitionSize)
	}

	numPartitions := pb.calculateNumPartitions()
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}
	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := 0
	for _, p := range partitions {
		kpartMax = max(kpartMax, p.NumElements)
	}
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := int(math.Ceil(float64(pb.NumElements) / float64(pb.TargetPartitionSize)))
	return max(numPartitions, 1)
}

func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	eToP := make([]int, pb.NumElements)
	switch pb.Strategy {
	case BlockPartition:
		perPartition := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		for i := range eToP {
			eToP[i] = min(i/perPartition, numPartitions-1)
		}
	case RoundRobin:
		for i := range eToP {
			eToP[i] = i % numPartitions
		}
	default:
		return nil, fmt.Errorf("unknown partition strategy %v", pb.Strategy)
	}
	return eToP, nil
}

func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Elements: make([]int, 0)}
	}
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}
	return partitions
}
