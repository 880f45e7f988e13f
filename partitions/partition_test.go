package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPartitions_Block(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 10, TargetPartitionSize: 4, Strategy: BlockPartition}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, 3, layout.NumPartitions)
	assert.Equal(t, []int{4, 4, 2}, layout.K())
	assert.Equal(t, 4, layout.KpartMax)
	assert.Equal(t, []int{8, 9}, layout.Partitions[2].Elements)
	for _, p := range layout.Partitions {
		assert.True(t, p.Contiguous())
	}
	assert.Equal(t, 2, layout.GetPartition(9))
	assert.Equal(t, -1, layout.GetPartition(10))
}

func TestBuildPartitions_RoundRobin(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 7, TargetPartitionSize: 3, Strategy: RoundRobin}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 6}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{1, 4}, layout.Partitions[1].Elements)
	assert.False(t, layout.Partitions[0].Contiguous())
	assert.Equal(t, 3, layout.KpartMax)
}

func TestBuildPartitions_Edges(t *testing.T) {
	// Test 1: no elements still yields one empty partition
	layout, err := (&PartitionBuilder{NumElements: 0, TargetPartitionSize: 8}).BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, 1, layout.NumPartitions)
	assert.Equal(t, 0, layout.KpartMax)

	// Test 2: bad parameters
	_, err = (&PartitionBuilder{NumElements: 4, TargetPartitionSize: 0}).BuildPartitions()
	assert.Error(t, err)
	_, err = (&PartitionBuilder{NumElements: 4, TargetPartitionSize: 2, Strategy: 9}).BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayout(t *testing.T) {
	layout := &PartitionLayout{
		Partitions: []Partition{
			{ID: 0, Elements: []int{0, 1}, NumElements: 2, MaxElements: 2},
			{ID: 1, Elements: []int{2}, NumElements: 1, MaxElements: 2},
		},
		KpartMax:      2,
		TotalElements: 3,
		NumPartitions: 2,
		EToP:          []int{0, 0, 1},
	}
	assert.NoError(t, layout.ValidateLayout())

	layout.EToP[2] = 0
	assert.Error(t, layout.ValidateLayout())
	layout.EToP[2] = 1

	layout.KpartMax = 3
	assert.Error(t, layout.ValidateLayout())
}

func TestPartitionStatistics(t *testing.T) {
	layout, err := (&PartitionBuilder{NumElements: 10, TargetPartitionSize: 4}).BuildPartitions()
	require.NoError(t, err)
	stats := layout.PartitionStatistics()
	assert.Equal(t, 2, stats.MinElements)
	assert.Equal(t, 4, stats.MaxElements)
	assert.InDelta(t, 4/(10./3), stats.Imbalance, 1e-12)
}

func TestPartitionedArray_ScatterGather(t *testing.T) {
	layout, err := (&PartitionBuilder{NumElements: 5, TargetPartitionSize: 2, Strategy: RoundRobin}).BuildPartitions()
	require.NoError(t, err)

	const stride = 3
	global := make([]float64, 5*stride)
	for i := range global {
		global[i] = float64(i)
	}
	pa := AllocatePartitionedArray(layout, stride)
	assert.Len(t, pa.GlobalData, layout.NumPartitions*layout.KpartMax*stride)

	pa.Scatter(layout, global)
	// Partition 1 holds elements 1 and 4.
	assert.Equal(t, []float64{3, 4, 5, 12, 13, 14}, pa.GetPartitionData(1))

	back := make([]float64, len(global))
	pa.Gather(layout, back)
	assert.Equal(t, global, back)
	assert.Nil(t, pa.GetPartitionData(7))
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("metis")
	assert.Error(t, err)
	assert.Equal(t, "PartitionStrategy(9)", PartitionStrategy(9).String())
}
