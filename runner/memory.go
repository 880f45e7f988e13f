package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/QFKernel/qfunc"
	"github.com/notargets/QFKernel/runner/builder"
)

// allocateArray pools device memory for valuesPerElement values per element
// across all partitions.
func (kr *Runner) allocateArray(name string, valuesPerElement int) {
	offsets, totalBytes := kr.CalculateAlignedOffsets(valuesPerElement)
	global := kr.Device.Malloc(max(totalBytes, kr.FloatType.Size()), nil, nil)

	ints := make([]int, len(offsets))
	for i, off := range offsets {
		ints[i] = int(off)
	}
	offsetMem := kr.mallocInts(ints)

	kr.PooledMemory[name+"_global"] = global
	kr.PooledMemory[name+"_offsets"] = offsetMem
	kr.arrays[name] = &deviceArray{
		global:           global,
		offsets:          offsetMem,
		hostOffsets:      offsets,
		valuesPerElement: valuesPerElement,
	}
}

// partitionSpans yields, for every non-empty partition, the host range and
// the device byte offset of its data.
func (kr *Runner) partitionSpans(arr *deviceArray, fn func(lo, hi int, deviceOffset int64)) {
	starts := kr.PartitionStarts()
	for p, k := range kr.K {
		if k == 0 {
			continue
		}
		lo := starts[p] * arr.valuesPerElement
		hi := lo + k*arr.valuesPerElement
		fn(lo, hi, arr.hostOffsets[p]*kr.FloatType.Size())
	}
}

func (kr *Runner) checkHostLen(name string, arr *deviceArray, n int) error {
	if want := kr.GetTotalElements() * arr.valuesPerElement; n != want {
		return fmt.Errorf("array %s: host buffer has %d values, want %d: %w",
			name, n, want, qfunc.ErrBufferSize)
	}
	return nil
}

// copyToDevice copies host data partition by partition, converting to
// float32 when the device precision requires it.
func (kr *Runner) copyToDevice(name string, host []float64) error {
	arr, exists := kr.arrays[name]
	if !exists {
		return fmt.Errorf("array %s not found", name)
	}
	if err := kr.checkHostLen(name, arr, len(host)); err != nil {
		return err
	}
	kr.partitionSpans(arr, func(lo, hi int, deviceOffset int64) {
		if kr.FloatType == builder.Float32 {
			converted := make([]float32, hi-lo)
			for j, v := range host[lo:hi] {
				converted[j] = float32(v)
			}
			arr.global.CopyFromWithOffset(unsafe.Pointer(&converted[0]), int64(len(converted)*4), deviceOffset)
			return
		}
		arr.global.CopyFromWithOffset(unsafe.Pointer(&host[lo]), int64((hi-lo)*8), deviceOffset)
	})
	return nil
}

// copyFromDevice is the inverse of copyToDevice.
func (kr *Runner) copyFromDevice(name string, host []float64) error {
	arr, exists := kr.arrays[name]
	if !exists {
		return fmt.Errorf("array %s not found", name)
	}
	if err := kr.checkHostLen(name, arr, len(host)); err != nil {
		return err
	}
	kr.partitionSpans(arr, func(lo, hi int, deviceOffset int64) {
		if kr.FloatType == builder.Float32 {
			converted := make([]float32, hi-lo)
			arr.global.CopyToWithOffset(unsafe.Pointer(&converted[0]), int64(len(converted)*4), deviceOffset)
			for j, v := range converted {
				host[lo+j] = float64(v)
			}
			return
		}
		arr.global.CopyToWithOffset(unsafe.Pointer(&host[lo]), int64((hi-lo)*8), deviceOffset)
	})
	return nil
}

// CopyArrayToHost returns the element-contiguous host copy of a device array.
func (kr *Runner) CopyArrayToHost(name string) ([]float64, error) {
	arr, exists := kr.arrays[name]
	if !exists {
		return nil, fmt.Errorf("array %s not found", name)
	}
	host := make([]float64, kr.GetTotalElements()*arr.valuesPerElement)
	if err := kr.copyFromDevice(name, host); err != nil {
		return nil, err
	}
	return host, nil
}
