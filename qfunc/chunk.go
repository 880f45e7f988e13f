package qfunc

import "golang.org/x/sys/cpu"

// chunkSize is fixed at init from the detected vector width.
var chunkSize = detectChunkSize()

// ChunkSize is the number of points every block processes before the
// composed loop moves on. It is sized so one chunk of a 3×3 block (9 weight
// streams, 3 in, 3 out) stays in L1 on the detected vector width.
func ChunkSize() int {
	return max(chunkSize, 1)
}

func detectChunkSize() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 128
	case cpu.X86.HasAVX2, cpu.ARM64.HasASIMD:
		return 64
	default:
		return 32
	}
}

// SIMDLevel names the widest vector extension the chunk size was chosen for.
func SIMDLevel() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "AVX-512"
	case cpu.X86.HasAVX2:
		return "AVX2"
	case cpu.ARM64.HasASIMD:
		return "NEON"
	default:
		return "None"
	}
}
