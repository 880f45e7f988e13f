package qfunc

import "errors"

var (
	// ErrUnsupportedShape is returned for field/weight combinations the
	// kernel family has no member for.
	ErrUnsupportedShape = errors.New("unsupported field or weight shape")

	// ErrBufferCount is returned when the number of buffer handles passed to
	// a QFunction does not match its variant.
	ErrBufferCount = errors.New("wrong number of buffers")

	// ErrBufferSize is returned by shape checks when a buffer is shorter than
	// its point count and component count require.
	ErrBufferSize = errors.New("buffer too small")

	// ErrUnknownVariant is returned when a variant name cannot be parsed.
	ErrUnknownVariant = errors.New("unknown variant")
)
