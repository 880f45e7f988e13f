package meshopt

import (
	"errors"
	"fmt"
)

// ErrorKind names the option that made a configuration unusable.
type ErrorKind int

const (
	UnknownMetric ErrorKind = iota + 1
	UnknownTarget
	InvalidTolerance
	InvalidIterations
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownMetric:
		return "unknown metric"
	case UnknownTarget:
		return "unknown target"
	case InvalidTolerance:
		return "invalid tolerance"
	case InvalidIterations:
		return "invalid iteration count"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ConfigError reports an unsupported optimizer selector or parameter.
type ConfigError struct {
	Kind  ErrorKind
	Value any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mesh optimizer: %v %v", e.Kind, e.Value)
}

// ErrInvalidMesh is returned for meshes the optimizer cannot work on:
// malformed connectivity or elements inverted before optimization.
var ErrInvalidMesh = errors.New("invalid mesh")
