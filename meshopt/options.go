package meshopt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options selects the quality metric, target and solver limits.
type Options struct {
	Metric        int     `yaml:"metric_id"`
	Target        int     `yaml:"target_id"`
	Tolerance     float64 `yaml:"tol"`
	MaxIterations int     `yaml:"max_it"`
	Verbosity     int     `yaml:"verbosity"`
	LimitWeight   float64 `yaml:"limit_weight"` // weight of the pull back to the initial nodes
}

func DefaultOptions() Options {
	return Options{
		Metric:        2,
		Target:        TargetIdealShapeUnitSize,
		Tolerance:     1e-10,
		MaxIterations: 100,
		LimitWeight:   1e-2,
	}
}

// Validate checks the selectors against a mesh dimension.
func (o Options) Validate(dim int) error {
	if _, err := NewMetric(o.Metric, dim); err != nil {
		return err
	}
	if o.Target != TargetIdealShapeUnitSize && o.Target != TargetIdealShapeGivenSize {
		return &ConfigError{Kind: UnknownTarget, Value: o.Target}
	}
	if !(o.Tolerance > 0) {
		return &ConfigError{Kind: InvalidTolerance, Value: o.Tolerance}
	}
	if o.MaxIterations < 1 {
		return &ConfigError{Kind: InvalidIterations, Value: o.MaxIterations}
	}
	return nil
}

// ParseOptions reads options from YAML; missing keys keep their defaults.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse mesh optimizer options: %w", err)
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read mesh optimizer options: %w", err)
	}
	return ParseOptions(data)
}
