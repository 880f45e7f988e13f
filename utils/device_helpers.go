package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// backends are tried in order: parallel backends first, Serial last.
var backends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// TryCreateDevice returns the first OCCA device that can be created.
func TryCreateDevice() (*gocca.OCCADevice, error) {
	var lastErr error
	for _, props := range backends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA backend available: %w", lastErr)
}
