package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sigreer/bootgod/internal/bootspec"
	"github.com/sigreer/bootgod/internal/catalog"
)

// sourceFromArg turns a CLI argument into a boot source: a /dev/ path
// is matched against the enumerated catalog (whole device or
// partition), anything else is treated as a disk-image file.
func sourceFromArg(arg string) (bootspec.BootSource, error) {
	if !strings.HasPrefix(arg, "/dev/") {
		return bootspec.ImageSource(arg), nil
	}

	devices, err := catalog.New().Enumerate(context.Background())
	if err != nil {
		return bootspec.BootSource{}, err
	}

	for i := range devices {
		dev := &devices[i]
		if dev.Device == arg {
			return bootspec.DeviceSource(dev), nil
		}
		if part := dev.FindPartition(arg); part != nil {
			return bootspec.PartitionSource(part), nil
		}
	}

	return bootspec.BootSource{}, fmt.Errorf("%s is not a known storage device or partition", arg)
}
