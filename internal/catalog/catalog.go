// Package catalog enumerates storage controllers, devices and
// partitions, classifying each partition by its on-disk signatures.
// Probing is read-only and uncached: every Enumerate call produces a
// fresh, idempotent snapshot, safe to run from any number of concurrent
// callers.
package catalog

import (
	"context"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// Catalog probes block devices. The zero paths default to the live
// system; tests point them at fixture trees.
type Catalog struct {
	sysfsRoot  string
	mountsPath string
	lsblk      func(ctx context.Context) ([]byte, error)
}

// New returns a catalog probing the running system.
func New() *Catalog {
	return &Catalog{
		sysfsRoot:  "/sys/block",
		mountsPath: "/proc/self/mounts",
		lsblk:      runLsblk,
	}
}

// Enumerate returns an ordered snapshot of all storage devices and their
// partitions. It fails with ProbeError only when no listing facility is
// available at all; a device that cannot be fully classified is still
// returned with its fields degraded to unknown.
func (c *Catalog) Enumerate(ctx context.Context) ([]StorageDevice, error) {
	devices, err := c.list(ctx)
	if err != nil {
		return nil, err
	}

	mounts, merr := loadMounts(c.mountsPath)

	for i := range devices {
		dev := &devices[i]
		c.fillDeviceSize(dev)

		for j := range dev.Partitions {
			part := &dev.Partitions[j]
			classifyPartition(part)

			if merr == nil {
				part.MountKnown = true
				if mp, ok := mounts[part.Device]; ok {
					part.Mountpoint = &mp
				} else {
					part.Mountpoint = nil
				}
			}
		}

		sort.Slice(dev.Partitions, func(a, b int) bool {
			return dev.Partitions[a].Number < dev.Partitions[b].Number
		})
	}

	sort.Slice(devices, func(a, b int) bool {
		return devices[a].Name < devices[b].Name
	})

	return devices, nil
}

// list tries lsblk first (richer metadata), falling back to a pure
// sysfs walk when the tool is missing.
func (c *Catalog) list(ctx context.Context) ([]StorageDevice, error) {
	out, lerr := c.lsblk(ctx)
	if lerr == nil {
		devices, perr := parseLsblk(out)
		if perr == nil {
			return devices, nil
		}
		lerr = perr
	}

	devices, serr := listSysfs(c.sysfsRoot)
	if serr != nil {
		return nil, &ProbeError{Op: "lsblk/sysfs", Err: lerr}
	}
	return devices, nil
}

// classifyPartition overrides cached metadata with what is actually on
// disk. When the partition device cannot be read (typically a
// permissions problem), the cached kind from lsblk is kept and the
// fields stay at their degraded values.
func classifyPartition(part *Partition) {
	info, err := probeSignature(part.Device)
	if err != nil {
		return
	}
	part.FS = info.FS
	part.Bootable = info.Bootable
}

// fillDeviceSize falls back to the BLKGETSIZE64 ioctl when neither
// lsblk nor sysfs produced a size.
func (c *Catalog) fillDeviceSize(dev *StorageDevice) {
	if dev.Size != 0 {
		return
	}
	f, err := os.Open(dev.Device)
	if err != nil {
		return
	}
	defer f.Close()
	if size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64); err == nil {
		dev.Size = uint64(size)
	}
}

// DeviceSize reports the usable size of a block device or regular file
// in bytes. Used by the imaging engine for its fail-fast capacity check.
func DeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Mode().IsRegular() {
		return uint64(st.Size()), nil
	}

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}
