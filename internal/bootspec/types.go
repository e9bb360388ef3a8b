package bootspec

import (
	"errors"

	"github.com/sigreer/bootgod/internal/catalog"
)

// Firmware selects the virtual machine firmware flavor
type Firmware string

const (
	FirmwareBIOS Firmware = "bios"
	FirmwareUEFI Firmware = "uefi"
)

// DiskInterface selects how the boot medium is attached to the guest
type DiskInterface string

const (
	InterfaceIDE    DiskInterface = "ide"
	InterfaceVirtio DiskInterface = "virtio"
	InterfaceSCSI   DiskInterface = "scsi"
	InterfaceNVMe   DiskInterface = "nvme"
)

// BootSource is one of: a partition, a whole raw device, or a disk image
// file. Exactly one variant is set.
type BootSource struct {
	Partition *catalog.Partition
	Device    *catalog.StorageDevice
	ImagePath string
}

// PartitionSource boots a single partition.
func PartitionSource(p *catalog.Partition) BootSource {
	return BootSource{Partition: p}
}

// DeviceSource boots a whole raw device.
func DeviceSource(d *catalog.StorageDevice) BootSource {
	return BootSource{Device: d}
}

// ImageSource boots a disk image or ISO file.
func ImageSource(path string) BootSource {
	return BootSource{ImagePath: path}
}

// Validate confirms exactly one variant is active.
func (s BootSource) Validate() error {
	n := 0
	if s.Partition != nil {
		n++
	}
	if s.Device != nil {
		n++
	}
	if s.ImagePath != "" {
		n++
	}
	if n != 1 {
		return errors.New("boot source must have exactly one of partition, device, or image path")
	}
	return nil
}

// Path returns the path QEMU will open for this source.
func (s BootSource) Path() string {
	switch {
	case s.Partition != nil:
		return s.Partition.Device
	case s.Device != nil:
		return s.Device.Device
	default:
		return s.ImagePath
	}
}

// Kind names the active variant for logging and history rows.
func (s BootSource) Kind() string {
	switch {
	case s.Partition != nil:
		return "partition"
	case s.Device != nil:
		return "device"
	default:
		return "image"
	}
}

// BootProfile is the resolved set of virtualization parameters for a
// boot source. The resolver produces it once per source; callers that
// want different values clone and override before starting a session.
type BootProfile struct {
	Firmware  Firmware      `json:"firmware"`
	Interface DiskInterface `json:"interface"`
	MemoryMB  int           `json:"memory_mb"`
	CPUs      int           `json:"cpus"`

	// Extra carries free-form key/value options passed through to the
	// process invocation (e.g. display, firmware code path).
	Extra map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy safe to override independently.
func (p *BootProfile) Clone() *BootProfile {
	if p == nil {
		return nil
	}
	out := &BootProfile{
		Firmware:  p.Firmware,
		Interface: p.Interface,
		MemoryMB:  p.MemoryMB,
		CPUs:      p.CPUs,
	}
	if p.Extra != nil {
		out.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
