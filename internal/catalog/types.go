package catalog

// Transport identifies how a storage device is attached to the host
type Transport string

const (
	TransportNVMe  Transport = "nvme"
	TransportUSB   Transport = "usb"
	TransportOther Transport = "other"
)

// FSKind is the filesystem detected on a partition
type FSKind string

const (
	FSExt4        FSKind = "ext4"
	FSNTFS        FSKind = "ntfs"
	FSFAT32       FSKind = "fat32"
	FSZFS         FSKind = "zfs"
	FSUnknown     FSKind = "unknown"
	FSUnformatted FSKind = "unformatted"
)

// Partition describes a single partition on a device. Offsets and sizes
// are in bytes. Fields that could not be resolved are left at their
// "unknown" value rather than omitted, so callers always see the full
// topology.
type Partition struct {
	Device string `json:"device"` // /dev/nvme0n1p2
	Name   string `json:"name"`   // nvme0n1p2
	Number int    `json:"number"`
	Start  uint64 `json:"start"`
	Size   uint64 `json:"size"`

	FS       FSKind `json:"fs"`
	Bootable bool   `json:"bootable"` // boot signature found on the partition itself

	// Mountpoint is nil when the partition is not mounted. MountKnown is
	// false when mount state could not be resolved; the field degrades,
	// enumeration never fails because of it.
	Mountpoint *string `json:"mountpoint,omitempty"`
	MountKnown bool    `json:"mount_known"`

	Label *string `json:"label,omitempty"`
	UUID  *string `json:"uuid,omitempty"`
}

// StorageDevice is one whole block device with its partitions. Each
// Enumerate call produces a fresh snapshot; devices are never mutated
// after they are returned.
type StorageDevice struct {
	Device    string    `json:"device"` // /dev/nvme0n1
	Name      string    `json:"name"`   // nvme0n1
	Size      uint64    `json:"size"`
	Transport Transport `json:"transport"`
	Removable bool      `json:"removable"`
	Model     *string   `json:"model,omitempty"`

	Partitions []Partition `json:"partitions"`
}

// Mounted reports whether any partition of the device is mounted.
func (d *StorageDevice) Mounted() bool {
	for i := range d.Partitions {
		if d.Partitions[i].Mountpoint != nil {
			return true
		}
	}
	return false
}

// FindPartition returns the partition with the given device path, or nil.
func (d *StorageDevice) FindPartition(path string) *Partition {
	for i := range d.Partitions {
		if d.Partitions[i].Device == path {
			return &d.Partitions[i]
		}
	}
	return nil
}
