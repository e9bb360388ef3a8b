package catalog

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
)

// lsblkOutput represents the JSON output from lsblk
type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

// lsblkDevice represents a single device in lsblk output. Depending on
// the util-linux version, numeric and boolean columns arrive as JSON
// numbers/bools or as quoted strings, so those fields use the lenient
// types below.
type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Type       string        `json:"type"`
	Size       lsblkInt      `json:"size"`
	Start      lsblkInt      `json:"start"`
	Removable  lsblkBool     `json:"rm"`
	Tran       *string       `json:"tran"`
	Model      *string       `json:"model"`
	FSType     *string       `json:"fstype"`
	Label      *string       `json:"label"`
	UUID       *string       `json:"uuid"`
	Mountpoint *string       `json:"mountpoint"`
	PartN      lsblkInt      `json:"partn"`
	Children   []lsblkDevice `json:"children,omitempty"`
}

type lsblkInt int64

func (v *lsblkInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*v = 0
		return nil
	}
	*v = lsblkInt(n)
	return nil
}

type lsblkBool bool

func (v *lsblkBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*v = s == "true" || s == "1"
	return nil
}

// runLsblk executes lsblk with byte sizes and full topology
func runLsblk(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "lsblk", "-J", "-b", "-o",
		"NAME,PATH,TYPE,SIZE,START,RM,TRAN,MODEL,FSTYPE,LABEL,UUID,MOUNTPOINT,PARTN").Output()
}

// parseLsblk converts lsblk JSON into storage devices. Partition
// classification is not done here; lsblk's cached FSTYPE is kept only as
// a fallback for when signature probing cannot read the partition.
func parseLsblk(out []byte) ([]StorageDevice, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, err
	}

	var devices []StorageDevice
	for _, bd := range parsed.Blockdevices {
		if bd.Type != "disk" {
			continue
		}
		// Virtual devices carry no useful boot/imaging topology
		if strings.HasPrefix(bd.Name, "loop") ||
			strings.HasPrefix(bd.Name, "zram") ||
			strings.HasPrefix(bd.Name, "dm-") {
			continue
		}

		dev := StorageDevice{
			Device:    devPath(bd),
			Name:      bd.Name,
			Size:      uint64(bd.Size),
			Transport: transportFor(bd.Name, bd.Tran),
			Removable: bool(bd.Removable),
			Model:     trimPtr(bd.Model),
		}

		for _, child := range bd.Children {
			if child.Type != "part" {
				continue
			}
			part := Partition{
				Device: devPath(child),
				Name:   child.Name,
				Number: int(child.PartN),
				Start:  uint64(child.Start) * sectorSize,
				Size:   uint64(child.Size),
				FS:     FSUnknown,
				Label:  trimPtr(child.Label),
				UUID:   trimPtr(child.UUID),
			}
			if part.Number == 0 {
				part.Number = partitionNumber(child.Name)
			}
			if child.FSType != nil {
				part.FS = fsKindFromName(*child.FSType)
			}
			if child.Mountpoint != nil && *child.Mountpoint != "" {
				mp := *child.Mountpoint
				part.Mountpoint = &mp
			}
			part.MountKnown = true
			dev.Partitions = append(dev.Partitions, part)
		}

		devices = append(devices, dev)
	}

	return devices, nil
}

func devPath(bd lsblkDevice) string {
	if bd.Path != "" {
		return bd.Path
	}
	return "/dev/" + bd.Name
}

func transportFor(name string, tran *string) Transport {
	if tran != nil {
		switch strings.ToLower(strings.TrimSpace(*tran)) {
		case "nvme":
			return TransportNVMe
		case "usb":
			return TransportUSB
		case "":
		default:
			return TransportOther
		}
	}
	if strings.HasPrefix(name, "nvme") {
		return TransportNVMe
	}
	return TransportOther
}

// fsKindFromName maps a filesystem name as reported by lsblk/blkid to
// the catalog enum. Unrecognized names degrade to unknown.
func fsKindFromName(name string) FSKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ext2", "ext3", "ext4":
		return FSExt4
	case "ntfs":
		return FSNTFS
	case "vfat", "fat", "fat16", "fat32":
		return FSFAT32
	case "zfs_member", "zfs":
		return FSZFS
	case "":
		return FSUnformatted
	default:
		return FSUnknown
	}
}

// partitionNumber extracts the trailing partition number from a kernel
// name (sda3 -> 3, nvme0n1p2 -> 2)
func partitionNumber(name string) int {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return 0
	}
	return n
}

// trimPtr returns nil if string is empty or just whitespace, otherwise returns pointer to trimmed string
func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
