package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sectorSize = 512

// listSysfs enumerates block devices purely from /sys/block. Used when
// lsblk is not installed; reads no partition contents and wakes no
// drives.
func listSysfs(root string) ([]StorageDevice, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var devices []StorageDevice
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "loop") ||
			strings.HasPrefix(name, "zram") ||
			strings.HasPrefix(name, "ram") ||
			strings.HasPrefix(name, "dm-") ||
			strings.HasPrefix(name, "sr") {
			continue
		}

		dev := sysfsDevice(root, name)
		devices = append(devices, dev)
	}

	return devices, nil
}

// sysfsDevice gathers data for a single device from sysfs
func sysfsDevice(root, name string) StorageDevice {
	blockPath := filepath.Join(root, name)

	dev := StorageDevice{
		Device:    "/dev/" + name,
		Name:      name,
		Transport: sysfsTransport(blockPath, name),
	}

	if sectors, ok := readSysfsInt(filepath.Join(blockPath, "size")); ok {
		dev.Size = uint64(sectors) * sectorSize
	}
	if rm, ok := readSysfsInt(filepath.Join(blockPath, "removable")); ok {
		dev.Removable = rm == 1
	}
	if data, err := os.ReadFile(filepath.Join(blockPath, "device", "model")); err == nil {
		model := strings.TrimSpace(string(data))
		if model != "" {
			dev.Model = &model
		}
	}

	// Partition subdirectories carry the device name as prefix and have
	// their own start/size files
	entries, err := os.ReadDir(blockPath)
	if err != nil {
		return dev
	}
	for _, entry := range entries {
		pname := entry.Name()
		if !strings.HasPrefix(pname, name) || pname == name {
			continue
		}
		partPath := filepath.Join(blockPath, pname)
		if _, err := os.Stat(filepath.Join(partPath, "partition")); err != nil {
			continue
		}

		part := Partition{
			Device: "/dev/" + pname,
			Name:   pname,
			FS:     FSUnknown,
		}
		if n, ok := readSysfsInt(filepath.Join(partPath, "partition")); ok {
			part.Number = int(n)
		}
		if start, ok := readSysfsInt(filepath.Join(partPath, "start")); ok {
			part.Start = uint64(start) * sectorSize
		}
		if sectors, ok := readSysfsInt(filepath.Join(partPath, "size")); ok {
			part.Size = uint64(sectors) * sectorSize
		}
		dev.Partitions = append(dev.Partitions, part)
	}

	return dev
}

// sysfsTransport classifies the attachment by the resolved sysfs device
// path; USB-attached disks traverse a usb host controller directory.
func sysfsTransport(blockPath, name string) Transport {
	if strings.HasPrefix(name, "nvme") {
		return TransportNVMe
	}
	target, err := filepath.EvalSymlinks(blockPath)
	if err != nil {
		return TransportOther
	}
	if strings.Contains(target, "/usb") {
		return TransportUSB
	}
	return TransportOther
}

func readSysfsInt(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
