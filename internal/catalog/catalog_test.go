package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cannedLsblk(json string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		return []byte(json), nil
	}
}

func failingLsblk(context.Context) ([]byte, error) {
	return nil, errors.New("lsblk: command not found")
}

// Signature probing must override whatever filesystem kind the OS has
// cached for the partition.
func TestEnumerateProbesSignatures(t *testing.T) {
	// 500MB partition that was reformatted to nothing: lsblk still
	// reports the stale vfat, the bytes on disk are all zero.
	unformatted := writeImage(t, 8192, nil)
	ext4 := writeImage(t, 8192, map[int64][]byte{
		extMagicOffset: extMagicBytes(),
	})

	json := fmt.Sprintf(`{
	   "blockdevices": [
	      {"name":"nvme0n1", "path":"/dev/nvme0n1", "type":"disk", "size":512110190592,
	       "rm":false, "tran":"nvme", "model":"Samsung SSD 980",
	       "children": [
	          {"name":"nvme0n1p2", "path":%q, "type":"part", "size":2147483648,
	           "start":1026048, "partn":2},
	          {"name":"nvme0n1p1", "path":%q, "type":"part", "size":524288000,
	           "start":2048, "fstype":"vfat", "partn":1}
	       ]
	      },
	      {"name":"sda", "path":"/dev/sda", "type":"disk", "size":1000000000,
	       "rm":true, "tran":"usb"}
	   ]
	}`, ext4, unformatted)

	c := &Catalog{
		sysfsRoot:  t.TempDir(),
		mountsPath: filepath.Join(t.TempDir(), "mounts"),
		lsblk:      cannedLsblk(json),
	}

	devices, err := c.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	// Devices sorted by name, partitions by number regardless of the
	// order lsblk reported them in.
	assert.Equal(t, "nvme0n1", devices[0].Name)
	assert.Equal(t, "sda", devices[1].Name)

	nvme := devices[0]
	require.Len(t, nvme.Partitions, 2)
	p1, p2 := nvme.Partitions[0], nvme.Partitions[1]

	assert.Equal(t, 1, p1.Number)
	assert.Equal(t, FSUnformatted, p1.FS, "zeroed partition wins over stale cached vfat")
	assert.False(t, p1.Bootable)
	assert.Equal(t, 2, p2.Number)
	assert.Equal(t, FSExt4, p2.FS)
	assert.False(t, p2.Bootable, "no boot signature on a plain data partition")

	assert.LessOrEqual(t, p1.Start+p1.Size, p2.Start, "partitions must not overlap")
}

// A listed mountpoint attaches to the matching partition; a partition
// device we cannot open keeps its cached classification.
func TestEnumerateMountState(t *testing.T) {
	dir := t.TempDir()
	mountsPath := filepath.Join(dir, "mounts")
	require.NoError(t, os.WriteFile(mountsPath,
		[]byte("/dev/bootgod-none-p1 /mnt/data ext4 rw 0 0\n"), 0644))

	json := `{
	   "blockdevices": [
	      {"name":"bootgod-none", "path":"/dev/bootgod-none", "type":"disk",
	       "size":1000000, "rm":false,
	       "children": [
	          {"name":"bootgod-none-p1", "path":"/dev/bootgod-none-p1", "type":"part",
	           "size":500000, "start":2048, "fstype":"ext4", "partn":1}
	       ]
	      }
	   ]
	}`

	c := &Catalog{
		sysfsRoot:  dir,
		mountsPath: mountsPath,
		lsblk:      cannedLsblk(json),
	}

	devices, err := c.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, devices[0].Partitions, 1)

	part := devices[0].Partitions[0]
	assert.Equal(t, FSExt4, part.FS, "unreadable device keeps the cached kind")
	assert.True(t, part.MountKnown)
	require.NotNil(t, part.Mountpoint)
	assert.Equal(t, "/mnt/data", *part.Mountpoint)
	assert.True(t, devices[0].Mounted())
}

func TestEnumerateSysfsFallback(t *testing.T) {
	root := t.TempDir()

	sda := filepath.Join(root, "sda")
	require.NoError(t, os.MkdirAll(filepath.Join(sda, "device"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sda, "size"), []byte("1953525168\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sda, "removable"), []byte("1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sda, "device", "model"), []byte("DataTraveler  \n"), 0644))

	sda1 := filepath.Join(sda, "sda1")
	require.NoError(t, os.MkdirAll(sda1, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "partition"), []byte("1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "start"), []byte("2048\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "size"), []byte("1953523120\n"), 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "loop0"), 0755))

	c := &Catalog{
		sysfsRoot:  root,
		mountsPath: filepath.Join(root, "no-mounts"),
		lsblk:      failingLsblk,
	}

	devices, err := c.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1, "loop devices are skipped")

	dev := devices[0]
	assert.Equal(t, "/dev/sda", dev.Device)
	assert.Equal(t, uint64(1953525168*512), dev.Size)
	assert.True(t, dev.Removable)
	require.NotNil(t, dev.Model)
	assert.Equal(t, "DataTraveler", *dev.Model)

	require.Len(t, dev.Partitions, 1)
	part := dev.Partitions[0]
	assert.Equal(t, 1, part.Number)
	assert.Equal(t, uint64(2048*512), part.Start)
	assert.False(t, part.MountKnown, "mount table was unreadable")
}

func TestEnumerateNoListingFacility(t *testing.T) {
	c := &Catalog{
		sysfsRoot:  filepath.Join(t.TempDir(), "missing"),
		mountsPath: "/proc/self/mounts",
		lsblk:      failingLsblk,
	}

	_, err := c.Enumerate(context.Background())
	var perr *ProbeError
	require.ErrorAs(t, err, &perr)
}

func TestDeviceSizeRegularFile(t *testing.T) {
	path := writeImage(t, 8192, nil)
	size, err := DeviceSize(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), size)
}
