// Package bootspec turns a boot source into a proposed set of
// virtualization parameters. Resolution is pure: the same source
// snapshot always yields the same profile, and classification failures
// fall back to a conservative generic profile instead of erroring.
package bootspec

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sigreer/bootgod/internal/catalog"
)

// minImageSize rejects obviously truncated image files up front;
// nothing bootable fits in less.
const minImageSize = 1 << 20

// Resolver inspects boot sources against an ordered rule table.
type Resolver struct {
	rules []Rule
}

// NewResolver uses the stock rule table.
func NewResolver() *Resolver {
	return &Resolver{rules: DefaultRules}
}

// NewResolverWithRules substitutes a custom heuristic table.
func NewResolverWithRules(rules []Rule) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve proposes virtualization parameters for the source. It fails
// with UnsupportedSourceError only when the source cannot be read;
// an unrecognized OS resolves to the generic fallback profile.
func (r *Resolver) Resolve(src BootSource) (*BootProfile, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var (
		probe probeResult
		err   error
	)
	switch {
	case src.ImagePath != "":
		probe, err = probeImage(src.ImagePath)
	case src.Device != nil:
		probe, err = probeDevice(src.Device)
	default:
		probe = probePartition(src.Partition)
	}
	if err != nil {
		return nil, err
	}

	return applyRules(r.rules, probe), nil
}

// probeImage sniffs a disk-image file's container format and, for raw
// images, its partition table.
func probeImage(path string) (probeResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return probeResult{}, &UnsupportedSourceError{Path: path, Err: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return probeResult{}, &UnsupportedSourceError{Path: path, Err: err}
	}
	if st.Size() < minImageSize {
		return probeResult{}, &UnsupportedSourceError{
			Path: path,
			Err:  fmt.Errorf("file is %d bytes, too small to be a bootable image", st.Size()),
		}
	}

	probe := probeResult{
		FS:        catalog.FSUnknown,
		Container: SniffContainer(f),
		SizeBytes: uint64(st.Size()),
	}

	if probe.Container == ContainerRaw {
		probe.HasGPT = hasGPTHeader(f)
		probe.Bootable = hasBootSignature(f)
	}

	return probe, nil
}

// probeDevice inspects a whole raw device: partition table flavor from
// the first sectors, filesystem facts from catalog partition metadata.
// If the device node is unreadable but the snapshot carries partitions,
// resolution proceeds from the snapshot alone.
func probeDevice(dev *catalog.StorageDevice) (probeResult, error) {
	probe := probeResult{
		FS:        catalog.FSUnknown,
		Container: ContainerRaw,
		SizeBytes: dev.Size,
	}

	f, err := os.Open(dev.Device)
	if err != nil {
		if len(dev.Partitions) == 0 {
			return probeResult{}, &UnsupportedSourceError{Path: dev.Device, Err: err}
		}
	} else {
		probe.HasGPT = hasGPTHeader(f)
		probe.Bootable = hasBootSignature(f)
		f.Close()
	}

	for i := range dev.Partitions {
		part := &dev.Partitions[i]
		if isESP(part) {
			probe.HasESP = true
		}
		if part.Bootable && probe.FS == catalog.FSUnknown {
			probe.FS = part.FS
			probe.Bootable = true
		}
	}

	return probe, nil
}

// probePartition works entirely from the catalog snapshot, which
// already carries signature-derived classification.
func probePartition(part *catalog.Partition) probeResult {
	return probeResult{
		FS:        part.FS,
		Bootable:  part.Bootable,
		Container: ContainerRaw,
		HasESP:    isESP(part),
		SizeBytes: part.Size,
	}
}

// isESP recognizes an EFI system partition the pragmatic way: FAT32 in
// the 50MB..1GB range, or labeled as EFI.
func isESP(part *catalog.Partition) bool {
	if part.FS != catalog.FSFAT32 {
		return false
	}
	if part.Label != nil {
		switch *part.Label {
		case "EFI", "ESP", "SYSTEM", "efi", "esp":
			return true
		}
	}
	const mb = 1 << 20
	return part.Size >= 50*mb && part.Size <= 1024*mb
}

func hasGPTHeader(f *os.File) bool {
	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, 512); err != nil {
		return false
	}
	return bytes.Equal(buf, []byte("EFI PART"))
}

func hasBootSignature(f *os.File) bool {
	buf := make([]byte, 2)
	if _, err := f.ReadAt(buf, 510); err != nil {
		return false
	}
	return buf[0] == 0x55 && buf[1] == 0xAA
}
