package bootspec

import (
	"bytes"
	"io"
)

// ContainerKind is the detected disk-image container format
type ContainerKind string

const (
	ContainerRaw   ContainerKind = "raw"
	ContainerQCOW2 ContainerKind = "qcow2"
	ContainerVMDK  ContainerKind = "vmdk"
	ContainerVDI   ContainerKind = "vdi"
	ContainerVHDX  ContainerKind = "vhdx"
	ContainerISO   ContainerKind = "iso"
)

const isoDescriptorOffset = 0x8001 // first volume descriptor, 2048-byte sector 16

var (
	qcow2Magic = []byte{'Q', 'F', 'I', 0xfb}
	vmdkMagic  = []byte("KDMV")
	vdiMagic   = []byte{0x7f, 0x10, 0xda, 0xbe}
	vhdxMagic  = []byte("vhdxfile")
	isoMagic   = []byte("CD001")
)

// SniffContainer detects the image container format from magic bytes.
// Anything unrecognized is treated as a raw image, never an error:
// format detection is an optimization, not a precondition.
func SniffContainer(r io.ReaderAt) ContainerKind {
	head := make([]byte, 8)
	if n, err := r.ReadAt(head, 0); err != nil && n < 8 {
		return ContainerRaw
	}

	switch {
	case bytes.Equal(head[:4], qcow2Magic):
		return ContainerQCOW2
	case bytes.Equal(head[:4], vmdkMagic):
		return ContainerVMDK
	case bytes.Equal(head[:8], vhdxMagic):
		return ContainerVHDX
	}

	// VDI stores its magic at 0x40 behind a text banner
	buf := make([]byte, 4)
	if _, err := r.ReadAt(buf, 0x40); err == nil && bytes.Equal(buf, vdiMagic) {
		return ContainerVDI
	}

	buf = make([]byte, 5)
	if _, err := r.ReadAt(buf, isoDescriptorOffset); err == nil && bytes.Equal(buf, isoMagic) {
		return ContainerISO
	}

	return ContainerRaw
}

// QEMUFormat is the -drive format= value for the container.
func (k ContainerKind) QEMUFormat() string {
	switch k {
	case ContainerQCOW2:
		return "qcow2"
	case ContainerVMDK:
		return "vmdk"
	case ContainerVDI:
		return "vdi"
	case ContainerVHDX:
		return "vhdx"
	default:
		return "raw"
	}
}
