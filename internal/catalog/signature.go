package catalog

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// On-disk signature offsets. Classification reads these directly from
// the partition device instead of trusting cached OS metadata, which
// goes stale the moment a partition is reformatted behind udev's back.
const (
	extSuperblockOffset = 1024
	extMagicOffset      = extSuperblockOffset + 56
	extMagic            = 0xEF53

	ntfsOEMOffset = 3

	fat32TypeOffset = 82
	fat16TypeOffset = 54

	// First uberblock of ZFS vdev label L0
	zfsUberblockOffset = 128 * 1024
	zfsUberblockMagic  = 0x00bab10c

	bootSigOffset = 510

	gptHeaderOffset = 512 // LBA 1 on 512-byte sector devices
)

var (
	ntfsOEM      = []byte("NTFS    ")
	fat32Type    = []byte("FAT32")
	fat16Type    = []byte("FAT1")
	gptSignature = []byte("EFI PART")
)

// signatureInfo is the result of probing the start of a partition or
// device.
type signatureInfo struct {
	FS       FSKind
	Bootable bool
}

// probeSignature classifies path by reading its on-disk signatures. An
// open or read failure is returned to the caller, which degrades the
// fields to unknown instead of failing enumeration.
func probeSignature(path string) (signatureInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return signatureInfo{FS: FSUnknown}, err
	}
	defer f.Close()
	return readSignature(f)
}

func readSignature(r io.ReaderAt) (signatureInfo, error) {
	info := signatureInfo{FS: FSUnknown}

	head := make([]byte, 4096)
	n, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return info, err
	}
	head = head[:n]
	if len(head) < sectorSize {
		return info, io.ErrUnexpectedEOF
	}

	info.Bootable = head[bootSigOffset] == 0x55 && head[bootSigOffset+1] == 0xAA

	switch {
	case len(head) >= extMagicOffset+2 &&
		binary.LittleEndian.Uint16(head[extMagicOffset:]) == extMagic:
		info.FS = FSExt4
	case bytes.Equal(head[ntfsOEMOffset:ntfsOEMOffset+8], ntfsOEM):
		info.FS = FSNTFS
	case bytes.Equal(head[fat32TypeOffset:fat32TypeOffset+5], fat32Type):
		info.FS = FSFAT32
	case bytes.Equal(head[fat16TypeOffset:fat16TypeOffset+4], fat16Type):
		info.FS = FSFAT32
	case hasZFSLabel(r):
		info.FS = FSZFS
	case allZero(head):
		info.FS = FSUnformatted
		info.Bootable = false
	}

	return info, nil
}

// hasZFSLabel checks the uberblock ring of vdev label L0. The magic is
// stored in the pool's native byte order, so both encodings count.
func hasZFSLabel(r io.ReaderAt) bool {
	buf := make([]byte, 8)
	if _, err := r.ReadAt(buf, zfsUberblockOffset); err != nil {
		return false
	}
	return binary.LittleEndian.Uint64(buf) == zfsUberblockMagic ||
		binary.BigEndian.Uint64(buf) == zfsUberblockMagic
}

// hasGPT reports whether a whole-disk device carries a GPT header.
func hasGPT(r io.ReaderAt) bool {
	buf := make([]byte, 8)
	if _, err := r.ReadAt(buf, gptHeaderOffset); err != nil {
		return false
	}
	return bytes.Equal(buf, gptSignature)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
