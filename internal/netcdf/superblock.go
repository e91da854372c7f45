package netcdf

import (
	"encoding/binary"
	"fmt"
	"io"
)

var signature = [8]byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// superblock holds the handful of superblock fields the tree walker needs.
// Only versions 0 and 1 (the classic, symbol-table-rooted layout netCDF-4's
// HDF5 library writes) are supported; this mirrors the scope scigolib/hdf5
// documents for its own "version 0/2/3" support, narrowed to the subset
// real netCDF-4 classic-model files exercise.
type superblock struct {
	version        uint8
	sizeOfOffsets  uint8
	sizeOfLengths  uint8
	rootBTree      uint64
	rootHeap       uint64
	rootHeaderAddr uint64 // object header address of the root group
}

func readSuperblock(r io.ReaderAt) (*superblock, error) {
	var sig [8]byte
	if _, err := r.ReadAt(sig[:], 0); err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	if sig != signature {
		return nil, fmt.Errorf("not an HDF5 file")
	}

	var hdr [24]byte
	if _, err := r.ReadAt(hdr[:], 8); err != nil {
		return nil, fmt.Errorf("read superblock header: %w", err)
	}

	sb := &superblock{version: hdr[0]}
	switch sb.version {
	case 0, 1:
		sb.sizeOfOffsets = hdr[5]
		sb.sizeOfLengths = hdr[6]
		// Fixed-layout fields for v0/v1: base address, free-space address,
		// end-of-file address, driver-info address, then the root group
		// symbol table entry (link name offset, object header address,
		// cache type, reserved, scratch[16]).
		baseOff := int64(24)
		if sb.version == 1 {
			baseOff += 4 // indexed storage B-tree internal/leaf K values
		}
		off := int(sb.sizeOfOffsets)
		entryStart := baseOff + int64(off)*4 // base, free-space, EOF, driver-info addresses
		// Root symbol table entry layout: link name offset (off bytes),
		// object header address (off bytes), cache type (4 bytes), reserved
		// (4 bytes), scratch (16 bytes containing btree+heap addresses for
		// cache type 1).
		full := make([]byte, off+off+4+4+16)
		if _, err := r.ReadAt(full, entryStart); err != nil {
			return nil, fmt.Errorf("read root symbol table entry scratch: %w", err)
		}
		sb.rootHeaderAddr = readOffset(full[off:2*off], off)
		cacheType := binary.LittleEndian.Uint32(full[2*off+4 : 2*off+8])
		scratch := full[2*off+8:]
		if cacheType == 1 {
			sb.rootBTree = readOffset(scratch[0:off], off)
			sb.rootHeap = readOffset(scratch[off:2*off], off)
		}
		return sb, nil
	default:
		return nil, fmt.Errorf("unsupported superblock version %d", sb.version)
	}
}

func readOffset(b []byte, size int) uint64 {
	var v uint64
	for i := 0; i < size && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
