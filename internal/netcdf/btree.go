package netcdf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// groupEntry is one child of a group: a name (resolved via the local heap)
// and the address of its object header.
type groupEntry struct {
	name string
	addr uint64
}

// localHeap resolves link-name-heap offsets to strings, per the HDF5 local
// heap structure (signature "HEAP").
type localHeap struct {
	data []byte
}

func readLocalHeap(r io.ReaderAt, addr uint64, offSize int) (*localHeap, error) {
	hdr := make([]byte, 8+offSize*3)
	if _, err := r.ReadAt(hdr, int64(addr)); err != nil {
		return nil, fmt.Errorf("read local heap header: %w", err)
	}
	if string(hdr[0:4]) != "HEAP" {
		return nil, fmt.Errorf("bad local heap signature at 0x%x", addr)
	}
	dataSegSize := readOffset(hdr[8:8+offSize], offSize)
	dataSegAddr := readOffset(hdr[8+2*offSize:8+3*offSize], offSize)
	data := make([]byte, dataSegSize)
	if _, err := r.ReadAt(data, int64(dataSegAddr)); err != nil {
		return nil, fmt.Errorf("read local heap data: %w", err)
	}
	return &localHeap{data: data}, nil
}

func (h *localHeap) getString(offset uint64) string {
	if int(offset) >= len(h.data) {
		return ""
	}
	end := int(offset)
	for end < len(h.data) && h.data[end] != 0 {
		end++
	}
	return string(h.data[offset:end])
}

// snodEntry is one raw symbol table node entry.
type snodEntry struct {
	linkNameOffset uint64
	objectAddr     uint64
}

func readSNOD(r io.ReaderAt, addr uint64, offSize int) ([]snodEntry, error) {
	hdr := make([]byte, 8)
	if _, err := r.ReadAt(hdr, int64(addr)); err != nil {
		return nil, fmt.Errorf("read SNOD header: %w", err)
	}
	if string(hdr[0:4]) != "SNOD" {
		return nil, fmt.Errorf("bad SNOD signature at 0x%x", addr)
	}
	count := int(binary.LittleEndian.Uint16(hdr[6:8]))
	entrySize := 2*offSize + 4 + 4 + 16
	buf := make([]byte, count*entrySize)
	if _, err := r.ReadAt(buf, int64(addr)+8); err != nil {
		return nil, fmt.Errorf("read SNOD entries: %w", err)
	}
	out := make([]snodEntry, count)
	for i := 0; i < count; i++ {
		base := i * entrySize
		out[i] = snodEntry{
			linkNameOffset: readOffset(buf[base:base+offSize], offSize),
			objectAddr:     readOffset(buf[base+offSize:base+2*offSize], offSize),
		}
	}
	return out, nil
}

// readGroupEntries walks a version-1 B-tree ("TREE" signature, node type 0)
// rooted at addr, collecting every leaf SNOD entry.
func readGroupEntries(r io.ReaderAt, addr uint64, offSize int, heap *localHeap) ([]groupEntry, error) {
	hdr := make([]byte, 8)
	if _, err := r.ReadAt(hdr, int64(addr)); err != nil {
		return nil, fmt.Errorf("read group btree header: %w", err)
	}
	if string(hdr[0:4]) != "TREE" {
		return nil, fmt.Errorf("bad group btree signature at 0x%x", addr)
	}
	nodeLevel := hdr[5]
	entryCount := int(binary.LittleEndian.Uint16(hdr[6:8]))

	// Node body: nodeLevel(1) handled above via hdr[5]; after the 8-byte
	// prefix come left/right sibling addresses (2*offSize), then
	// entryCount+1 keys interleaved with entryCount child pointers:
	// key0, child0, key1, child1, ..., key_n.
	keySize := offSize // group B-tree keys are heap offsets (offSize bytes)
	bodyLen := 2*offSize + keySize + entryCount*(offSize+keySize)
	body := make([]byte, bodyLen)
	if _, err := r.ReadAt(body, int64(addr)+8); err != nil {
		return nil, fmt.Errorf("read group btree body: %w", err)
	}

	off := 2 * offSize // skip sibling addresses
	off += keySize      // skip key0
	var out []groupEntry
	for i := 0; i < entryCount; i++ {
		childAddr := readOffset(body[off:off+offSize], offSize)
		off += offSize
		off += keySize // skip following key

		if nodeLevel == 0 {
			entries, err := readSNOD(r, childAddr, offSize)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				out = append(out, groupEntry{name: heap.getString(e.linkNameOffset), addr: e.objectAddr})
			}
		} else {
			children, err := readGroupEntries(r, childAddr, offSize, heap)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		}
	}
	return out, nil
}
