package netcdf

import (
	"encoding/binary"
	"fmt"
)

type dataspaceMessage struct {
	dimensions []uint64
}

func parseDataspaceMessage(data []byte) (*dataspaceMessage, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dataspace message too short")
	}
	version := data[0]
	rank := int(data[1])
	headerLen := 4
	if version == 1 {
		headerLen = 8 // version 1 reserves 5 extra bytes after rank/flags
	}
	ds := &dataspaceMessage{}
	if rank == 0 {
		return ds, nil
	}
	off := headerLen
	ds.dimensions = make([]uint64, rank)
	for i := 0; i < rank; i++ {
		if off+8 > len(data) {
			return nil, fmt.Errorf("dataspace message truncated")
		}
		ds.dimensions[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	return ds, nil
}

func (ds *dataspaceMessage) shape() []int {
	out := make([]int, len(ds.dimensions))
	for i, d := range ds.dimensions {
		out[i] = int(d)
	}
	return out
}

func (ds *dataspaceMessage) totalElements() int {
	n := 1
	for _, d := range ds.dimensions {
		n *= int(d)
	}
	if len(ds.dimensions) == 0 {
		return 1
	}
	return n
}
