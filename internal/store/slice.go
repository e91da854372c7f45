package store

import "context"

// WriteSlice writes srcData (a C-order buffer of shape srcShape, elements
// of elemSize bytes) into the array at arrayPath starting at global index
// start on every axis — spec.md §4.E.2's "Write output[slice_tuple] =
// input[:]". Only chunks overlapping the slice are read, merged, and
// rewritten; each chunk's lock is acquired once and held across its whole
// read-merge-write so two granules writing into the same shared chunk
// (spec.md §8 scenario 2's mosaic) never interleave a read from one with a
// write from the other and silently drop data (§4.E.2, §5 ordering
// guarantees). fillBytes is the array's fill value pre-encoded to elemSize
// bytes, used to synthesize any chunk this write touches for the first time.
func (s *Store) WriteSlice(ctx context.Context, arrayPath string, meta *ZArray, elemSize int, fillBytes []byte, start, srcShape []int, srcData []byte) error {
	rank := len(meta.Shape)
	if rank == 0 {
		return s.writeChunk(ctx, arrayPath, nil, srcData)
	}

	chunks := meta.Chunks
	startChunk := make([]int, rank)
	endChunkExcl := make([]int, rank)
	for i := range start {
		startChunk[i] = start[i] / chunks[i]
		endChunkExcl[i] = (start[i]+srcShape[i]-1)/chunks[i] + 1
	}

	chunkStrides := rowMajorStrides(chunks)
	srcStrides := rowMajorStrides(srcShape)

	return iterateGrid(startChunk, endChunkExcl, func(chunkIdx []int) error {
		chunkGlobalStart := make([]int, rank)
		for i := range chunkGlobalStart {
			chunkGlobalStart[i] = chunkIdx[i] * chunks[i]
		}

		intersectStart := make([]int, rank)
		intersectEnd := make([]int, rank)
		for i := 0; i < rank; i++ {
			intersectStart[i] = max(chunkGlobalStart[i], start[i])
			intersectEnd[i] = min(chunkGlobalStart[i]+chunks[i], start[i]+srcShape[i])
			if intersectStart[i] >= intersectEnd[i] {
				return nil
			}
		}

		// The lock is acquired once here and held across the read, the
		// merge, and the write below, so a concurrent writer touching the
		// same chunk can never read a buffer this goroutine is mid-merge on.
		unlock, err := s.lockArray(arrayPath)
		if err != nil {
			return err
		}
		defer unlock()

		buf, err := s.readChunk(ctx, arrayPath, meta, chunkIdx, elemSize, fillBytes)
		if err != nil {
			return err
		}

		intersectShape := make([]int, rank)
		for i := range intersectShape {
			intersectShape[i] = intersectEnd[i] - intersectStart[i]
		}

		zeros := make([]int, rank)
		err = iterateGrid(zeros, intersectShape, func(rel []int) error {
			chunkOffset, srcOffset := 0, 0
			for i := 0; i < rank; i++ {
				g := intersectStart[i] + rel[i]
				chunkOffset += (g - chunkGlobalStart[i]) * chunkStrides[i]
				srcOffset += (g - start[i]) * srcStrides[i]
			}
			copy(buf[chunkOffset*elemSize:], srcData[srcOffset*elemSize:(srcOffset+1)*elemSize])
			return nil
		})
		if err != nil {
			return err
		}

		return s.writeChunkLocked(ctx, arrayPath, chunkIdx, buf)
	})
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
