package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gocloud.dev/gcerrors"
)

// ReadArrayMeta reads the ".zarray" document at path.
func (s *Store) ReadArrayMeta(ctx context.Context, path string) (*ZArray, error) {
	key := arrayMetaKey(path)
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	var meta ZArray
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return &meta, nil
}

// CreateOrGetArray "fetches or creates" the Zarr dataset at path with the
// given shape/chunks/dtype/fill value, per spec.md §4.E step 4. If a
// ".zarray" document already exists it is returned unchanged (created is
// false) — the first granule to touch a variable wins the chunk shape, and
// every subsequent granule writes into that same array.
func (s *Store) CreateOrGetArray(ctx context.Context, path string, shape, chunks []int, dtype string, fillValue interface{}) (meta *ZArray, created bool, err error) {
	existing, err := s.ReadArrayMeta(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	meta = &ZArray{
		ZarrFormat: 2,
		Shape:      append([]int(nil), shape...),
		Chunks:     append([]int(nil), chunks...),
		DType:      dtype,
		Compressor: zstdCompressor,
		FillValue:  fillValue,
		Order:      "C",
		Filters:    nil,
	}
	doc, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("store: marshal .zarray at %s: %w", path, err)
	}
	if err := s.bucket.WriteAll(ctx, arrayMetaKey(path), doc, nil); err != nil {
		return nil, false, fmt.Errorf("store: write .zarray at %s: %w", path, err)
	}
	return meta, true, nil
}

// readChunk reads and decompresses one chunk, returning a fill-value-filled
// buffer of chunkVolume*elemSize bytes if the chunk key does not yet exist
// (an uninitialized chunk region reads as the fill value, per the Zarr v2
// convention).
func (s *Store) readChunk(ctx context.Context, arrayPath string, meta *ZArray, indices []int, elemSize int, fillBytes []byte) ([]byte, error) {
	key := joinKey(arrayPath, ChunkKey(indices))
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			volume := 1
			for _, c := range meta.Chunks {
				volume *= c
			}
			buf := make([]byte, volume*elemSize)
			for i := 0; i < len(buf); i += len(fillBytes) {
				copy(buf[i:], fillBytes)
			}
			return buf, nil
		}
		return nil, fmt.Errorf("store: read chunk %s: %w", key, err)
	}
	defer r.Close()
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read chunk %s: %w", key, err)
	}
	if meta.Compressor == nil {
		return compressed, nil
	}
	raw, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("store: decompress chunk %s: %w", key, err)
	}
	return raw, nil
}

// lockArray acquires the named lock for one array, "the synchronizer's lock
// for that array" spec.md §4.E.2 requires held around every read-modify-write
// of a shared chunk. Callers that need to hold it across more than a single
// write (WriteSlice's read-merge-write) must call lockArray themselves and
// use writeChunkLocked, never writeChunk, to avoid re-entering the same lock.
func (s *Store) lockArray(arrayPath string) (unlock func(), err error) {
	unlock, err = s.sync.Lock(s.root + "#" + arrayPath)
	if err != nil {
		return nil, fmt.Errorf("store: lock %s: %w", arrayPath, err)
	}
	return unlock, nil
}

// writeChunkLocked compresses and writes one chunk without acquiring the
// array's lock itself — the caller must already hold it (via lockArray).
func (s *Store) writeChunkLocked(ctx context.Context, arrayPath string, indices []int, raw []byte) error {
	key := joinKey(arrayPath, ChunkKey(indices))
	return s.bucket.WriteAll(ctx, key, compress(raw), nil)
}

// writeChunk compresses and writes one chunk, holding the array's named
// lock for the duration — "Write output[slice_tuple] = input[:] under the
// synchronizer's lock for that array" (spec.md §4.E.2). Used by callers that
// only ever need the lock around a single write (WriteChunkRaw, WriteSlice's
// rank-0 case); callers that must also read under the same lock use
// lockArray plus writeChunkLocked instead, to avoid locking the same key
// twice from one goroutine.
func (s *Store) writeChunk(ctx context.Context, arrayPath string, indices []int, raw []byte) error {
	unlock, err := s.lockArray(arrayPath)
	if err != nil {
		return err
	}
	defer unlock()

	return s.writeChunkLocked(ctx, arrayPath, indices, raw)
}

// ReadChunkRaw reads and decompresses one full chunk by its grid indices,
// without fill-value synthesis for missing chunks — used by
// internal/rechunk when enumerating a source array's existing chunks.
func (s *Store) ReadChunkRaw(ctx context.Context, arrayPath string, meta *ZArray, indices []int) ([]byte, bool, error) {
	key := joinKey(arrayPath, ChunkKey(indices))
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: read chunk %s: %w", key, err)
	}
	defer r.Close()
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("store: read chunk %s: %w", key, err)
	}
	if meta.Compressor == nil {
		return compressed, true, nil
	}
	raw, err := decompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("store: decompress chunk %s: %w", key, err)
	}
	return raw, true, nil
}

// WriteChunkRaw compresses and writes one full chunk by its grid indices,
// under the array's lock — used by internal/rechunk when materializing the
// destination array's chunks.
func (s *Store) WriteChunkRaw(ctx context.Context, arrayPath string, indices []int, raw []byte) error {
	return s.writeChunk(ctx, arrayPath, indices, raw)
}
