package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
)

// forceFlushKey is the sentinel spec.md §4.F writes and immediately deletes
// to force any lazily-buffered writer in the bucket implementation to
// flush before metadata is consolidated.
const forceFlushKey = ".zforceflush"

// Finalize flushes the store and writes consolidated metadata at the root
// — spec.md §4.F, component F of the pipeline.
func (s *Store) Finalize(ctx context.Context) error {
	if err := s.bucket.WriteAll(ctx, forceFlushKey, []byte("1"), nil); err != nil {
		return fmt.Errorf("store: force-flush: %w", err)
	}
	if err := s.bucket.Delete(ctx, forceFlushKey); err != nil {
		return fmt.Errorf("store: force-flush cleanup: %w", err)
	}
	return s.ConsolidateMetadata(ctx)
}

// ConsolidateMetadata walks every key in the store and assembles the single
// ".zmetadata" document at root listing every ".zgroup", ".zarray", and
// ".zattrs" — the "Consolidated metadata" glossary entry.
func (s *Store) ConsolidateMetadata(ctx context.Context) error {
	metadata := map[string]json.RawMessage{}

	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("store: list keys: %w", err)
		}
		key := obj.Key
		if !isMetadataKey(key) {
			continue
		}
		raw, err := s.ReadKey(ctx, key)
		if err != nil {
			return err
		}
		metadata[key] = raw
	}

	doc := consolidatedDoc{ZarrConsolidatedFormat: 1, Metadata: metadata}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal consolidated metadata: %w", err)
	}
	return s.bucket.WriteAll(ctx, ".zmetadata", payload, nil)
}

func isMetadataKey(key string) bool {
	return strings.HasSuffix(key, ".zgroup") || strings.HasSuffix(key, ".zarray") || strings.HasSuffix(key, ".zattrs")
}

// ReadKey reads one raw key's bytes from the store, for introspecting
// arbitrary metadata documents (e.g. the consolidated ".zmetadata" itself).
func (s *Store) ReadKey(ctx context.Context, key string) (json.RawMessage, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	return json.RawMessage(raw), nil
}
