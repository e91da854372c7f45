// Package store implements the Zarr v2 key–value store abstraction spec.md
// §3 and §4.F describe: group/array/attribute metadata encoding, chunk
// layout and compression, and consolidated-metadata finalization, over a
// *blob.Bucket from gocloud.dev/blob (the same library the retrieved
// TuSKan-go-zarr teacher uses for its read-only Dataset/Reader). Writes to
// a given array are mediated by internal/syncutil so concurrent workers
// (internal/workerpool) never corrupt a shared chunk.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/syncutil"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// Store is the exclusive owner of one output Zarr hierarchy, per spec.md
// §3's "Ownership" note; workers hold shared access to it mediated by sync.
type Store struct {
	bucket *blob.Bucket
	root   string
	sync   *syncutil.Synchronizer
}

// Open opens a key–value store at url — an existing "file://" directory
// (this package registers the fileblob driver), or a URL for any other
// gocloud.dev/blob driver the program registers itself — and wires a
// Synchronizer whose lock files live in the caller-supplied syncDir.
func Open(ctx context.Context, url, syncDir string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", url, err)
	}
	sync, err := syncutil.New(syncDir)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("store: synchronizer: %w", err)
	}
	return &Store{bucket: bucket, root: url, sync: sync}, nil
}

// New wraps an already-open bucket (the caller-supplied "output store
// handle" of spec.md §6) with a Synchronizer rooted at syncDir.
func New(bucket *blob.Bucket, root, syncDir string) (*Store, error) {
	sync, err := syncutil.New(syncDir)
	if err != nil {
		return nil, fmt.Errorf("store: synchronizer: %w", err)
	}
	return &Store{bucket: bucket, root: root, sync: sync}, nil
}

func (s *Store) Close() error { return s.bucket.Close() }

// Root returns the store's root URL/path, the synchronizer key namespace.
func (s *Store) Root() string { return s.root }

func groupKey(path string) string {
	return joinKey(path, ".zgroup")
}

func arrayMetaKey(path string) string {
	return joinKey(path, ".zarray")
}

func attrsKey(path string) string {
	return joinKey(path, ".zattrs")
}

func joinKey(path, leaf string) string {
	if path == "" || path == "/" {
		return leaf
	}
	trimmed := path
	for len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	return trimmed + "/" + leaf
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Attributes(ctx, key)
	if err == nil {
		return true, nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	return false, err
}

// EnsureGroup writes a ".zgroup" document at path if one is not already
// present — "ensure a corresponding Zarr group" of spec.md §4.E step 3.
func (s *Store) EnsureGroup(ctx context.Context, path string) error {
	key := groupKey(path)
	ok, err := s.exists(ctx, key)
	if err != nil {
		return fmt.Errorf("store: check group %s: %w", path, err)
	}
	if ok {
		return nil
	}
	doc, _ := json.Marshal(ZGroup{ZarrFormat: 2})
	return s.bucket.WriteAll(ctx, key, doc, nil)
}

// WriteAttrs merges attrs (from the input dataset) overridden by overrides
// (kwargs), then re-applies any attributes already present at path's
// ".zattrs" on top — spec.md §4.E step 3's "pre-existing attributes on the
// output win; kwargs to the attribute copy do win over input attributes".
func (s *Store) WriteAttrs(ctx context.Context, path string, attrs attrval.Map, overrides attrval.Map) error {
	key := attrsKey(path)

	merged := map[string]json.RawMessage{}
	for k, v := range attrs {
		raw, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("store: marshal attribute %s: %w", k, err)
		}
		merged[k] = raw
	}
	for k, v := range overrides {
		raw, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("store: marshal attribute override %s: %w", k, err)
		}
		merged[k] = raw
	}

	existing, err := s.ReadAttrs(ctx, path)
	if err != nil {
		return err
	}
	for k, v := range existing {
		merged[k] = v
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("store: marshal attrs at %s: %w", path, err)
	}
	return s.bucket.WriteAll(ctx, key, doc, nil)
}

// ReadAttrs reads the raw ".zattrs" document at path, or nil if none has
// been written yet. Used both by WriteAttrs' existing-wins merge and by
// callers introspecting a store (e.g. tests).
func (s *Store) ReadAttrs(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	key := attrsKey(path)
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
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return out, nil
}

// CopyAttrs writes attrs verbatim to path's ".zattrs", with no merge
// against any pre-existing document. Used by internal/rechunk, which
// re-emits a finalized source store's already-resolved attribute maps
// rather than re-applying WriteAttrs' existing-wins precedence a second
// time.
func (s *Store) CopyAttrs(ctx context.Context, path string, attrs map[string]json.RawMessage) error {
	if attrs == nil {
		return nil
	}
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("store: marshal attrs at %s: %w", path, err)
	}
	return s.bucket.WriteAll(ctx, attrsKey(path), doc, nil)
}
