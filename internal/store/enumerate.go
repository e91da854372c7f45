package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
)

// ListArrays returns the path of every array (".zarray" key, path with the
// suffix stripped) under the store root — internal/rechunk's "Enumerate all
// groups under root" / "every variable in every group" (spec.md §4.G steps
// 1–2), restricted to arrays since only arrays carry chunks to rechunk.
func (s *Store) ListArrays(ctx context.Context) ([]string, error) {
	var paths []string
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: list keys: %w", err)
		}
		if strings.HasSuffix(obj.Key, ".zarray") {
			paths = append(paths, arrayPathFromKey(obj.Key))
		}
	}
	return paths, nil
}

func arrayPathFromKey(key string) string {
	path := strings.TrimSuffix(key, ".zarray")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	return "/" + path
}

// ListGroups returns the path of every group (".zgroup" key, path with the
// suffix stripped) under the store root — internal/rechunk's "Enumerate all
// groups under root" (spec.md §4.G step 1).
func (s *Store) ListGroups(ctx context.Context) ([]string, error) {
	var paths []string
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: list keys: %w", err)
		}
		if strings.HasSuffix(obj.Key, ".zgroup") {
			path := strings.TrimSuffix(obj.Key, ".zgroup")
			path = strings.TrimSuffix(path, "/")
			if path == "" {
				path = "/"
			} else {
				path = "/" + path
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// DeleteAll removes every key under the store, for the supervisor's
// guaranteed cleanup of the intermediate store once the rechunker's
// destination supersedes it (spec.md §4.G step 5, §3 "Lifecycle").
func (s *Store) DeleteAll(ctx context.Context) error {
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("store: list keys: %w", err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("store: delete %s: %w", obj.Key, err)
		}
	}
	return nil
}
