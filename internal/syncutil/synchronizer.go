// Package syncutil implements the named, cross-process synchronizer spec.md
// §5 describes: a lock keyed by the output store's root path (plus, for
// finer-grained concurrency, the array path within it) that mediates writes
// to the shared Zarr store. It plays the role zarr.ProcessSynchronizer plays
// in the retrieved harmony-netcdf-to-zarr collaborator, backed here by
// github.com/gofrs/flock advisory file locks so the guarantee holds across
// OS processes, not just goroutines within one.
package syncutil

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Synchronizer hands out per-key locks rooted at a single lock directory.
// One Synchronizer is constructed per output store and shared by every
// worker writing to it (spec.md §4.D: "Workers do not share memory beyond
// the signal namespace and the key–value store handle").
//
// Exclusivity has two layers. flock(2) exclusivity is scoped to the open
// file description, not the calling goroutine: a *flock.Flock's Lock()
// also no-ops once that instance's own "locked" flag is already true, so
// sharing one cached *flock.Flock across goroutines for the same key would
// let every goroutine "acquire" it the instant the first one does, with no
// real blocking between them. A fresh *flock.Flock is therefore opened on
// every Lock call (a new open file description each time, which the kernel
// does arbitrate correctly across both goroutines and processes). Layered
// in front of it, a per-key in-process sync.Mutex gives deterministic,
// allocation-free goroutine ordering without waiting on the filesystem.
type Synchronizer struct {
	dir string

	mu    sync.Mutex
	keyMu map[string]*sync.Mutex
}

// New creates a Synchronizer rooted at dir, which is created if absent. dir
// must be a local filesystem path (flock needs one); the callers in this
// module pass a temporary directory or the CLI's -sync-dir.
func New(dir string) (*Synchronizer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Synchronizer{dir: dir, keyMu: map[string]*sync.Mutex{}}, nil
}

// Lock acquires the named lock for key (typically an array path) and
// returns an unlock function. Safe for concurrent use by multiple
// goroutines locking distinct or identical keys.
func (s *Synchronizer) Lock(key string) (unlock func(), err error) {
	s.mu.Lock()
	km, ok := s.keyMu[key]
	if !ok {
		km = &sync.Mutex{}
		s.keyMu[key] = km
	}
	s.mu.Unlock()

	km.Lock()

	fl := flock.New(filepath.Join(s.dir, lockFileName(key)))
	if err := fl.Lock(); err != nil {
		km.Unlock()
		return nil, err
	}
	return func() {
		_ = fl.Unlock()
		km.Unlock()
	}, nil
}

// lockFileName derives a filesystem-safe lock file name from an arbitrary
// key (an array path may contain "/"), hashing it so nested paths never
// collide with flock's requirement for a plain file.
func lockFileName(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + ".lock"
}
