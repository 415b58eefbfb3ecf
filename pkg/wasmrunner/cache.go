// Copyright 2025 Ditto Network
//
// Package wasmrunner implements C3, the WASM Runner: content-addressed
// module caching plus sandboxed execution of guest WASM steps under
// wazero, a pure-Go WebAssembly runtime that needs no native toolchain or
// subprocess boundary to sandbox untrusted bytecode.

package wasmrunner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Cache is a content-addressed, write-once store of compiled WASM blobs
// on disk, keyed by the SHA-256 hash of the module bytes. Layout mirrors
// a git object store: the first two hex digits fan out into a
// subdirectory to keep any one directory from growing unbounded.
type Cache struct {
	root string
}

// NewCache roots a Cache at dir, creating it if necessary.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wasmrunner: create cache root: %w", err)
	}
	return &Cache{root: dir}, nil
}

func (c *Cache) pathFor(hash string) string {
	return filepath.Join(c.root, hash[:2], hash[2:]+".wasm")
}

// Hash returns the lowercase hex SHA-256 digest of module bytes.
func Hash(module []byte) string {
	sum := sha256.Sum256(module)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached module bytes for hash, or false if absent.
func (c *Cache) Get(hash string) ([]byte, bool) {
	data, err := os.ReadFile(c.pathFor(hash))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores module under its own hash, verifying it matches expectedHash
// (§4.3 "hash mismatch" edge case), and returns ErrHashMismatch otherwise.
// The write is atomic: module bytes land in a uniquely-named temp file
// first, then are renamed into place, so a half-written cache entry is
// never observable to a concurrent Get.
func (c *Cache) Put(expectedHash string, module []byte) error {
	actual := Hash(module)
	if actual != expectedHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expectedHash, actual)
	}

	dest := c.pathFor(actual)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("wasmrunner: create cache shard: %w", err)
	}

	tmp := filepath.Join(c.root, ".tmp."+uuid.NewString())
	if err := os.WriteFile(tmp, module, 0o444); err != nil {
		return fmt.Errorf("wasmrunner: write cache temp: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("wasmrunner: publish cache entry: %w", err)
	}
	return nil
}
