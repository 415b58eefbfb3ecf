// Copyright 2025 Ditto Network

package wasmrunner

import (
	"errors"
	"testing"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	module := []byte("\x00asm fake module bytes")
	hash := Hash(module)

	if err := cache.Put(hash, module); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := cache.Get(hash)
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if string(got) != string(module) {
		t.Errorf("cached bytes = %q, want %q", got, module)
	}
}

func TestCachePutHashMismatch(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	err = cache.Put("deadbeef", []byte("anything"))
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestCacheGetMiss(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, ok := cache.Get("0000000000000000000000000000000000000000000000000000000000000000"); ok {
		t.Fatal("expected cache miss")
	}
}

func TestCachePutIdempotent(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	module := []byte("module-bytes")
	hash := Hash(module)

	if err := cache.Put(hash, module); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := cache.Put(hash, module); err != nil {
		t.Fatalf("second Put should be a no-op, got: %v", err)
	}
}
