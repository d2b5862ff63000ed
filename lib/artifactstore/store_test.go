// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"filippo.io/age"
)

// storeFactories returns every Store implementation and decorator stack
// so the contract tests run against each of them.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"filesystem": func(t *testing.T) Store {
			store, err := OpenFilesystem(filepath.Join(t.TempDir(), "store"))
			if err != nil {
				t.Fatalf("OpenFilesystem: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
		"compressed_zstd": func(t *testing.T) Store {
			return NewCompressed(NewMemory(), CompressionZstd)
		},
		"compressed_auto": func(t *testing.T) Store {
			return NewCompressed(NewMemory(), CompressionAuto)
		},
		"encrypted": func(t *testing.T) Store {
			identity, err := age.GenerateX25519Identity()
			if err != nil {
				t.Fatal(err)
			}
			return NewEncrypted(NewMemory(), identity)
		},
		"compressed_encrypted_filesystem": func(t *testing.T) Store {
			identity, err := age.GenerateX25519Identity()
			if err != nil {
				t.Fatal(err)
			}
			filesystem, err := OpenFilesystem(filepath.Join(t.TempDir(), "store"))
			if err != nil {
				t.Fatalf("OpenFilesystem: %v", err)
			}
			t.Cleanup(func() { filesystem.Close() })
			return NewCompressed(NewEncrypted(filesystem, identity), CompressionLZ4)
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("save_load", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				value := bytes.Repeat([]byte("manifest "), 100)

				if err := store.Save(ctx, "manifests/library/app/latest.json", value); err != nil {
					t.Fatalf("Save: %v", err)
				}
				loaded, err := store.Load(ctx, "manifests/library/app/latest.json")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if !bytes.Equal(loaded, value) {
					t.Errorf("Load returned %d bytes, want %d", len(loaded), len(value))
				}
			})

			t.Run("empty_value", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				if err := store.Save(ctx, "blobs/empty", nil); err != nil {
					t.Fatalf("Save: %v", err)
				}
				loaded, err := store.Load(ctx, "blobs/empty")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if len(loaded) != 0 {
					t.Errorf("Load returned %d bytes, want 0", len(loaded))
				}
				exists, err := store.Exists(ctx, "blobs/empty")
				if err != nil || !exists {
					t.Errorf("Exists = %v, %v; want true", exists, err)
				}
			})

			t.Run("missing", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				_, err := store.Load(ctx, "blobs/sha256:missing")
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Load missing: error = %v, want ErrNotFound", err)
				}
				exists, err := store.Exists(ctx, "blobs/sha256:missing")
				if err != nil || exists {
					t.Errorf("Exists missing = %v, %v; want false, nil", exists, err)
				}
			})

			t.Run("overwrite", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				if err := store.Save(ctx, "torrents/a.torrent", []byte("first")); err != nil {
					t.Fatal(err)
				}
				if err := store.Save(ctx, "torrents/a.torrent", []byte("second")); err != nil {
					t.Fatal(err)
				}
				loaded, err := store.Load(ctx, "torrents/a.torrent")
				if err != nil {
					t.Fatal(err)
				}
				if string(loaded) != "second" {
					t.Errorf("Load after overwrite = %q, want %q", loaded, "second")
				}
			})

			t.Run("delete", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				if err := store.Save(ctx, "blobs/x", []byte("x")); err != nil {
					t.Fatal(err)
				}
				if err := store.Delete(ctx, "blobs/x"); err != nil {
					t.Fatalf("Delete: %v", err)
				}
				if _, err := store.Load(ctx, "blobs/x"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Load after Delete: error = %v, want ErrNotFound", err)
				}
				if err := store.Delete(ctx, "blobs/x"); err != nil {
					t.Errorf("Delete of absent key: %v", err)
				}
			})

			t.Run("invalid_keys", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				for _, key := range []string{"", "/abs", "a/../b", "a//b", "./a", "a/"} {
					if err := store.Save(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
						t.Errorf("Save(%q): error = %v, want ErrInvalidKey", key, err)
					}
					if _, err := store.Load(ctx, key); !errors.Is(err, ErrInvalidKey) {
						t.Errorf("Load(%q): error = %v, want ErrInvalidKey", key, err)
					}
				}
			})

			t.Run("concurrent_identical_saves", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				value := []byte("identical content written by many writers")

				var wg sync.WaitGroup
				errs := make(chan error, 16)
				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						errs <- store.Save(ctx, "blobs/shared", value)
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					if err != nil {
						t.Fatalf("concurrent Save: %v", err)
					}
				}

				loaded, err := store.Load(ctx, "blobs/shared")
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(loaded, value) {
					t.Errorf("Load = %q, want %q", loaded, value)
				}
			})
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	value := []byte("original")
	if err := store.Save(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'X'

	loaded, _ := store.Load(ctx, "k")
	if string(loaded) != "original" {
		t.Errorf("stored value changed through caller's slice: %q", loaded)
	}
	loaded[0] = 'Y'
	again, _ := store.Load(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value changed through loaded slice: %q", again)
	}
	if store.Len() != 1 || len(store.Keys()) != 1 {
		t.Errorf("Len = %d, Keys = %v", store.Len(), store.Keys())
	}
}
