package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("payload")

	if err := store.Put(context.Background(), "ABCDEF01.L1.jpg", Object{Data: payload, ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	lookup, err := store.Get(context.Background(), "ABCDEF01.L1.jpg")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if !lookup.Hit {
		t.Fatalf("expected hit after put")
	}
	if string(lookup.Object.Data) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(lookup.Object.Data))
	}
	if lookup.Object.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", lookup.Object.ContentType)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	lookup, err := store.Get(context.Background(), "missing.jpg")
	if err != nil {
		t.Fatalf("missing key should not be an error, got %v", err)
	}
	if lookup.Hit {
		t.Fatalf("expected miss")
	}
}

func TestFileStoreOverwriteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	key := "ABCDEF01.L2.jpg"
	for i := 0; i < 2; i++ {
		if err := store.Put(context.Background(), key, Object{Data: []byte("same")}); err != nil {
			t.Fatalf("put #%d error: %v", i, err)
		}
	}
	lookup, err := store.Get(context.Background(), key)
	if err != nil || !lookup.Hit || string(lookup.Object.Data) != "same" {
		t.Fatalf("unexpected lookup after repeated put: %+v, %v", lookup, err)
	}
}

func TestFileStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	filePath, err := fs.entryPath("dir.jpg")
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	lookup, err := store.Get(context.Background(), "dir.jpg")
	if err != nil || lookup.Hit {
		t.Fatalf("expected miss for directory, got %+v, %v", lookup, err)
	}
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"", "../escape.jpg", "a/b.jpg", `a\b.jpg`, ".cache-123"} {
		if err := store.Put(context.Background(), key, Object{Data: []byte("x")}); err == nil {
			t.Fatalf("expected put to reject key %q", key)
		}
		if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrStorage) {
			t.Fatalf("expected ErrStorage for key %q, got %v", key, err)
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	if err := store.Put(context.Background(), "ABCDEF01.L1.jpg", Object{Data: []byte("x")}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".cache-*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Get(ctx, "ABCDEF01.L1.jpg"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error for cancelled context, got %v", err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
