package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndRemoveLifecycle(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "upload_abc.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "upload_abc.png" {
		t.Fatalf("key = %q", key)
	}
	if !store.Exists(key) {
		t.Fatal("written file does not exist")
	}

	f, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()

	if err := store.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if store.Exists(key) {
		t.Fatal("file still exists after Remove")
	}
	// Removing again is a no-op.
	if err := store.Remove(key); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestWriteRejectsTraversalKeys(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileStore(filepath.Join(base, "uploads"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"", "../escape.txt", "a/../../escape.txt", "."} {
		if _, err := store.Write(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("Write accepted key %q", key)
		}
	}
	if entries, _ := os.ReadDir(base); len(entries) != 1 {
		t.Fatalf("unexpected files outside the store root: %d entries", len(entries))
	}
}
