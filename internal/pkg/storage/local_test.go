package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoragePutDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "http://localhost:8080/uploads/")
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	ctx := context.Background()
	key := "products/latte/original.jpg"
	if err := s.Put(ctx, key, strings.NewReader("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "products", "latte", "original.jpg"))
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected file content %q (%v)", data, err)
	}

	if got := s.GetURL(key); got != "http://localhost:8080/uploads/products/latte/original.jpg" {
		t.Fatalf("unexpected url %s", got)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost/uploads")
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if err := s.Put(context.Background(), "../escape.txt", strings.NewReader("x"), "text/plain"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}
