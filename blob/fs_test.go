package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSPutDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewFS(dir, "https://cdn.example.com/shots", nil)
	ctx := context.Background()

	url, err := s.Put(ctx, "site_1/100.jpg", []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://cdn.example.com/shots/site_1/100.jpg" {
		t.Errorf("url = %q", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "site_1", "100.jpg")); err != nil {
		t.Errorf("file missing: %v", err)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "site_1", "100.jpg")); !os.IsNotExist(err) {
		t.Error("file should be gone")
	}
}

func TestFSDeleteIdempotent(t *testing.T) {
	s := NewFS(t.TempDir(), "https://cdn.example.com", nil)
	ctx := context.Background()

	// Missing object, foreign URL, and empty URL all succeed silently.
	for _, url := range []string{
		"https://cdn.example.com/never/stored.jpg",
		"https://elsewhere.example.com/x.jpg",
		"",
	} {
		if err := s.Delete(ctx, url); err != nil {
			t.Errorf("Delete(%q) = %v, want nil", url, err)
		}
	}
}

func TestFSPutRejectsTraversal(t *testing.T) {
	s := NewFS(t.TempDir(), "https://cdn.example.com", nil)
	if _, err := s.Put(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg"); err == nil {
		t.Error("traversal key should be rejected")
	}
}
