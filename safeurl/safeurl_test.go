package safeurl

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr error
	}{
		{"https://example.com/page", nil},
		{"http://93.184.216.34/", nil},
		{"ftp://example.com/file", ErrUnsafeScheme},
		{"http://127.0.0.1:8080/admin", ErrSSRF},
		{"http://10.0.0.5/", ErrSSRF},
		{"http://192.168.1.1/", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://0.0.0.0/", ErrSSRF},
	}
	for _, tc := range cases {
		err := ValidateURL(tc.url)
		if tc.wantErr == nil && err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", tc.url, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tc.url, err, tc.wantErr)
		}
	}
}

func TestSafePath(t *testing.T) {
	if _, err := SafePath("/data", "../etc/passwd"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("traversal not detected: %v", err)
	}
	p, err := SafePath("/data", "site_1/shot.jpg")
	if err != nil {
		t.Fatalf("SafePath: %v", err)
	}
	if !strings.HasPrefix(p, "/data/") {
		t.Errorf("path %q escapes base", p)
	}
}

func TestLimitedReadAll(t *testing.T) {
	if _, err := LimitedReadAll(strings.NewReader("abcdef"), 3); err == nil {
		t.Error("oversized read should fail")
	}
	data, err := LimitedReadAll(strings.NewReader("abc"), 3)
	if err != nil || string(data) != "abc" {
		t.Errorf("got %q, %v", data, err)
	}
}

func TestTokenEqual(t *testing.T) {
	if !TokenEqual("secret", "secret") {
		t.Error("equal tokens should match")
	}
	if TokenEqual("secret", "secre") {
		t.Error("different tokens should not match")
	}
}
