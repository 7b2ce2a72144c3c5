package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/sitewatch/safeurl"
)

// FS stores blobs on the local filesystem and maps them to public URLs
// under a configured base (typically a static file server or CDN prefix).
type FS struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewFS creates a filesystem Store rooted at dir. Returned public URLs are
// baseURL + "/" + key.
func NewFS(dir, baseURL string, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Put writes data under dir/key. Keys are slash-separated and validated
// against path traversal.
func (s *FS) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	path, err := safeurl.SafePath(s.dir, key)
	if err != nil {
		return "", fmt.Errorf("blob: key %q: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the file behind publicURL. URLs outside the configured
// base, malformed keys, and already-deleted files are logged and ignored.
func (s *FS) Delete(_ context.Context, publicURL string) error {
	if publicURL == "" {
		return nil
	}
	key, ok := strings.CutPrefix(publicURL, s.baseURL+"/")
	if !ok {
		s.logger.Warn("blob: delete skipped, URL outside base", "url", publicURL)
		return nil
	}
	path, err := safeurl.SafePath(s.dir, key)
	if err != nil {
		s.logger.Warn("blob: delete skipped, unsafe key", "url", publicURL, "error", err)
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove %s: %w", key, err)
	}
	return nil
}
