package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes avatars to disk.
//
// Files land in {root}/avatars/{name} and are served by the HTTP server
// under {urlPrefix}/avatars/{name}, e.g. "/uploads/avatars/avatar_x.png".
type LocalStore struct {
	root      string
	urlPrefix string
}

var _ AvatarStore = (*LocalStore)(nil)

// NewLocalStore creates the avatars directory under root if needed.
func NewLocalStore(root, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "avatars"), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating upload directory: %w", err)
	}
	return &LocalStore{root: root, urlPrefix: urlPrefix}, nil
}

// Root is the directory the HTTP layer should serve.
func (s *LocalStore) Root() string {
	return s.root
}

// Store writes data atomically: a temp file in the same directory is
// renamed into place, so a reader never sees a half-written image.
func (s *LocalStore) Store(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, "avatars")
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("storage: moving %s into place: %w", name, err)
	}

	return strings.TrimRight(s.urlPrefix, "/") + "/avatars/" + name, nil
}

// Delete removes the file behind url, which must carry this store's prefix.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	prefix := strings.TrimRight(s.urlPrefix, "/") + "/avatars/"
	name, ok := strings.CutPrefix(url, prefix)
	if !ok {
		return fmt.Errorf("storage: %q is not a local avatar URL", url)
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, "avatars", name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", name, err)
	}
	return nil
}
