// Package storage persists uploaded avatar images and hands back the URL
// clients use to fetch them.
//
// Two backends implement AvatarStore:
//   - LocalStore writes under a directory the HTTP server exposes at /uploads
//   - S3Store puts objects in an S3-compatible bucket (AWS, MinIO)
package storage

import (
	"context"
	"fmt"
	"strings"
)

// AvatarStore is the blob-store collaborator of profile setup.
type AvatarStore interface {
	// Store saves data under name and returns the public URL or path.
	Store(ctx context.Context, name, contentType string, data []byte) (string, error)
	// Delete removes the object behind a URL returned by Store. Deleting
	// an object that is already gone is not an error.
	Delete(ctx context.Context, url string) error
}

// validName rejects names that could escape the avatar namespace.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("storage: invalid object name %q", name)
	}
	return nil
}
