// Package storage defines the remote file store abstraction.
package storage

import "context"

// Blog repository layout.
const (
	IndexPath = "blogs.json"
	BlogDir   = "blogs"
	ImageDir  = "images"
)

// Provider reads and writes files in a remote repository on one branch.
type Provider interface {
	// Read returns the raw bytes at path. A missing file yields an error
	// matching apperr.ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write creates or overwrites path with content as one commit.
	Write(ctx context.Context, path string, content []byte, message string) error
	// URL returns the public address of path on the configured branch.
	URL(path string) string
}

// BlogPath returns the path of the record file for slug.
func BlogPath(slug string) string {
	return BlogDir + "/" + slug + ".json"
}

// ImagePath returns the path of the image file for slug.
func ImagePath(slug string) string {
	return ImageDir + "/" + slug + ".png"
}
