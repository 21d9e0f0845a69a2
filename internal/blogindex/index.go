// Package blogindex maintains blogs.json, the ordered list of every blog
// record kept next to the per-blog files.
package blogindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/storage"
)

// Manager reads and rewrites the index file. Every change re-serializes the
// whole index; there is no locking against other writers beyond the remote
// SHA check on the index file itself.
type Manager struct {
	store storage.Provider
}

// New returns a manager over store.
func New(store storage.Provider) *Manager {
	return &Manager{store: store}
}

// List returns the index. A missing index is an error matching
// apperr.ErrNotFound, a malformed one matches apperr.ErrParse.
func (m *Manager) List(ctx context.Context) ([]models.Blog, error) {
	data, err := m.store.Read(ctx, storage.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("blogindex: %w", err)
	}
	return Parse(data)
}

// Upsert replaces the entry with b's slug in place, or appends b.
func (m *Manager) Upsert(ctx context.Context, b models.Blog, message string) error {
	blogs, err := m.loadForUpdate(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range blogs {
		if blogs[i].Slug == b.Slug {
			blogs[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		blogs = append(blogs, b)
	}
	return m.write(ctx, blogs, message)
}

// Remove drops every entry with the given slug.
func (m *Manager) Remove(ctx context.Context, slug, message string) error {
	blogs, err := m.loadForUpdate(ctx)
	if err != nil {
		return err
	}
	kept := blogs[:0]
	for _, b := range blogs {
		if b.Slug != slug {
			kept = append(kept, b)
		}
	}
	return m.write(ctx, kept, message)
}

// loadForUpdate treats a missing index as empty so the first save into a
// fresh repository creates it.
func (m *Manager) loadForUpdate(ctx context.Context) ([]models.Blog, error) {
	blogs, err := m.List(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return []models.Blog{}, nil
	}
	return blogs, err
}

func (m *Manager) write(ctx context.Context, blogs []models.Blog, message string) error {
	data, err := models.Encode(blogs)
	if err != nil {
		return fmt.Errorf("blogindex: encode: %w", err)
	}
	if err := m.store.Write(ctx, storage.IndexPath, data, message); err != nil {
		return fmt.Errorf("blogindex: %w", err)
	}
	return nil
}

// Parse decodes an index file and validates every entry.
func Parse(data []byte) ([]models.Blog, error) {
	var blogs []models.Blog
	if err := json.Unmarshal(data, &blogs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrParse, storage.IndexPath, err)
	}
	if blogs == nil {
		return nil, fmt.Errorf("%w: %s: not a JSON array", apperr.ErrParse, storage.IndexPath)
	}
	for i := range blogs {
		if err := blogs[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: entry %d: %v", apperr.ErrParse, storage.IndexPath, i, err)
		}
	}
	return blogs, nil
}
