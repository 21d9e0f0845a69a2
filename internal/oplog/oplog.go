// Package oplog is the local append-only operations log. The blog service
// and the UI write to it; the UI can read it back or clear it.
package oplog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// File is an append-only log file safe for concurrent use.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens (creating if needed) the log file at path.
func Open(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("oplog: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("oplog: open %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

// Write appends p. It implements io.Writer for slog handlers.
func (l *File) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Write(p)
}

// Logger returns a text slog.Logger writing into the file.
func (l *File) Logger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{Level: level}))
}

// Read returns the whole log.
func (l *File) Read() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", fmt.Errorf("oplog: read: %w", err)
	}
	return string(data), nil
}

// Clear empties the log.
func (l *File) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("oplog: clear: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
