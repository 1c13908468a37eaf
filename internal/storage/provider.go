// Package storage is the vault file-system layer: every path is relative to
// the vault root and may not escape it.
package storage

import "github.com/starford/herald/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md note under dir, skipping hidden directories.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat describes the file at path without reading it.
	Stat(path string) (models.FileInfo, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Root is the absolute vault directory.
	Root() string
}
