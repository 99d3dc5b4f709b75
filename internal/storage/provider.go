// Package storage provides file-system access to the source note tree and
// to the scratch directory used for rendered page images.
package storage

import "github.com/starford/inkmirror/internal/models"

// Provider is the interface for source tree file operations.
type Provider interface {
	// List returns every file under the root whose name ends with ext,
	// skipping the directories named in exclude (relative to the root).
	List(ext string, exclude ...string) ([]models.SourceFile, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
}
