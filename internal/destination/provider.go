// Package destination defines the hierarchical note store the mirror writes
// into, and an HTTP client for the Joplin Data API that implements it.
package destination

import (
	"context"

	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/paging"
)

// Provider is the destination data API. List methods return a single page
// (1-based); callers drain them with the paging package.
type Provider interface {
	// Ping checks that the store is reachable and the credentials are accepted.
	Ping(ctx context.Context) error

	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	ListFolders(ctx context.Context, page int) (paging.Page[models.Folder], error)
	CreateFolder(ctx context.Context, parentID, title string) (*models.Folder, error)

	// ListNotes lists the notes directly inside a folder (id and title only).
	ListNotes(ctx context.Context, folderID string, page int) (paging.Page[models.Note], error)
	// GetNote fetches id, title and updated time of a single note.
	GetNote(ctx context.Context, id string) (*models.Note, error)
	CreateNote(ctx context.Context, parentID, title, body string) (*models.Note, error)
	UpdateNote(ctx context.Context, id, title, body string) (*models.Note, error)

	// ListNoteResources lists resources attached to a note.
	ListNoteResources(ctx context.Context, noteID string, page int) (paging.Page[models.Resource], error)
	// ListResourceNotes lists notes referencing a resource.
	ListResourceNotes(ctx context.Context, resourceID string, page int) (paging.Page[models.Note], error)
	// CreateResource uploads the file at path as a new resource.
	CreateResource(ctx context.Context, title, path string) (*models.Resource, error)
	DeleteResource(ctx context.Context, id string) error
}
