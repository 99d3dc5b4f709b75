package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/paging"
)

// NoteTitle is the base name of rel without its extension.
func NoteTitle(rel string) string {
	base := filepath.Base(filepath.FromSlash(rel))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Matcher finds the destination note mirroring a source file.
type Matcher struct {
	dest destination.Provider
}

func NewMatcher(dest destination.Provider) *Matcher {
	return &Matcher{dest: dest}
}

// Match returns the first note in folderID titled NoteTitle(rel), with its
// updated time filled in, or nil when there is none.
func (m *Matcher) Match(ctx context.Context, folderID, rel string) (*models.Note, error) {
	title := NoteTitle(rel)
	fetch := func(ctx context.Context, page int) (paging.Page[models.Note], error) {
		return m.dest.ListNotes(ctx, folderID, page)
	}
	hit, ok, err := paging.Find(ctx, fetch, func(n models.Note) bool { return n.Title == title })
	if err != nil {
		return nil, fmt.Errorf("reconcile: list notes: %w", err)
	}
	if !ok {
		return nil, nil
	}
	note, err := m.dest.GetNote(ctx, hit.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: get note %s: %w", hit.ID, err)
	}
	return note, nil
}
