package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/starford/inkmirror/internal/decoder"
	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/storage"
)

// Writer creates or overwrites the destination note for a source file.
type Writer struct {
	dest      destination.Provider
	resources *Resources
	reflow    atomic.Bool
}

func NewWriter(dest destination.Provider, resources *Resources, reflow bool) *Writer {
	w := &Writer{dest: dest, resources: resources}
	w.reflow.Store(reflow)
	return w
}

// SetReflow switches between reflowed paragraphs and raw page text for
// notes written after the call.
func (w *Writer) SetReflow(on bool) { w.reflow.Store(on) }

// Reflow reports the current text mode.
func (w *Writer) Reflow() bool { return w.reflow.Load() }

// Write stores the decoded pages of rel as a note and returns its id. When
// prior is set the note is overwritten in place after its orphaned resources
// are removed; otherwise a new note is created in folderID.
func (w *Writer) Write(ctx context.Context, folderID string, prior *models.Note, rel string, pages []decoder.Page, scratch *storage.FS) (string, error) {
	title := NoteTitle(rel)

	if prior != nil {
		if _, err := w.resources.DeleteOrphans(ctx, prior.ID); err != nil {
			return "", err
		}
	}

	resources, err := w.resources.Create(ctx, pages, scratch, rel)
	if err != nil {
		return "", err
	}
	body := AssembleBody(pages, resources, w.reflow.Load())

	if prior != nil {
		if _, err := w.dest.UpdateNote(ctx, prior.ID, title, body); err != nil {
			return "", fmt.Errorf("reconcile: update note %s: %w", prior.ID, err)
		}
		return prior.ID, nil
	}
	note, err := w.dest.CreateNote(ctx, folderID, title, body)
	if err != nil {
		return "", fmt.Errorf("reconcile: create note: %w", err)
	}
	return note.ID, nil
}

// AssembleBody renders a note body: the text of every page that has any,
// each followed by a blank line, then one image embed per resource.
func AssembleBody(pages []decoder.Page, resources []models.Resource, reflow bool) string {
	var b strings.Builder
	for _, p := range pages {
		text := p.Text()
		if reflow {
			text = p.Paragraphs()
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	for _, r := range resources {
		fmt.Fprintf(&b, "![%s](:/%s)\n", r.Title, r.ID)
	}
	return b.String()
}
