package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/decoder"
	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/notify"
	"github.com/starford/inkmirror/internal/paging"
	"github.com/starford/inkmirror/internal/storage"
)

// Resources renders page images and manages the resources attached to notes.
type Resources struct {
	dest   destination.Provider
	sink   notify.Sink
	logger *slog.Logger
}

func NewResources(dest destination.Provider, sink notify.Sink, logger *slog.Logger) *Resources {
	return &Resources{dest: dest, sink: sink, logger: logger}
}

// PageImageName is the scratch file name of page i of noteFile.
func PageImageName(noteFile string, i int) string {
	return fmt.Sprintf("%s-%d.png", noteFile, i)
}

// Create renders every page to the scratch store and uploads each image as a
// new resource. Pages that fail to render or cannot be written to the scratch
// store are reported and produce no resource; the result keeps page order.
func (r *Resources) Create(ctx context.Context, pages []decoder.Page, scratch *storage.FS, noteFile string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(pages))
	for i, page := range pages {
		name := PageImageName(noteFile, i)
		abs, err := renderToFile(page, scratch, name)
		if err != nil {
			r.logger.Error("sync: render failed",
				slog.String("file", noteFile), slog.Int("page", i), slog.String("error", err.Error()))
			r.sink.Notify(notify.Warning, fmt.Sprintf("could not render page %d of %s: %v", i, noteFile, err))
			continue
		}
		res, err := r.dest.CreateResource(ctx, filepath.ToSlash(name), abs)
		if err != nil {
			return out, fmt.Errorf("reconcile: upload %s: %w", name, err)
		}
		out = append(out, *res)
	}
	return out, nil
}

// renderToFile encodes page as PNG into the scratch store and returns the
// absolute path of the written image.
func renderToFile(page decoder.Page, scratch *storage.FS, name string) (string, error) {
	data, err := renderPNG(page)
	if err != nil {
		return "", err
	}
	if err := scratch.Write(name, data); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", apperr.ErrRender, name, err)
	}
	abs, err := scratch.Abs(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrRender, err)
	}
	return abs, nil
}

func renderPNG(page decoder.Page) ([]byte, error) {
	img, err := page.Image()
	if err != nil {
		if errors.Is(err, apperr.ErrRender) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrRender, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: page has no image", apperr.ErrRender)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", apperr.ErrRender, err)
	}
	return buf.Bytes(), nil
}

// DeleteOrphans deletes the resources of noteID that no other note
// references and returns how many were deleted. The first API failure stops
// the sweep; resources deleted before it stay deleted.
func (r *Resources) DeleteOrphans(ctx context.Context, noteID string) (int, error) {
	resources, err := paging.ReadAll(ctx, func(ctx context.Context, page int) (paging.Page[models.Resource], error) {
		return r.dest.ListNoteResources(ctx, noteID, page)
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile: list resources of %s: %w", noteID, err)
	}

	deleted := 0
	for _, res := range resources {
		notes, err := paging.ReadAll(ctx, func(ctx context.Context, page int) (paging.Page[models.Note], error) {
			return r.dest.ListResourceNotes(ctx, res.ID, page)
		})
		if err != nil {
			return deleted, fmt.Errorf("reconcile: list notes of resource %s: %w", res.ID, err)
		}
		if !onlyNote(notes, noteID) {
			continue
		}
		if err := r.dest.DeleteResource(ctx, res.ID); err != nil {
			return deleted, fmt.Errorf("reconcile: delete resource %s: %w", res.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// onlyNote reports whether the set of note ids in notes is exactly {id}.
func onlyNote(notes []models.Note, id string) bool {
	if len(notes) == 0 {
		return false
	}
	return !slices.ContainsFunc(notes, func(n models.Note) bool { return n.ID != id })
}
