package testutil

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/paging"
)

var resourceRefRe = regexp.MustCompile(`\(:/([0-9A-Za-z_-]+)\)`)

// Destination is an in-memory destination store. It paginates listings with
// PageSize, records every call in Calls ("Method:arg,arg") and links
// resources to notes by the ":/id" references in note bodies, the way the
// real store does.
type Destination struct {
	mu sync.Mutex

	PageSize int
	Now      func() time.Time
	// Fail makes every call to the named method return the error.
	Fail map[string]error

	Folders   []models.Folder
	Notes     []models.Note
	Resources []models.Resource
	// Links maps resource id to the ids of the notes referencing it.
	Links map[string][]string

	Calls  []string
	nextID int
}

var _ destination.Provider = (*Destination)(nil)

// NewDestination returns an empty store with a page size of 2.
func NewDestination() *Destination {
	return &Destination{
		PageSize: 2,
		Now:      time.Now,
		Fail:     map[string]error{},
		Links:    map[string][]string{},
	}
}

// AddFolder seeds a folder.
func (d *Destination) AddFolder(id, parentID, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Folders = append(d.Folders, models.Folder{ID: id, ParentID: parentID, Title: title})
}

// AddNote seeds a note.
func (d *Destination) AddNote(id, parentID, title string, updated time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Notes = append(d.Notes, models.Note{ID: id, ParentID: parentID, Title: title, UpdatedTime: updated})
}

// AddResource seeds a resource referenced by the given notes.
func (d *Destination) AddResource(id, title string, noteIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Resources = append(d.Resources, models.Resource{ID: id, Title: title})
	d.Links[id] = append([]string(nil), noteIDs...)
}

// CallCount returns how many recorded calls start with prefix.
func (d *Destination) CallCount(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// CallsWithPrefix returns the recorded calls starting with prefix, in order.
func (d *Destination) CallsWithPrefix(prefix string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (d *Destination) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = nil
}

// Note returns a copy of the note with the given id.
func (d *Destination) Note(id string) (models.Note, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return models.Note{}, false
}

// HasResource reports whether the resource still exists.
func (d *Destination) HasResource(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.ContainsFunc(d.Resources, func(r models.Resource) bool { return r.ID == id })
}

func (d *Destination) record(method string, args ...string) error {
	d.Calls = append(d.Calls, method+":"+strings.Join(args, ","))
	return d.Fail[method]
}

func (d *Destination) newID(prefix string) string {
	d.nextID++
	return fmt.Sprintf("%s%d", prefix, d.nextID)
}

func pageOf[T any](items []T, page, size int) paging.Page[T] {
	start := (page - 1) * size
	if start >= len(items) {
		return paging.Page[T]{}
	}
	end := min(start+size, len(items))
	return paging.Page[T]{Items: slices.Clone(items[start:end]), HasMore: end < len(items)}
}

func (d *Destination) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("Ping")
}

func (d *Destination) GetFolder(_ context.Context, id string) (*models.Folder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("GetFolder", id); err != nil {
		return nil, err
	}
	for _, f := range d.Folders {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
}

func (d *Destination) ListFolders(_ context.Context, page int) (paging.Page[models.Folder], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ListFolders", fmt.Sprint(page)); err != nil {
		return paging.Page[models.Folder]{}, err
	}
	return pageOf(d.Folders, page, d.PageSize), nil
}

func (d *Destination) CreateFolder(_ context.Context, parentID, title string) (*models.Folder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateFolder", parentID, title); err != nil {
		return nil, err
	}
	f := models.Folder{ID: d.newID("folder-"), ParentID: parentID, Title: title}
	d.Folders = append(d.Folders, f)
	return &f, nil
}

func (d *Destination) ListNotes(_ context.Context, folderID string, page int) (paging.Page[models.Note], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ListNotes", folderID, fmt.Sprint(page)); err != nil {
		return paging.Page[models.Note]{}, err
	}
	var in []models.Note
	for _, n := range d.Notes {
		if n.ParentID == folderID {
			in = append(in, models.Note{ID: n.ID, Title: n.Title})
		}
	}
	return pageOf(in, page, d.PageSize), nil
}

func (d *Destination) GetNote(_ context.Context, id string) (*models.Note, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("GetNote", id); err != nil {
		return nil, err
	}
	for _, n := range d.Notes {
		if n.ID == id {
			return &models.Note{ID: n.ID, Title: n.Title, UpdatedTime: n.UpdatedTime}, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
}

func (d *Destination) CreateNote(_ context.Context, parentID, title, body string) (*models.Note, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateNote", parentID, title); err != nil {
		return nil, err
	}
	n := models.Note{ID: d.newID("note-"), ParentID: parentID, Title: title, Body: body, UpdatedTime: d.Now()}
	d.Notes = append(d.Notes, n)
	d.relink(n.ID, body)
	return &n, nil
}

func (d *Destination) UpdateNote(_ context.Context, id, title, body string) (*models.Note, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("UpdateNote", id, title); err != nil {
		return nil, err
	}
	for i := range d.Notes {
		if d.Notes[i].ID == id {
			d.Notes[i].Title = title
			d.Notes[i].Body = body
			d.Notes[i].UpdatedTime = d.Now()
			d.relink(id, body)
			n := d.Notes[i]
			return &n, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
}

// relink makes the note reference exactly the resources named in body.
func (d *Destination) relink(noteID, body string) {
	refs := map[string]bool{}
	for _, m := range resourceRefRe.FindAllStringSubmatch(body, -1) {
		refs[m[1]] = true
	}
	for resID, notes := range d.Links {
		notes = slices.DeleteFunc(notes, func(n string) bool { return n == noteID })
		if refs[resID] {
			notes = append(notes, noteID)
		}
		d.Links[resID] = notes
	}
}

func (d *Destination) ListNoteResources(_ context.Context, noteID string, page int) (paging.Page[models.Resource], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ListNoteResources", noteID, fmt.Sprint(page)); err != nil {
		return paging.Page[models.Resource]{}, err
	}
	var in []models.Resource
	for _, r := range d.Resources {
		if slices.Contains(d.Links[r.ID], noteID) {
			in = append(in, r)
		}
	}
	return pageOf(in, page, d.PageSize), nil
}

func (d *Destination) ListResourceNotes(_ context.Context, resourceID string, page int) (paging.Page[models.Note], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ListResourceNotes", resourceID, fmt.Sprint(page)); err != nil {
		return paging.Page[models.Note]{}, err
	}
	var in []models.Note
	for _, id := range d.Links[resourceID] {
		in = append(in, models.Note{ID: id})
	}
	return pageOf(in, page, d.PageSize), nil
}

func (d *Destination) CreateResource(_ context.Context, title, path string) (*models.Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateResource", title); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("resource file: %w", err)
	}
	r := models.Resource{ID: d.newID("res"), Title: title}
	d.Resources = append(d.Resources, r)
	d.Links[r.ID] = nil
	return &r, nil
}

func (d *Destination) DeleteResource(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("DeleteResource", id); err != nil {
		return err
	}
	d.Resources = slices.DeleteFunc(d.Resources, func(r models.Resource) bool { return r.ID == id })
	delete(d.Links, id)
	return nil
}
