// Package reconcile mirrors the source note tree onto the destination store:
// folder paths, note matching, page resources and the per-pass driver.
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

// SplitDir returns the directory segments of a relative source path.
// Both the OS separator and "/" split segments.
func SplitDir(rel string) []string {
	dir := filepath.Dir(filepath.FromSlash(rel))
	if dir == "." || dir == "" {
		return nil
	}
	fields := strings.FieldsFunc(dir, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "." {
			out = append(out, f)
		}
	}
	return out
}

type folderKey struct {
	parent string
	title  string
}

// FolderIndex maps (parent id, title) to a folder id. When the store holds
// several folders with the same title under one parent, the first one in
// listing order is kept.
type FolderIndex struct {
	byKey map[folderKey]string
}

// NewFolderIndex indexes folders in the given order.
func NewFolderIndex(folders []models.Folder) *FolderIndex {
	idx := &FolderIndex{byKey: make(map[folderKey]string, len(folders))}
	for _, f := range folders {
		idx.Add(f)
	}
	return idx
}

// LoadFolderIndex reads every folder from the destination.
func LoadFolderIndex(ctx context.Context, dest destination.Provider) (*FolderIndex, error) {
	folders, err := paging.ReadAll[models.Folder](ctx, dest.ListFolders)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load folders: %w", err)
	}
	return NewFolderIndex(folders), nil
}

// Lookup returns the id of the folder titled title under parent.
func (x *FolderIndex) Lookup(parent, title string) (string, bool) {
	id, ok := x.byKey[folderKey{parent, title}]
	return id, ok
}

// Add records f unless a folder with the same parent and title is already known.
func (x *FolderIndex) Add(f models.Folder) {
	k := folderKey{f.ParentID, f.Title}
	if _, ok := x.byKey[k]; !ok {
		x.byKey[k] = f.ID
	}
}

// Len returns the number of indexed (parent, title) pairs.
func (x *FolderIndex) Len() int { return len(x.byKey) }

// Resolver finds or creates the folder chain mirroring a source directory.
type Resolver struct {
	dest  destination.Provider
	index *FolderIndex
}

// NewResolver returns a resolver working from index. The index is updated
// with every folder the resolver creates.
func NewResolver(dest destination.Provider, index *FolderIndex) *Resolver {
	return &Resolver{dest: dest, index: index}
}

// Resolve returns the id of the folder for the directory of rel under rootID,
// creating missing folders top-down. Existing folders are never renamed or
// deleted.
func (r *Resolver) Resolve(ctx context.Context, rel, rootID string) (string, error) {
	current := rootID
	for _, seg := range SplitDir(rel) {
		if id, ok := r.index.Lookup(current, seg); ok {
			current = id
			continue
		}
		f, err := r.dest.CreateFolder(ctx, current, seg)
		if err != nil {
			return "", fmt.Errorf("reconcile: create folder %q: %w", seg, err)
		}
		r.index.Add(*f)
		current = f.ID
	}
	return current, nil
}
