// Package models defines the domain types shared by the mirror components.
package models

import "time"

// SourceFile is one handwritten-note file found under the source root.
type SourceFile struct {
	Path    string    `json:"path"` // relative to the source root
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Folder is a destination notebook.
type Folder struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ParentID string `json:"parent_id"`
}

// Note is a destination note. Listings only fill ID and Title; UpdatedTime
// is set when the full record is fetched.
type Note struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	UpdatedTime time.Time `json:"updated_time"`
}

// Resource is a binary attachment (a rendered page image) in the destination store.
type Resource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SyncTarget pairs the destination root folder with the source root directory.
type SyncTarget struct {
	RootFolderID string `json:"root_folder_id"`
	SourceRoot   string `json:"source_root"`
}

// Outcome is the result of reconciling a single source file.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)
