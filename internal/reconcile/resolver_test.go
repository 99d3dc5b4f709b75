package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/testutil"
)

func TestSplitDir(t *testing.T) {
	tests := []struct {
		rel  string
		want []string
	}{
		{"file.note", nil},
		{"./file.note", nil},
		{"a/file.note", []string{"a"}},
		{"a/b/file.note", []string{"a", "b"}},
		{filepath.Join("x", "y", "z.note"), []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := SplitDir(tt.rel); !slices.Equal(got, tt.want) {
				t.Errorf("SplitDir(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func TestFolderIndex_FirstWins(t *testing.T) {
	idx := NewFolderIndex([]models.Folder{
		{ID: "f1", ParentID: "root", Title: "a"},
		{ID: "f2", ParentID: "root", Title: "a"},
		{ID: "f3", ParentID: "other", Title: "a"},
	})
	if id, _ := idx.Lookup("root", "a"); id != "f1" {
		t.Errorf("Lookup(root, a) = %q, want f1", id)
	}
	if id, _ := idx.Lookup("other", "a"); id != "f3" {
		t.Errorf("Lookup(other, a) = %q, want f3", id)
	}
	if _, ok := idx.Lookup("root", "A"); ok {
		t.Error("lookup must be case-sensitive")
	}
	idx.Add(models.Folder{ID: "f4", ParentID: "root", Title: "a"})
	if id, _ := idx.Lookup("root", "a"); id != "f1" {
		t.Errorf("Add replaced existing entry: %q", id)
	}
}

func TestLoadFolderIndex_ReadsAllPages(t *testing.T) {
	dest := testutil.NewDestination()
	dest.AddFolder("root", "", "Root")
	dest.AddFolder("f1", "root", "a")
	dest.AddFolder("f2", "f1", "b")
	dest.AddFolder("f3", "root", "c")
	dest.AddFolder("f4", "root", "d")

	idx, err := LoadFolderIndex(context.Background(), dest)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 5 {
		t.Errorf("Len = %d, want 5", idx.Len())
	}
	if n := dest.CallCount("ListFolders"); n != 3 {
		t.Errorf("ListFolders calls = %d, want 3", n)
	}
	if id, ok := idx.Lookup("f1", "b"); !ok || id != "f2" {
		t.Errorf("Lookup(f1, b) = %q, %v", id, ok)
	}
}

func TestResolve_CreatesMissingTopDown(t *testing.T) {
	dest := testutil.NewDestination()
	dest.AddFolder("root", "", "Root")
	ctx := context.Background()

	idx, _ := LoadFolderIndex(ctx, dest)
	r := NewResolver(dest, idx)

	id, err := r.Resolve(ctx, "a/b/file.note", "root")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"CreateFolder:root,a", "CreateFolder:folder-1,b"}
	if got := dest.CallsWithPrefix("CreateFolder"); !slices.Equal(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
	if id != "folder-2" {
		t.Errorf("id = %q, want folder-2", id)
	}

	// A second resolve uses the folders recorded in the index.
	again, err := r.Resolve(ctx, "a/b/other.note", "root")
	if err != nil {
		t.Fatal(err)
	}
	if again != id {
		t.Errorf("second resolve = %q, want %q", again, id)
	}
	if n := dest.CallCount("CreateFolder"); n != 2 {
		t.Errorf("CreateFolder calls = %d, want 2", n)
	}
}

func TestResolve_ExistingPathCreatesNothing(t *testing.T) {
	dest := testutil.NewDestination()
	dest.AddFolder("root", "", "Root")
	dest.AddFolder("fa", "root", "a")
	dest.AddFolder("fb", "fa", "b")
	ctx := context.Background()

	idx, _ := LoadFolderIndex(ctx, dest)
	id, err := NewResolver(dest, idx).Resolve(ctx, "a/b/file.note", "root")
	if err != nil {
		t.Fatal(err)
	}
	if id != "fb" {
		t.Errorf("id = %q, want fb", id)
	}
	if n := dest.CallCount("CreateFolder"); n != 0 {
		t.Errorf("CreateFolder calls = %d, want 0", n)
	}
}

func TestResolve_PartialPath(t *testing.T) {
	dest := testutil.NewDestination()
	dest.AddFolder("root", "", "Root")
	dest.AddFolder("fa", "root", "a")
	ctx := context.Background()

	idx, _ := LoadFolderIndex(ctx, dest)
	if _, err := NewResolver(dest, idx).Resolve(ctx, "a/b/file.note", "root"); err != nil {
		t.Fatal(err)
	}
	want := []string{"CreateFolder:fa,b"}
	if got := dest.CallsWithPrefix("CreateFolder"); !slices.Equal(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestResolve_RootLevelFile(t *testing.T) {
	dest := testutil.NewDestination()
	idx := NewFolderIndex(nil)
	id, err := NewResolver(dest, idx).Resolve(context.Background(), "file.note", "root")
	if err != nil || id != "root" {
		t.Errorf("Resolve = %q, %v; want root", id, err)
	}
}

func TestResolve_CreateError(t *testing.T) {
	dest := testutil.NewDestination()
	boom := errors.New("boom")
	dest.Fail["CreateFolder"] = boom

	_, err := NewResolver(dest, NewFolderIndex(nil)).Resolve(context.Background(), "a/file.note", "root")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
