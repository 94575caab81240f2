package gitinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestLookupOutsideRepository(t *testing.T) {
	revision, err := Lookup(t.TempDir())
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if revision.String() != "" {
		t.Fatalf("expected empty revision, got %q", revision.String())
	}
}

func TestLookupReadsHead(t *testing.T) {
	root := t.TempDir()
	repository, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit error: %v", err)
	}
	if revision, err := Lookup(root); err != nil || revision.Commit != "" {
		t.Fatalf("unborn branch should yield an empty revision, got %+v (%v)", revision, err)
	}

	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	worktree, err := repository.Worktree()
	if err != nil {
		t.Fatalf("Worktree error: %v", err)
	}
	if _, err := worktree.Add("main.go"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	hash, err := worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	nested := filepath.Join(root, "pkg")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	revision, err := Lookup(nested)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if revision.Commit != hash.String() {
		t.Fatalf("expected %s, got %s", hash, revision.Commit)
	}
	if revision.Branch == "" || len(revision.Short()) != shortHashLength {
		t.Fatalf("unexpected revision %+v", revision)
	}
	if revision.String() != revision.Branch+"@"+revision.Short() {
		t.Fatalf("unexpected rendering %q", revision.String())
	}
}
