// Package gitinfo reads the revision of the repository being summarized.
package gitinfo

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

const shortHashLength = 7

// Revision identifies the checked out commit.
type Revision struct {
	Commit string
	Branch string
}

// Short returns the abbreviated commit hash.
func (revision Revision) Short() string {
	if len(revision.Commit) <= shortHashLength {
		return revision.Commit
	}
	return revision.Commit[:shortHashLength]
}

// String renders the revision for the document footer, e.g. "main@1a2b3c4".
func (revision Revision) String() string {
	if revision.Commit == "" {
		return ""
	}
	if revision.Branch == "" {
		return revision.Short()
	}
	return revision.Branch + "@" + revision.Short()
}

// Lookup returns the HEAD revision of the repository containing path. A path
// outside any repository, or a repository without commits, yields a zero
// Revision and no error.
func Lookup(path string) (Revision, error) {
	absolutePath, absoluteError := filepath.Abs(path)
	if absoluteError != nil {
		return Revision{}, fmt.Errorf("resolve %s: %w", path, absoluteError)
	}
	repository, openError := git.PlainOpenWithOptions(absolutePath, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		if errors.Is(openError, git.ErrRepositoryNotExists) {
			return Revision{}, nil
		}
		return Revision{}, fmt.Errorf("open git repository at %s: %w", absolutePath, openError)
	}
	head, headError := repository.Head()
	if headError != nil {
		// unborn branch
		return Revision{}, nil
	}
	revision := Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		revision.Branch = head.Name().Short()
	}
	return revision, nil
}
