package scenario

import (
	"github.com/go-git/go-git/v5"
)

// UnknownRevision is recorded when the working tree is not a git repository.
const UnknownRevision = "unknown"

// SourceRevision returns the HEAD commit of the repository containing dir.
func SourceRevision(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return UnknownRevision
	}
	head, err := repo.Head()
	if err != nil {
		return UnknownRevision
	}
	return head.Hash().String()
}
