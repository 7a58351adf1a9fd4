// internal/runner/revision.go
package runner

import (
	"github.com/go-git/go-git/v5"
)

// revisionUnknown is reported when dir is not inside a git repository or
// the repository has no commits yet.
const revisionUnknown = "unknown"

// shortHashLen matches the abbreviation git itself settles on for
// repositories of this size.
const shortHashLen = 12

// Revision returns the short hash of HEAD for the repository containing
// dir, walking up the tree the way git does. Runs are expected to happen
// inside a checkout, but a missing repository degrades to a placeholder
// rather than an error; the revision only annotates reports.
func Revision(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return revisionUnknown
	}
	head, err := repo.Head()
	if err != nil {
		return revisionUnknown
	}
	return head.Hash().String()[:shortHashLen]
}
