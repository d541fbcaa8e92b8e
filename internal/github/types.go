package github

import "time"

// FileRecord is one eligible file of a repository as yielded by the Walker.
type FileRecord struct {
	Path    string
	Content string
}

// CommitInfo is a commit as listed by the GitHub API.
type CommitInfo struct {
	Hash         string
	Message      string
	AuthorName   string
	AuthorAvatar string
	Date         time.Time
}

// RepoRef identifies a repository on GitHub.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}
