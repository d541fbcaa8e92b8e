package github

import (
	"context"
	"sort"

	gogithub "github.com/google/go-github/v60/github"
)

// DefaultCommitLimit is how many of the latest commits are considered.
const DefaultCommitLimit = 15

// CommitPoller reads commit history and diffs.
type CommitPoller struct {
	r *requester
}

// NewCommitPoller creates a CommitPoller.
func NewCommitPoller(clients *Clients, opts Options) *CommitPoller {
	return &CommitPoller{r: newRequester(clients, opts)}
}

// LatestCommits returns up to limit commits from the default branch,
// newest first.
func (p *CommitPoller) LatestCommits(ctx context.Context, repoURL, credential string, limit int) ([]CommitInfo, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultCommitLimit
	}
	client := p.r.clients.For(credential)

	var listed []*gogithub.RepositoryCommit
	err = p.r.call(ctx, "listing commits of "+ref.String(), func(ctx context.Context) (*gogithub.Response, error) {
		opts := &gogithub.CommitsListOptions{ListOptions: gogithub.ListOptions{PerPage: limit}}
		commits, resp, err := client.Repositories.ListCommits(ctx, ref.Owner, ref.Name, opts)
		if err != nil {
			return resp, err
		}
		listed = commits
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]CommitInfo, 0, len(listed))
	for _, c := range listed {
		info := CommitInfo{
			Hash:         c.GetSHA(),
			Message:      c.GetCommit().GetMessage(),
			AuthorName:   c.GetCommit().GetAuthor().GetName(),
			AuthorAvatar: c.GetAuthor().GetAvatarURL(),
			Date:         c.GetCommit().GetAuthor().GetDate().Time,
		}
		result = append(result, info)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CommitDiff returns the unified diff of the commit sha.
func (p *CommitPoller) CommitDiff(ctx context.Context, repoURL, credential, sha string) (string, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}
	client := p.r.clients.For(credential)

	var diff string
	err = p.r.call(ctx, "fetching diff of "+sha, func(ctx context.Context) (*gogithub.Response, error) {
		raw, resp, err := client.Repositories.GetCommitRaw(ctx, ref.Owner, ref.Name, sha, gogithub.RawOptions{Type: gogithub.Diff})
		if err != nil {
			return resp, err
		}
		diff = raw
		return resp, nil
	})
	return diff, err
}
