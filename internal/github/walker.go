package github

import (
	"context"
	"iter"
	"slices"
)

// Walker enumerates the eligible files of a repository through the
// contents API.
type Walker struct {
	r *requester
}

// NewWalker creates a Walker.
func NewWalker(clients *Clients, opts Options) *Walker {
	return &Walker{r: newRequester(clients, opts)}
}

// Walk lazily yields every eligible file of the repository at repoURL.
// Directories are visited from an explicit stack, so memory grows with the
// number of pending directories rather than with the tree. A listing error
// is yielded once and ends the sequence; so does cancellation. A file that
// cannot be fetched is yielded as a *FileError and the walk goes on.
// Breaking out of the range loop stops traversal.
func (w *Walker) Walk(ctx context.Context, repoURL, credential string) iter.Seq2[FileRecord, error] {
	return func(yield func(FileRecord, error) bool) {
		ref, err := ParseRepoURL(repoURL)
		if err != nil {
			yield(FileRecord{}, err)
			return
		}
		client := w.r.clients.For(credential)

		type pending struct {
			path  string
			depth int
		}
		stack := []pending{{path: "", depth: 0}}

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield(FileRecord{}, err)
				return
			}

			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := w.r.listDir(ctx, client, ref, dir.path)
			if err != nil {
				yield(FileRecord{}, listingError(err, dir.path, credential))
				return
			}

			files, dirs := w.r.partition(entries, dir.depth)
			for _, f := range files {
				content, err := w.r.fetchFile(ctx, client, ref, f.GetPath())
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						yield(FileRecord{}, ctxErr)
						return
					}
					if !yield(FileRecord{Path: f.GetPath()}, &FileError{Path: f.GetPath(), Err: err}) {
						return
					}
					continue
				}
				if !yield(FileRecord{Path: f.GetPath(), Content: content}, nil) {
					return
				}
			}

			// Push in reverse so siblings are visited in listing order.
			for _, d := range slices.Backward(dirs) {
				stack = append(stack, pending{path: d, depth: dir.depth + 1})
			}
		}
	}
}
