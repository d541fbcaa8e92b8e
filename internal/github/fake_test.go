package github

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/repolens/internal/retry"
)

// fakeRepo serves the contents API for repository o/r from an in-memory tree.
type fakeRepo struct {
	files    map[string]string
	symlinks []string
	large    map[string]bool
	token    string

	// failures makes the next n requests to a path answer with status.
	mu       sync.Mutex
	failures map[string]int
	status   int

	listings atomic.Int32
	fetches  atomic.Int32

	srv *httptest.Server
}

func newFakeRepo(t *testing.T, files map[string]string) *fakeRepo {
	t.Helper()
	f := &fakeRepo{files: files, large: map[string]bool{}, failures: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRepo) clients() *Clients {
	client := gogithub.NewClient(nil)
	client.BaseURL, _ = client.BaseURL.Parse(f.srv.URL + "/")
	return NewClients(client)
}

func (f *fakeRepo) failNext(p string, n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[p] = n
	f.status = status
}

func fastOptions() Options {
	return Options{Retry: &retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeRepo) serve(w http.ResponseWriter, r *http.Request) {
	// Like GitHub, a private repository is hidden behind 404 from anonymous
	// callers; a wrong credential gets 401.
	if f.token != "" {
		switch auth := r.Header.Get("Authorization"); {
		case auth == "":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		case auth != "Bearer "+f.token:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
	}

	if raw, ok := strings.CutPrefix(r.URL.Path, "/raw/"); ok {
		content, found := f.files[raw]
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
		return
	}

	p, ok := strings.CutPrefix(r.URL.Path, "/repos/o/r/contents")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	p = strings.Trim(p, "/")

	f.mu.Lock()
	if n := f.failures[p]; n > 0 {
		f.failures[p] = n - 1
		status := f.status
		f.mu.Unlock()
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}
	f.mu.Unlock()

	if content, isFile := f.files[p]; isFile {
		f.fetches.Add(1)
		writeJSON(w, http.StatusOK, f.fileEntry(p, content, true))
		return
	}

	entries := f.list(p)
	if entries == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	f.listings.Add(1)
	writeJSON(w, http.StatusOK, entries)
}

func (f *fakeRepo) fileEntry(p, content string, withContent bool) map[string]any {
	e := map[string]any{
		"type":         "file",
		"name":         path.Base(p),
		"path":         p,
		"size":         len(content),
		"download_url": f.srv.URL + "/raw/" + p,
	}
	if withContent {
		if f.large[p] {
			e["encoding"] = "none"
			e["content"] = ""
		} else {
			e["encoding"] = "base64"
			e["content"] = base64.StdEncoding.EncodeToString([]byte(content))
		}
	}
	return e
}

// list returns the directory entries under dir, or nil if dir does not exist.
func (f *fakeRepo) list(dir string) []map[string]any {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := map[string]bool{}
	entries := []map[string]any{}
	for p, content := range f.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		if nested {
			entries = append(entries, map[string]any{"type": "dir", "name": name, "path": prefix + name})
		} else {
			entries = append(entries, f.fileEntry(p, content, false))
		}
	}
	for _, s := range f.symlinks {
		if path.Dir(s) == dir || (dir == "" && !strings.Contains(s, "/")) {
			entries = append(entries, map[string]any{"type": "symlink", "name": path.Base(s), "path": s})
		}
	}

	if len(entries) == 0 && dir != "" {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i]["path"].(string) < entries[j]["path"].(string)
	})
	return entries
}
