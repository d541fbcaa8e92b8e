package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jacklau/repolens/internal/github"
	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/project"
	"github.com/jacklau/repolens/internal/pubsub"
	"github.com/jacklau/repolens/internal/qa"
	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/vector"
)

// fakeProjects is an in-memory Projects.
type fakeProjects struct {
	mu        sync.Mutex
	repos     map[string]*store.Repository
	balance   int
	quote     int
	indexed   []string
	saved     []store.Question
	deltas    []string
	streamErr error
	files     []vector.Match
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		repos: map[string]*store.Repository{
			"r1": {ID: "r1", UserID: "local", Name: "hello", Owner: "octocat", Repo: "hello-world", URL: "https://github.com/octocat/hello-world", AccessToken: "secret"},
		},
		balance: 150,
		quote:   10,
		deltas:  []string{"X is ", "in x.go."},
		files:   []vector.Match{{FileName: "x.go", Summary: "Defines X.", Similarity: 0.9}},
	}
}

func (f *fakeProjects) repo(id string) (*store.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[id]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", id, store.ErrNotFound)
	}
	return r, nil
}

func (f *fakeProjects) Quote(_ context.Context, _, repoURL, _ string) (*project.Quote, error) {
	if _, err := github.ParseRepoURL(repoURL); err != nil {
		return nil, err
	}
	return &project.Quote{Files: f.quote, Balance: f.balance}, nil
}

func (f *fakeProjects) Create(ctx context.Context, req project.CreateRequest) (*store.Repository, *project.Quote, error) {
	q, err := f.Quote(ctx, req.UserID, req.URL, req.Token)
	if err != nil {
		return nil, nil, err
	}
	if !q.Sufficient() {
		return nil, q, project.ErrInsufficientCredits
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &store.Repository{ID: "r2", UserID: req.UserID, Name: req.Name, URL: req.URL, AccessToken: req.Token}
	f.repos[r.ID] = r
	f.balance -= q.Files
	return r, &project.Quote{Files: q.Files, Balance: f.balance}, nil
}

func (f *fakeProjects) Index(_ context.Context, id string, _ int, _ ingest.Observer) (*ingest.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, id)
	return &ingest.Report{RepositoryID: id}, nil
}

func (f *fakeProjects) ChargeReindex(_ context.Context, id string) (int, error) {
	if _, err := f.repo(id); err != nil {
		return 0, err
	}
	if f.quote > f.balance {
		return 0, project.ErrInsufficientCredits
	}
	return f.quote, nil
}

func (f *fakeProjects) Ask(_ context.Context, id, question string) (*qa.Answer, error) {
	r, err := f.repo(id)
	if err != nil {
		return nil, err
	}
	if r.Archived() {
		return nil, project.ErrArchived
	}
	if strings.TrimSpace(question) == "" {
		return nil, qa.ErrEmptyQuestion
	}
	deltas, streamErr := f.deltas, f.streamErr
	return &qa.Answer{
		Files: f.files,
		Stream: func(yield func(string, error) bool) {
			for _, d := range deltas {
				if !yield(d, nil) {
					return
				}
			}
			if streamErr != nil {
				yield("", streamErr)
			}
		},
	}, nil
}

func (f *fakeProjects) Get(_ context.Context, id string) (*store.Repository, error) {
	return f.repo(id)
}

func (f *fakeProjects) List(_ context.Context, _ string, archived bool) ([]store.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Repository
	for _, r := range f.repos {
		if r.Archived() == archived {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeProjects) Stats(_ context.Context, id string) (*store.RepositoryStats, error) {
	r, err := f.repo(id)
	if err != nil {
		return nil, err
	}
	return &store.RepositoryStats{Repository: *r, Files: 7, Degraded: 1}, nil
}

func (f *fakeProjects) Archive(_ context.Context, id string) error {
	r, err := f.repo(id)
	if err != nil {
		return err
	}
	now := time.Now()
	f.mu.Lock()
	r.ArchivedAt = &now
	f.mu.Unlock()
	return nil
}

func (f *fakeProjects) Unarchive(_ context.Context, id string) error {
	r, err := f.repo(id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	r.ArchivedAt = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeProjects) Delete(_ context.Context, id string) error {
	if _, err := f.repo(id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.repos, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeProjects) Credits(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeProjects) RefreshCommits(_ context.Context, id string) (int, error) {
	if _, err := f.repo(id); err != nil {
		return 0, err
	}
	return 2, nil
}

func (f *fakeProjects) Commits(_ context.Context, id string) ([]store.Commit, error) {
	if _, err := f.repo(id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeProjects) SaveAnswer(_ context.Context, userID, id, question, answer string, files []vector.Match) (*store.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := store.Question{ID: "q1", RepositoryID: id, UserID: userID, Question: question, Answer: answer, FileReferences: store.ReferencesFromMatches(files)}
	f.saved = append(f.saved, q)
	return &q, nil
}

func (f *fakeProjects) Questions(context.Context, string) ([]store.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *fakeProjects) DeleteQuestion(_ context.Context, _, id string) error {
	return fmt.Errorf("question %s: %w", id, store.ErrNotFound)
}

func setupServer(t *testing.T) (*Server, *fakeProjects, *pubsub.Broker[ingest.Progress]) {
	t.Helper()
	projects := newFakeProjects()
	broker := pubsub.NewBroker[ingest.Progress]()
	srv := New(projects, broker, metrics.New(), Config{}, nil)
	srv.background = func(fn func()) { fn() }
	return srv, projects, broker
}

func doRequest(t *testing.T, srv *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, data
}

// sseEvents parses a server-sent event body into (event, data) pairs.
func sseEvents(body string) [][2]string {
	var events [][2]string
	for _, block := range strings.Split(body, "\n\n") {
		var name, data string
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = v
			}
		}
		if name != "" {
			events = append(events, [2]string{name, data})
		}
	}
	return events
}

func TestHealth(t *testing.T) {
	srv, _, _ := setupServer(t)
	resp, body := doRequest(t, srv, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Errorf("unexpected health response %d %s", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := setupServer(t)
	resp, body := doRequest(t, srv, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected Go runtime metrics in exposition")
	}
}

func TestCreateRepository(t *testing.T) {
	srv, projects, _ := setupServer(t)

	resp, body := doRequest(t, srv, http.MethodPost, "/api/v1/repositories", `{"name":"app","url":"https://github.com/acme/app","token":"t"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Repository map[string]any `json:"repository"`
		Quote      int            `json:"quote"`
		Balance    int            `json:"balance"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Quote != 10 || out.Balance != 140 {
		t.Errorf("unexpected quote %+v", out)
	}
	if _, ok := out.Repository["AccessToken"]; ok || strings.Contains(string(body), `"t"`) {
		t.Error("access token must not be exposed")
	}
	if len(projects.indexed) != 1 || projects.indexed[0] != "r2" {
		t.Errorf("expected background ingestion of r2, got %v", projects.indexed)
	}
}

func TestCreateRepository_InsufficientCredits(t *testing.T) {
	srv, projects, _ := setupServer(t)
	projects.quote = 120
	projects.balance = 100

	resp, body := doRequest(t, srv, http.MethodPost, "/api/v1/repositories", `{"url":"https://github.com/acme/app"}`)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"files":120`) || !strings.Contains(string(body), `"balance":100`) {
		t.Errorf("expected quote in response, got %s", body)
	}
	if len(projects.indexed) != 0 {
		t.Error("ingestion must not start")
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _, _ := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown repository", http.MethodGet, "/api/v1/repositories/nope", "", http.StatusNotFound},
		{"bad url", http.MethodPost, "/api/v1/quote", `{"url":"nope"}`, http.StatusNotFound},
		{"bad json", http.MethodPost, "/api/v1/quote", `{`, http.StatusBadRequest},
		{"empty question", http.MethodPost, "/api/v1/repositories/r1/ask", `{"question":" "}`, http.StatusBadRequest},
		{"missing question", http.MethodDelete, "/api/v1/questions/q9", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, srv, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, resp.StatusCode, body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{github.ErrAuthRequired, http.StatusUnauthorized},
		{github.ErrRepositoryNotFound, http.StatusNotFound},
		{fmt.Errorf("listing: %w (or %w)", github.ErrRepositoryNotFound, github.ErrAuthRequired), http.StatusUnauthorized},
		{fmt.Errorf("walk: %w", github.ErrRateLimited), http.StatusTooManyRequests},
		{project.ErrArchived, http.StatusConflict},
		{project.ErrInvalidRequest, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	srv, _, _ := setupServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/v1/repositories/r1", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"files":7`) {
		t.Fatalf("unexpected stats response %d %s", resp.StatusCode, body)
	}

	if resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/archive", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("archive: %d", resp.StatusCode)
	}
	_, body = doRequest(t, srv, http.MethodGet, "/api/v1/repositories?archived=true", "")
	if !strings.Contains(string(body), `"id":"r1"`) {
		t.Errorf("expected r1 among archived, got %s", body)
	}
	if resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/ask", `{"question":"q"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for archived repository, got %d", resp.StatusCode)
	}
	if resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/unarchive", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("unarchive: %d", resp.StatusCode)
	}

	resp, body = doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/commits/refresh", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"new":2`) {
		t.Errorf("unexpected refresh response %d %s", resp.StatusCode, body)
	}
	if _, body := doRequest(t, srv, http.MethodGet, "/api/v1/repositories/r1/commits", ""); string(body) != "[]" {
		t.Errorf("expected empty JSON array, got %s", body)
	}

	if resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/reindex", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202 from reindex, got %d", resp.StatusCode)
	}

	if resp, _ := doRequest(t, srv, http.MethodDelete, "/api/v1/repositories/r1", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from delete, got %d", resp.StatusCode)
	}
	if resp, _ := doRequest(t, srv, http.MethodGet, "/api/v1/repositories/r1", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAskStreamsAnswer(t *testing.T) {
	srv, projects, _ := setupServer(t)

	resp, body := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/ask", `{"question":"Where is X?","save":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event stream, got %q", ct)
	}

	events := sseEvents(string(body))
	if len(events) != 4 {
		t.Fatalf("expected files, 2 deltas and done, got %v", events)
	}
	if events[0][0] != "files" || !strings.Contains(events[0][1], "x.go") {
		t.Errorf("unexpected files event %v", events[0])
	}
	if events[1][0] != "delta" || events[2][0] != "delta" {
		t.Errorf("expected delta events, got %v", events[1:3])
	}
	if events[3][0] != "done" || !strings.Contains(events[3][1], "X is in x.go.") || !strings.Contains(events[3][1], `"questionId":"q1"`) {
		t.Errorf("unexpected done event %v", events[3])
	}
	if len(projects.saved) != 1 || projects.saved[0].FileReferences[0].FileName != "x.go" {
		t.Errorf("expected saved answer with reference, got %+v", projects.saved)
	}
}

func TestAskStreamError(t *testing.T) {
	srv, projects, _ := setupServer(t)
	projects.deltas = []string{"partial"}
	projects.streamErr = errors.New("backend unavailable")

	_, body := doRequest(t, srv, http.MethodPost, "/api/v1/repositories/r1/ask", `{"question":"Where is X?"}`)
	events := sseEvents(string(body))
	last := events[len(events)-1]
	if last[0] != "error" || !strings.Contains(last[1], "backend unavailable") {
		t.Errorf("expected error event, got %v", events)
	}
}

func TestProgressEvents(t *testing.T) {
	srv, _, broker := setupServer(t)

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/repositories/r1/events", nil))
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		done <- result{b, err}
	}()

	deadline := time.Now().Add(time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("events handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	broker.Publish(pubsub.FileIndexed, ingest.Progress{RepositoryID: "other", Indexed: 1})
	broker.Publish(pubsub.Started, ingest.Progress{RepositoryID: "r1"})
	broker.Publish(pubsub.FileIndexed, ingest.Progress{RepositoryID: "r1", File: "a.go", Indexed: 1})
	broker.Publish(pubsub.Finished, ingest.Progress{RepositoryID: "r1", Indexed: 1})

	res := <-done
	if res.err != nil {
		t.Fatalf("events request: %v", res.err)
	}
	events := sseEvents(string(res.body))
	if len(events) != 3 {
		t.Fatalf("expected 3 events for r1, got %v", events)
	}
	if events[0][0] != "started" || events[1][0] != "file_indexed" || events[2][0] != "finished" {
		t.Errorf("unexpected event order %v", events)
	}
	if !strings.Contains(events[1][1], `"file":"a.go"`) {
		t.Errorf("expected file in payload, got %s", events[1][1])
	}
}
