package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastSlack(url string) *SlackNotifier {
	s := NewSlackNotifier(url)
	s.policy.InitialDelay = time.Millisecond
	s.policy.MaxDelay = time.Millisecond
	return s
}

func TestBuildSlackPayload_Structure(t *testing.T) {
	payload := BuildSlackPayload(sampleNotice())

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	var parsed struct {
		Blocks []struct {
			Type string `json:"type"`
			Text struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"text"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if len(parsed.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(parsed.Blocks))
	}
	if parsed.Blocks[0].Type != "header" || parsed.Blocks[0].Text.Text != "Repository Indexed" {
		t.Errorf("unexpected header %+v", parsed.Blocks[0])
	}
	if !strings.Contains(parsed.Blocks[1].Text.Text, "<https://github.com/octocat/hello-world|octocat/hello-world>") {
		t.Errorf("expected repository link, got %q", parsed.Blocks[1].Text.Text)
	}
	if !strings.Contains(parsed.Blocks[2].Text.Text, "11 indexed") {
		t.Errorf("expected counts, got %q", parsed.Blocks[2].Text.Text)
	}
}

func TestBuildSlackPayload_WithError(t *testing.T) {
	n := sampleNotice()
	n.Error = "traversal stopped after 12 files: rate limited"
	payload := BuildSlackPayload(n)

	if len(payload.Blocks) != 5 {
		t.Fatalf("expected error block, got %d blocks", len(payload.Blocks))
	}
	if payload.Blocks[0].Text.Text != "Repository Indexing Stopped" {
		t.Errorf("unexpected header %q", payload.Blocks[0].Text.Text)
	}
	if !strings.Contains(payload.Blocks[4].Text.Text, "rate limited") {
		t.Errorf("expected error text, got %q", payload.Blocks[4].Text.Text)
	}
}

func TestSlackNotifier_Notify_Success(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := fastSlack(server.URL).Notify(context.Background(), sampleNotice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !json.Valid(body) || !strings.Contains(string(body), "octocat/hello-world") {
		t.Errorf("unexpected request body %s", body)
	}
}

func TestSlackNotifier_Notify_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := fastSlack(server.URL).Notify(context.Background(), sampleNotice()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSlackNotifier_Notify_HTTPError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	err := fastSlack(server.URL).Notify(context.Background(), sampleNotice())
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("expected webhook error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSlackNotifier_Notify_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := fastSlack(server.URL).Notify(ctx, sampleNotice()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
