package github

import (
	"errors"
	"testing"

	gogithub "github.com/google/go-github/v60/github"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in    string
		owner string
		name  string
	}{
		{"https://github.com/octocat/hello-world", "octocat", "hello-world"},
		{"https://github.com/octocat/hello-world.git", "octocat", "hello-world"},
		{"https://github.com/octocat/hello-world/tree/main/src", "octocat", "hello-world"},
		{"github.com/octocat/hello-world", "octocat", "hello-world"},
		{"git@github.com:octocat/hello-world.git", "octocat", "hello-world"},
		{"octocat/hello-world", "octocat", "hello-world"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseRepoURL(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Owner != tt.owner || ref.Name != tt.name {
				t.Errorf("got %s, want %s/%s", ref, tt.owner, tt.name)
			}
		})
	}
}

func TestParseRepoURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "https://github.com/octocat", "https://github.com/", "octocat"} {
		_, err := ParseRepoURL(in)
		if !errors.Is(err, ErrRepositoryNotFound) {
			t.Errorf("ParseRepoURL(%q): expected ErrRepositoryNotFound, got %v", in, err)
		}
	}
}

func TestClients_For(t *testing.T) {
	def := gogithub.NewClient(nil)
	def.BaseURL, _ = def.BaseURL.Parse("http://127.0.0.1:9999/api/")
	clients := NewClients(def)

	if clients.For("") != def {
		t.Error("expected default client without credential")
	}

	tok := clients.For("ghp_token")
	if tok == def {
		t.Fatal("expected a separate client for a credential")
	}
	if tok.BaseURL.String() != def.BaseURL.String() {
		t.Errorf("expected base url %s, got %s", def.BaseURL, tok.BaseURL)
	}
}

func TestNewClients_NilDefault(t *testing.T) {
	clients := NewClients(nil)
	if clients.For("") == nil {
		t.Fatal("expected anonymous default client")
	}
}
