package github

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"
)

// NewGitHubClient creates a GitHub API client authenticated as a GitHub App
// installation. It uses ghinstallation for automatic JWT and installation
// token management.
//
// privateKey can be either:
//   - Raw PEM bytes (begins with "-----BEGIN")
//   - Base64-encoded PEM bytes
//
// If privateKey is nil or empty and privateKeyPath is provided, the key is
// read from that file path.
func NewGitHubClient(appID, installationID int64, privateKey []byte, privateKeyPath string) (*gogithub.Client, error) {
	key, err := resolvePrivateKey(privateKey, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("resolving private key: %w", err)
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}

	client := gogithub.NewClient(&http.Client{Transport: transport})
	return client, nil
}

// Clients hands out GitHub API clients. Requests without a per-repository
// credential use the default client, which may be anonymous or a GitHub App
// installation; requests with a credential get a token-authenticated client
// against the same API endpoint.
type Clients struct {
	def *gogithub.Client
}

// NewClients wraps def. A nil def means anonymous access to github.com.
func NewClients(def *gogithub.Client) *Clients {
	if def == nil {
		def = gogithub.NewClient(nil)
	}
	return &Clients{def: def}
}

// WithEnterpriseURL points the default client at a GitHub Enterprise
// instance.
func (c *Clients) WithEnterpriseURL(baseURL string) (*Clients, error) {
	def, err := c.def.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configuring enterprise url %s: %w", baseURL, err)
	}
	return &Clients{def: def}, nil
}

// For returns the client to use for a repository accessed with credential.
func (c *Clients) For(credential string) *gogithub.Client {
	if credential == "" {
		return c.def
	}
	client := gogithub.NewClient(nil).WithAuthToken(credential)
	base := *c.def.BaseURL
	client.BaseURL = &base
	return client
}

// ParseRepoURL extracts owner and name from a repository address such as
// https://github.com/owner/name, github.com/owner/name.git or owner/name.
func ParseRepoURL(raw string) (RepoRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RepoRef{}, fmt.Errorf("%w: empty repository url", ErrRepositoryNotFound)
	}

	p := s
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return RepoRef{}, fmt.Errorf("%w: %s: %v", ErrRepositoryNotFound, raw, err)
		}
		p = u.Path
	} else if strings.HasPrefix(s, "git@") {
		if _, after, ok := strings.Cut(s, ":"); ok {
			p = after
		}
	} else if first, rest, ok := strings.Cut(s, "/"); ok && strings.Contains(first, ".") {
		p = rest
	}

	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("%w: %s is not an owner/name address", ErrRepositoryNotFound, raw)
	}
	return RepoRef{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}, nil
}

// resolvePrivateKey returns PEM-encoded private key bytes from either the
// provided raw/base64-encoded key or by reading from a file path.
func resolvePrivateKey(key []byte, keyPath string) ([]byte, error) {
	if len(key) > 0 {
		s := strings.TrimSpace(string(key))
		if strings.HasPrefix(s, "-----BEGIN") {
			return []byte(s), nil
		}
		// Try base64 decode
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			// Try URL-safe base64
			decoded, err = base64.URLEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("private key is neither PEM nor valid base64: %w", err)
			}
		}
		return decoded, nil
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file %s: %w", keyPath, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("no private key provided: set private_key or private_key_path")
}
