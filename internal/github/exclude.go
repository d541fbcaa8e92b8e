package github

import (
	"path"
	"strings"
)

// DefaultExcludePatterns are the entries never ingested. Patterns without a
// slash match an entry's base name (shell glob syntax); patterns with a slash
// match the trailing segments of the entry's full path.
var DefaultExcludePatterns = []string{
	// version control
	".git", ".gitignore", ".gitattributes", ".gitmodules",

	// environment and tool configuration
	".env", ".env.local", ".env.*", ".npmrc", ".yarnrc", ".editorconfig",
	"docker-compose.yml", "Dockerfile", "Vagrantfile",

	// dependencies and lockfiles
	"node_modules", "yarn.lock", "package-lock.json", "pnpm-lock.yaml",
	"jspm_packages", "bower_components",
	"go.sum", "Cargo.lock", "poetry.lock", "Pipfile.lock", "Gemfile.lock", "composer.lock",

	// build output
	"dist", "build", "tmp", "out", ".parcel-cache", ".next", ".nuxt", "target",

	// IDE
	".vscode", ".idea", "*.iml", ".classpath", ".project", ".settings",

	// logs
	"*.log", "npm-debug.log", "yarn-debug.log", "*.gz", "*.log.*",

	// system metadata
	".DS_Store", "Thumbs.db", "desktop.ini", "Icon\r", "ehthumbs.db",

	// temporary and backup files
	"*.bak", "*.swp", "*.tmp", "*~", "*.orig", "*.rej",

	// coverage, reports and caches
	"coverage", ".nyc_output", ".coverage.*", "reports", ".sass-cache", ".eslintcache",
	"cypress/videos", "cypress/screenshots",

	// images
	"assets/images", "images", "static/images", "public/images", "img", "media", "photo", "pics",
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.svg", "*.webp", "*.tiff", "*.ico",

	// documents, archives and binaries
	"*.pdf", "*.zip", "*.tar", "*.tgz", "*.7z", "*.rar",
	"*.exe", "*.dll", "*.so", "*.dylib", "*.a", "*.o", "*.bin", "*.wasm",
	"*.jar", "*.class", "*.pyc", "*.pyo",

	// fonts and media
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
	"*.mp3", "*.mp4", "*.wav", "*.ogg", "*.mov", "*.avi", "*.webm",
}

// Excluder decides which repository entries are skipped. The Walker and the
// Estimator share one Excluder so that quotes match ingestion.
type Excluder struct {
	names    map[string]bool
	globs    []string
	suffixes []string
}

// NewExcluder builds an Excluder from the default patterns plus extra.
func NewExcluder(extra ...string) *Excluder {
	e := &Excluder{names: make(map[string]bool)}
	for _, p := range append(append([]string{}, DefaultExcludePatterns...), extra...) {
		p = strings.Trim(p, "/")
		switch {
		case p == "":
		case strings.Contains(p, "/"):
			e.suffixes = append(e.suffixes, p)
		case strings.ContainsAny(p, "*?["):
			if _, err := path.Match(p, ""); err == nil {
				e.globs = append(e.globs, p)
			}
		default:
			e.names[p] = true
		}
	}
	return e
}

// Excluded reports whether the entry at fullPath is skipped.
func (e *Excluder) Excluded(fullPath string) bool {
	fullPath = strings.Trim(fullPath, "/")
	base := path.Base(fullPath)
	if e.names[base] {
		return true
	}
	for _, g := range e.globs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	for _, s := range e.suffixes {
		if fullPath == s || strings.HasSuffix(fullPath, "/"+s) {
			return true
		}
	}
	return false
}
