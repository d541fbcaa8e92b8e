package github

import "testing"

func TestExcluder_Defaults(t *testing.T) {
	e := NewExcluder()

	tests := []struct {
		path string
		want bool
	}{
		{".git", true},
		{"node_modules", true},
		{"web/node_modules", true},
		{"package-lock.json", true},
		{".env.production", true},
		{"logo.png", true},
		{"docs/diagram.SVG", false},
		{"server.log", true},
		{"server.log.1", true},
		{"main.go~", true},
		{"cypress/videos", true},
		{"e2e/cypress/videos", true},
		{"cypress/support", false},
		{"public/images", true},
		{"src/main.go", false},
		{"README.md", false},
		{"builder/build.go", false},
		{"internal/build", true},
		{"docs/manual.pdf", true},
		{"bin/app.exe", true},
		{"fonts/a.woff2", true},
		{"lib/x.so", true},
		{"vendor/a.jar", true},
		{"a.zip", true},
		{"video.mp4", true},
		{"web/app.wasm", true},
		{"__pycache__/m.pyc", true},
		{"go.sum", true},
		{"Cargo.lock", true},
		{"poetry.lock", true},
		{"Gemfile.lock", true},
		{"composer.lock", true},
		{"go.mod", false},
		{"Cargo.toml", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := e.Excluded(tt.path); got != tt.want {
				t.Errorf("Excluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExcluder_Extra(t *testing.T) {
	e := NewExcluder("*.pb.go", "vendor", "/third_party/gen/", "[bad")

	if !e.Excluded("api/v1/service.pb.go") {
		t.Error("expected extra glob to exclude generated file")
	}
	if !e.Excluded("vendor") {
		t.Error("expected extra name to exclude vendor")
	}
	if !e.Excluded("third_party/gen") {
		t.Error("expected extra path pattern to exclude third_party/gen")
	}
	if e.Excluded("api/v1/service.go") {
		t.Error("unexpected exclusion of regular source file")
	}
}
