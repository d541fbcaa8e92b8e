package notify

import (
	"testing"
	"time"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		notice Notice
		want   string
	}{
		{Notice{Kind: KindIngestion}, "Repository Indexed"},
		{Notice{Kind: KindIngestion, Error: "boom"}, "Repository Indexing Stopped"},
		{Notice{Kind: KindCommits}, "Commit Log Updated"},
		{Notice{Kind: KindCommits, Error: "boom"}, "Commit Log Update Failed"},
	}
	for _, tt := range tests {
		if got := Title(tt.notice); got != tt.want {
			t.Errorf("Title(%+v) = %q, want %q", tt.notice, got, tt.want)
		}
	}
}

func TestFormatCounts(t *testing.T) {
	if got := FormatCounts(sampleNotice()); got != "11 indexed, 1 degraded, 1 failed of 13 quoted" {
		t.Errorf("unexpected ingestion counts %q", got)
	}
	if got := FormatCounts(Notice{Kind: KindCommits, Commits: 1}); got != "1 new commit summarized" {
		t.Errorf("unexpected commit counts %q", got)
	}
	if got := FormatCounts(Notice{Kind: KindCommits, Commits: 4}); got != "4 new commits summarized" {
		t.Errorf("unexpected commit counts %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1234567 * time.Nanosecond, "1ms"},
		{2345 * time.Millisecond, "2.3s"},
		{95*time.Second + 400*time.Millisecond, "1m35s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
