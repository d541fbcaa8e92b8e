package prompt

import (
	"strings"
	"testing"
)

func TestSummary_RendersAllVariables(t *testing.T) {
	p, err := Summary("internal/store/db.go", "package store\n\nfunc Open() {}")
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}

	if !strings.Contains(p, "internal/store/db.go") {
		t.Error("prompt does not contain file path")
	}
	if !strings.Contains(p, "func Open() {}") {
		t.Error("prompt does not contain file content")
	}
	if !strings.Contains(p, "no more than 100 words") {
		t.Error("prompt does not state the word limit")
	}
	if strings.Contains(p, "Additional instructions:") {
		t.Error("prompt should not contain additional instructions without custom text")
	}
}

func TestSummary_EmptyPath(t *testing.T) {
	if _, err := Summary("", "content"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSummaryWithCustom_AppendsCustomPrompt(t *testing.T) {
	custom := "This is a Go monorepo. Mention the package name."

	p, err := SummaryWithCustom("main.go", "package main", custom)
	if err != nil {
		t.Fatalf("SummaryWithCustom returned error: %v", err)
	}

	mainIdx := strings.Index(p, "no more than")
	customIdx := strings.Index(p, custom)
	if mainIdx == -1 || customIdx == -1 || customIdx < mainIdx {
		t.Error("custom prompt should appear after the main prompt template")
	}
}

func TestSummary_DoesNotEscapeContent(t *testing.T) {
	p, err := Summary("a.html", `<script>alert("x")</script>`)
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if !strings.Contains(p, `<script>alert("x")</script>`) {
		t.Error("content should be rendered verbatim")
	}
}

func TestDiff(t *testing.T) {
	p, err := Diff("diff --git a/x b/x\n+added")
	if err != nil {
		t.Fatalf("Diff returned error: %v", err)
	}
	if !strings.Contains(p, "+added") {
		t.Error("prompt does not contain the diff")
	}

	if _, err := Diff(""); err == nil {
		t.Error("expected error for empty diff")
	}
}

func TestAnswer(t *testing.T) {
	p, err := Answer("What does db.go do?", "source: db.go\n", "")
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}

	ctxIdx := strings.Index(p, "source: db.go")
	qIdx := strings.Index(p, "What does db.go do?")
	if ctxIdx == -1 || qIdx == -1 || ctxIdx > qIdx {
		t.Error("context block should precede the question")
	}

	if _, err := Answer("", "ctx", ""); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestAnswerSystem_MandatesUnknownSentence(t *testing.T) {
	if !strings.Contains(AnswerSystem, UnknownAnswer) {
		t.Error("system prompt must contain the unknown-answer sentence")
	}
}
