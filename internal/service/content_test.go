package service

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderContentSanitizesHTML(t *testing.T) {
	out, err := RenderContent("", `<p onclick="x()">Hi</p><script>alert(1)</script>`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "script") || strings.Contains(out, "onclick") {
		t.Fatalf("expected sanitized html, got %q", out)
	}
	if !strings.Contains(out, "<p>Hi</p>") {
		t.Fatalf("expected paragraph kept, got %q", out)
	}
}

func TestRenderContentMarkdown(t *testing.T) {
	out, err := RenderContent("Markdown", "# Title\n\nSome **bold** text")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<strong>bold</strong>") || !strings.Contains(out, "<h1") {
		t.Fatalf("unexpected markdown output: %q", out)
	}
}

func TestRenderContentRejectsUnknownFormat(t *testing.T) {
	_, err := RenderContent("rtf", "x")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
