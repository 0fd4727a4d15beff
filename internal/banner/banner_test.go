package banner

import (
	"strings"
	"testing"
)

func TestStartup_WhenWriterProvided_ShouldPrintBannerAndVersion(t *testing.T) {
	var out strings.Builder
	Startup("1.2.3", &StartupOpts{Writer: &out, NoDelay: true})

	got := out.String()
	if !strings.Contains(got, "v1.2.3") {
		t.Errorf("output missing version: %q", got)
	}
	if !strings.Contains(got, "weather assistant") {
		t.Errorf("output missing tagline: %q", got)
	}
	if !strings.Contains(got, "@@@") {
		t.Errorf("output missing banner art: %q", got)
	}
}

func TestSplitLines_ShouldPreserveLineCount(t *testing.T) {
	lines := splitLines("a\nb\nc")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "a" || lines[2] != "c" {
		t.Errorf("lines = %v", lines)
	}
}

func TestSplitLines_WhenEmpty_ShouldReturnNil(t *testing.T) {
	if lines := splitLines(""); lines != nil {
		t.Errorf("expected nil, got %v", lines)
	}
}
