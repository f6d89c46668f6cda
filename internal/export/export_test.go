// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/pocketchat/internal/model"
)

func sampleConversation(t *testing.T, question, answer string) *model.Conversation {
	t.Helper()
	c := model.NewConversation("test-model")
	if _, err := c.AddUserMessage(question); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BeginAssistant(); err != nil {
		t.Fatal(err)
	}
	c.AppendToLast(answer)
	c.FinalizeLast("stop")
	return c
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"htm", FormatHTML, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"out.json":  FormatJSON,
		"out.HTML":  FormatHTML,
		"out.md":    FormatMarkdown,
		"no-ext":    FormatMarkdown,
		"a/b/c.htm": FormatHTML,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMarkdown(t *testing.T) {
	conv := sampleConversation(t, "Export me", "Done.")

	md := Markdown(conv)
	for _, want := range []string{"# Export me", "**You**", "**Assistant**", "Done."} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.HasPrefix(md, "---") {
		t.Error("plain markdown should not carry front matter")
	}
}

func TestMarkdownExporter_FrontMatterEscapesNewlines(t *testing.T) {
	conv := sampleConversation(t, "hi", "there")
	conv.Rename("Test\ninjection: yes")

	out, err := NewMarkdownExporter(DefaultOptions()).Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(out), "\n")
	if lines[0] != "---" {
		t.Fatalf("first line = %q, want front matter", lines[0])
	}
	for _, line := range lines[1:8] {
		if strings.HasPrefix(line, "injection:") {
			t.Errorf("title newline leaked into front matter:\n%s", out)
		}
	}
}

func TestMarkdownExporter_MarksTruncatedAndFailed(t *testing.T) {
	conv := sampleConversation(t, "q", "partial")
	conv.Messages[1].FinishReason = "length"
	if _, err := conv.AddUserMessage("again"); err != nil {
		t.Fatal(err)
	}
	if _, err := conv.BeginAssistant(); err != nil {
		t.Fatal(err)
	}
	conv.AppendToLast("half")
	conv.FailLast("server went away")

	md := Markdown(conv)
	if !strings.Contains(md, "_[truncated]_") {
		t.Errorf("missing truncation note:\n%s", md)
	}
	if !strings.Contains(md, "_server went away_") {
		t.Errorf("missing error note:\n%s", md)
	}
}

func TestJSONExporter(t *testing.T) {
	conv := sampleConversation(t, "q", "a")

	out, err := NewJSONExporter().Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	var back model.Conversation
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not a conversation: %v", err)
	}
	if back.ID != conv.ID || len(back.Messages) != 2 {
		t.Errorf("round trip lost data: %+v", back)
	}
}

func TestHTMLExporter_RendersMarkdownAndEscapes(t *testing.T) {
	conv := sampleConversation(t, "<b>bold?</b>", "Use **this**:\n\n```go\nfmt.Println(\"<x>\")\n```\n\n<script>alert(1)</script>")

	out, err := NewHTMLExporter(DefaultOptions()).Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	page := string(out)

	if strings.Contains(page, "<script>alert(1)</script>") {
		t.Error("raw script passed through")
	}
	if strings.Contains(page, "<title><b>") {
		t.Error("title not escaped")
	}
	for _, want := range []string{"<strong>this</strong>", "language-go", "&lt;x&gt;", "dark-theme", "test-model"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLExporter_CodeLanguageEscaped(t *testing.T) {
	conv := sampleConversation(t, "q", "```<script>x</script>\ncode here\n```")

	out, err := NewHTMLExporter(DefaultOptions()).Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	page := string(out)
	if strings.Contains(page, "<script>x</script>") {
		t.Error("language label not escaped")
	}
	if !strings.Contains(page, "code") || !strings.Contains(page, "here") {
		t.Error("code body missing")
	}
}

func TestHTMLExporter_LightTheme(t *testing.T) {
	opts := DefaultOptions()
	opts.Theme = "light"
	out, err := NewHTMLExporter(opts).Export(sampleConversation(t, "q", "a"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `<body class="light-theme">`) {
		t.Error("light theme not applied")
	}
}

func TestExporters_NilConversation(t *testing.T) {
	for _, format := range []Format{FormatMarkdown, FormatJSON, FormatHTML} {
		exp, err := New(format, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := exp.Export(nil); err != ErrNilConversation {
			t.Errorf("%s: Export(nil) error = %v", format, err)
		}
	}
}

func TestWriteFile(t *testing.T) {
	conv := sampleConversation(t, "file: test/one", "a")
	dir := t.TempDir()

	path, err := WriteFile(conv, NewJSONExporter(), dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir || filepath.Ext(path) != ".json" {
		t.Errorf("path = %q", path)
	}
	if strings.ContainsAny(filepath.Base(path), ":/ ") {
		t.Errorf("filename not sanitized: %q", filepath.Base(path))
	}

	explicit := filepath.Join(dir, "chosen.md")
	path, err = WriteFile(conv, NewMarkdownExporter(Options{}), dir, explicit)
	if err != nil {
		t.Fatal(err)
	}
	if path != explicit {
		t.Errorf("path = %q, want %q", path, explicit)
	}
	data, err := os.ReadFile(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "**You**") {
		t.Errorf("unexpected content:\n%s", data)
	}
}

func TestFilename(t *testing.T) {
	conv := sampleConversation(t, "What is <this>?", "a")
	now := time.Date(2025, 3, 1, 14, 5, 6, 0, time.UTC)

	got := Filename(conv, ".md", now)
	want := "chat_What_is_-this--_20250301_140506.md"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestSanitizeFilename_Empty(t *testing.T) {
	if got := sanitizeFilename("..."); got != "chat" {
		t.Errorf("sanitizeFilename(...) = %q, want chat", got)
	}
}
