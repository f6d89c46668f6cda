// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmutil "github.com/yuin/goldmark/util"

	"github.com/jeranaias/pocketchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page with
// embedded CSS. Message bodies are rendered from Markdown; raw HTML in a
// message is dropped, never passed through.
type HTMLExporter struct {
	options Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts Options) *HTMLExporter {
	if opts.Theme != "light" {
		opts.Theme = "dark"
	}
	style := "monokai"
	if opts.Theme == "light" {
		style = "github"
	}
	return &HTMLExporter{
		options: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(renderer.WithNodeRenderers(
				gmutil.Prioritized(&codeRenderer{style: styles.Get(style), formatter: chromahtml.New()}, 100),
			)),
		),
	}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	title := html.EscapeString(conv.DisplayTitle())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", title)
	sb.WriteString("    <meta name=\"generator\" content=\"pocketchat\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", e.options.Theme)

	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(&sb, "    <h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString("    <div class=\"metadata\">\n")
		if conv.Model != "" {
			fmt.Fprintf(&sb, "        <span><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model))
		}
		fmt.Fprintf(&sb, "        <span><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt))
		fmt.Fprintf(&sb, "        <span><strong>Messages:</strong> %d</span>\n", len(conv.Messages))
		sb.WriteString("    </div>\n")
	}
	sb.WriteString("</header>\n<main class=\"conversation\">\n")

	for _, msg := range conv.Messages {
		if err := e.renderMessage(&sb, msg); err != nil {
			return nil, err
		}
	}

	sb.WriteString("</main>\n")
	fmt.Fprintf(&sb, "<footer class=\"footer\">Exported from <strong>pocketchat</strong> on %s</footer>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg *model.Message) error {
	fmt.Fprintf(sb, "<div class=\"message %s-message\">\n", html.EscapeString(strings.ToLower(string(msg.Role))))
	sb.WriteString("    <div class=\"message-header\">\n")
	fmt.Fprintf(sb, "        <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "        <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("    </div>\n    <div class=\"message-content\">\n")

	var buf bytes.Buffer
	if err := e.md.Convert([]byte(msg.DisplayContent()), &buf); err != nil {
		return fmt.Errorf("render message %s: %w", msg.ID, err)
	}
	sb.Write(buf.Bytes())

	if msg.Error != "" {
		fmt.Fprintf(sb, "<p class=\"error\">%s</p>\n", html.EscapeString(msg.Error))
	}
	sb.WriteString("    </div>\n</div>\n")
	return nil
}

// =============================================================================
// CODE HIGHLIGHTING
// =============================================================================

// codeRenderer renders fenced code blocks with chroma using inline styles.
type codeRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func (c *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCode)
}

func (c *codeRenderer) renderFencedCode(w gmutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := node.(*ast.FencedCodeBlock)
	lang := string(block.Language(source))

	var code strings.Builder
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code.String())
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	tokens, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err != nil {
		return ast.WalkStop, err
	}

	fmt.Fprintf(w, "<div class=\"code-block language-%s\">", html.EscapeString(lang))
	if lang != "" {
		fmt.Fprintf(w, "<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
	}
	if err := c.formatter.Format(w, c.style, tokens); err != nil {
		return ast.WalkStop, err
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --text-primary: #c0caf5;
            --text-muted: #565f89; --border-color: #414868; --user-bg: #1f2335;
            --code-bg: #16161e; --accent: #7aa2f7; --error: #f7768e;
        }
        .light-theme {
            --bg-primary: #f5f5f5; --bg-secondary: #ffffff; --text-primary: #1a1b26;
            --text-muted: #6b7280; --border-color: #e5e7eb; --user-bg: #eef2ff;
            --code-bg: #f3f4f6; --accent: #2563eb; --error: #dc2626;
        }
        body {
            font-family: var(--font-sans); background: var(--bg-primary);
            color: var(--text-primary); line-height: 1.6; padding: 20px;
        }
        .container { max-width: 900px; margin: 0 auto; }
        .header, .footer { padding: 20px; border-bottom: 1px solid var(--border-color); }
        .footer { border-bottom: none; color: var(--text-muted); font-size: 0.85em; text-align: center; }
        .metadata { display: flex; gap: 16px; flex-wrap: wrap; color: var(--text-muted); font-size: 0.9em; }
        .message {
            background: var(--bg-secondary); border: 1px solid var(--border-color);
            border-radius: 8px; padding: 16px 20px; margin: 16px 0;
        }
        .user-message { background: var(--user-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; }
        .role-label { font-weight: 600; color: var(--accent); }
        .timestamp { color: var(--text-muted); font-size: 0.85em; }
        .message-content p { margin: 8px 0; }
        .message-content pre {
            background: var(--code-bg); padding: 12px; border-radius: 6px;
            overflow-x: auto; font-family: var(--font-mono);
        }
        .message-content code { font-family: var(--font-mono); }
        .code-lang { color: var(--text-muted); font-size: 0.8em; margin-top: 8px; }
        .error { color: var(--error); font-style: italic; }
        @media print { .message { page-break-inside: avoid; } }
    </style>
`
