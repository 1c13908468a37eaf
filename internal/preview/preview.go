// Package preview renders note Markdown to HTML for the host UI.
package preview

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"github.com/starford/herald/internal/frontmatter"
)

// Renderer turns Markdown into HTML. Raw HTML in the source is escaped.
type Renderer struct {
	md goldmark.Markdown
}

// New returns a CommonMark-only Renderer. Tables and strikethrough are left
// as plain text, the way the converter publishes them.
func New() *Renderer {
	return &Renderer{md: goldmark.New(
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)}
}

// Render converts markdown to HTML.
func (r *Renderer) Render(markdown string) (string, error) {
	var out bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// RenderNote renders a full note file with its front matter removed.
func (r *Renderer) RenderNote(raw []byte) (string, error) {
	return r.Render(frontmatter.StripBody(raw))
}
