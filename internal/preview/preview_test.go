package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	html, err := New().Render("# Title\n\nSome **bold** and ~~gone~~.\n")
	require.NoError(t, err)
	assert.Contains(t, html, `<h1 id="title">Title</h1>`)
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "~~gone~~")
	assert.NotContains(t, html, "<del>")
}

func TestRenderLeavesTablesAsText(t *testing.T) {
	html, err := New().Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.NotContains(t, html, "<table>")
	assert.Contains(t, html, "<p>| a | b |")
}

func TestRenderEscapesRawHTML(t *testing.T) {
	html, err := New().Render("<script>alert(1)</script>\n")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRenderNoteStripsFrontmatter(t *testing.T) {
	html, err := New().RenderNote([]byte("---\ntitle: Hidden\ndraft_id: 1\n---\nVisible\n"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Visible</p>\n", html)
}
