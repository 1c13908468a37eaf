// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes herald's conversion and publishing tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/herald/internal/converter"
	"github.com/starford/herald/internal/frontmatter"
	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/richdoc"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/vault"
)

const formatResourceURI = "herald://markdown-format"

// Publisher runs the publish workflow.
type Publisher interface {
	CreateOrUpdate(ctx context.Context, req publisher.Request) (*publisher.Result, error)
}

// Remote is the part of the draft API the tools call directly.
type Remote interface {
	publisher.Uploader
	GetSections(ctx context.Context, publication string) []substack.Section
}

// Server wraps the MCP server with herald tools.
type Server struct {
	mcp         *server.MCPServer
	vault       *vault.Vault
	pub         Publisher
	remote      Remote
	ledger      ledger.Ledger
	publication string
	fetcher     *fetcher
}

// Option configures a Server.
type Option func(*Server)

// WithMaxImageBytes caps the size of images accepted by upload_image.
func WithMaxImageBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.fetcher = newFetcher(n)
		}
	}
}

// New creates a new MCP server with all herald tools registered.
// publication is the default for tools called without one.
func New(v *vault.Vault, pub Publisher, remote Remote, l ledger.Ledger, publication string, opts ...Option) *Server {
	s := &Server{
		vault:       v,
		pub:         pub,
		remote:      remote,
		ledger:      l,
		publication: publication,
		fetcher:     newFetcher(publisher.DefaultMaxImageBytes),
	}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"Herald",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_markdown",
		mcp.WithDescription("Convert Markdown to the rich document JSON the publishing platform stores. "+
			"Pass either inline markdown or the path of a vault note."),
		mcp.WithString("markdown", mcp.Description("Markdown text; front matter is ignored")),
		mcp.WithString("path", mcp.Description("Relative path of a vault note (e.g. posts/hello.md)")),
	), s.convertMarkdown)

	s.mcp.AddTool(mcp.NewTool("publish_note",
		mcp.WithDescription("Save a vault note as a draft, reusing the draft it was saved to before, "+
			"and optionally publish it. Local images are uploaded first. Read the format "+
			"contract via get_format_contract before writing notes for publishing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note (must end with .md)")),
		mcp.WithString("publication", mcp.Description("Publication subdomain; defaults to the configured one")),
		mcp.WithString("title", mcp.Description("Overrides the front matter title")),
		mcp.WithString("subtitle", mcp.Description("Overrides the front matter subtitle")),
		mcp.WithString("audience", mcp.Description("everyone, only_paid, founding or only_free")),
		mcp.WithString("section", mcp.Description("Section ID or name")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithBoolean("publish", mcp.Description("Publish after saving the draft")),
	), s.publishNote)

	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List the sections of a publication."),
		mcp.WithString("publication", mcp.Description("Publication subdomain; defaults to the configured one")),
	), s.listSections)

	s.mcp.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List recent publish attempts, newest first."),
		mcp.WithString("path", mcp.Description("Only attempts for this note")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), s.listHistory)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or notes in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Upload an image from an http(s) URL or a base64 data URI to the publication CDN. "+
			"Returns the CDN URL and a markdownImage ready to paste into a note."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("File name used to check the format")),
		mcp.WithString("publication", mcp.Description("Publication subdomain; defaults to the configured one")),
	), s.uploadImage)

	s.mcp.AddTool(mcp.NewTool("get_format_contract",
		mcp.WithDescription("Returns the Markdown subset herald converts, with front matter keys. "+
			"Call this before writing notes meant for publishing."),
	), s.getFormatContract)

	s.mcp.AddResource(
		mcp.NewResource(formatResourceURI, "Markdown Format Contract",
			mcp.WithResourceDescription("Markdown subset and front matter keys understood by the converter."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func (s *Server) publicationFor(req mcp.CallToolRequest) string {
	if p := optString(req, "publication"); p != "" {
		return p
	}
	return s.publication
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) convertMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md := optString(req, "markdown")
	path := optString(req, "path")
	switch {
	case md != "":
		md = frontmatter.StripBody([]byte(md))
	case path != "":
		note, err := s.vault.ReadNote(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		md = note.Body
	default:
		return mcp.NewToolResultError("markdown or path is required"), nil
	}

	body, err := richdoc.Encode(converter.Convert(md))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(body), nil
}

func (s *Server) publishNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	preq := publisher.Request{
		Path:        path,
		Publication: s.publicationFor(req),
		Title:       optString(req, "title"),
		Subtitle:    optString(req, "subtitle"),
		Audience:    optString(req, "audience"),
		Section:     optString(req, "section"),
		Publish:     req.GetBool("publish", false),
	}
	if tags := optString(req, "tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				preq.Tags = append(preq.Tags, t)
			}
		}
	}

	res, err := s.pub.CreateOrUpdate(ctx, preq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pub := s.publicationFor(req)
	if pub == "" {
		return mcp.NewToolResultError("publication is required"), nil
	}
	return jsonResult(s.remote.GetSections(ctx, pub))
}

func (s *Server) listHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attempts, err := s.ledger.ListAttempts(ctx, optString(req, "path"), req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(attempts) == 0 {
		return mcp.NewToolResultText("no publish attempts found"), nil
	}
	return jsonResult(attempts)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.vault.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(data), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.vault.Store().List(optString(req, "folder"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getFormatContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FormatContract), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatResourceURI,
			MIMEType: "text/markdown",
			Text:     FormatContract,
		},
	}, nil
}
