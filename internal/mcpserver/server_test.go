package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/testutil"
	"github.com/starford/herald/internal/vault"
)

func testServer(t *testing.T) (*Server, storage.Provider, *testutil.FakeRemote) {
	t.Helper()

	_, store := testutil.TestVault(t, nil)
	v := vault.New(store)
	db := testutil.TestLedger(t)
	fake := testutil.NewFakeRemote(t)
	client := substack.NewClient("secret", substack.WithBaseURL(fake.BaseURL()))
	pub := publisher.New(v, client, publisher.WithLedger(db), publisher.WithDefaults(publisher.Defaults{Publication: "mypub"}))

	srv := New(v, pub, client, db, "mypub")
	return srv, store, fake
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "convert_markdown":
		result, err = srv.convertMarkdown(ctx, req)
	case "publish_note":
		result, err = srv.publishNote(ctx, req)
	case "list_sections":
		result, err = srv.listSections(ctx, req)
	case "list_history":
		result, err = srv.listHistory(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	case "get_format_contract":
		result, err = srv.getFormatContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestConvertMarkdown(t *testing.T) {
	srv, store, _ := testServer(t)

	r := callTool(t, srv, "convert_markdown", map[string]interface{}{"markdown": "# Hi\n\ntext"})
	if r.IsError {
		t.Fatalf("convert failed: %s", resultText(r))
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if doc["type"] != "doc" {
		t.Errorf("root type = %v", doc["type"])
	}

	_ = store.Write("n.md", []byte("---\ntitle: T\n---\n- one\n- two\n"))
	r = callTool(t, srv, "convert_markdown", map[string]interface{}{"path": "n.md"})
	if !strings.Contains(resultText(r), `"bulletList"`) {
		t.Errorf("convert by path = %s", resultText(r))
	}

	r = callTool(t, srv, "convert_markdown", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without input")
	}
}

func TestPublishNoteAndHistory(t *testing.T) {
	srv, store, fake := testServer(t)
	_ = store.Write("post.md", []byte("---\ntitle: From MCP\n---\nHello\n"))

	r := callTool(t, srv, "publish_note", map[string]interface{}{
		"path": "post.md",
		"tags": "a, b",
	})
	if r.IsError {
		t.Fatalf("publish failed: %s", resultText(r))
	}
	var res publisher.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Published {
		t.Errorf("result = %+v", res)
	}
	if fake.DraftCount() != 1 {
		t.Errorf("drafts = %d, want 1", fake.DraftCount())
	}

	r = callTool(t, srv, "list_history", map[string]interface{}{"path": "post.md"})
	if !strings.Contains(resultText(r), `"outcome": "success"`) {
		t.Errorf("history = %s", resultText(r))
	}
}

func TestPublishNoteMissingTitle(t *testing.T) {
	srv, store, fake := testServer(t)
	_ = store.Write("bare.md", []byte("no title here\n"))

	r := callTool(t, srv, "publish_note", map[string]interface{}{"path": "bare.md"})
	if !r.IsError {
		t.Fatal("expected error for missing title")
	}
	if fake.Calls("POST /drafts") != 0 {
		t.Error("no draft should be created")
	}
}

func TestListSections(t *testing.T) {
	srv, _, fake := testServer(t)
	fake.SetSections(testutil.FakeSection{ID: 4, Name: "Essays", Slug: "essays", IsLive: true})

	r := callTool(t, srv, "list_sections", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"Essays"`) {
		t.Errorf("sections = %s", resultText(r))
	}
}

func TestHistoryEmpty(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "list_history", map[string]interface{}{})
	if resultText(r) != "no publish attempts found" {
		t.Errorf("history = %q", resultText(r))
	}
}

func TestReadAndListNotes(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("a"))
	_ = store.Write("dir/b.md", []byte("b"))

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "a.md"})
	if resultText(r) != "a" {
		t.Errorf("read = %q", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"folder": "dir"})
	if resultText(r) != "dir/b.md" {
		t.Errorf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestUploadImageDataURI(t *testing.T) {
	srv, _, fake := testServer(t)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG)
	r := callTool(t, srv, "upload_image", map[string]interface{}{"url": uri, "filename": "chart.png"})
	if r.IsError {
		t.Fatalf("upload failed: %s", resultText(r))
	}
	var out uploadResult
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if out.URL != "https://cdn.test/img/1" || out.MarkdownImage != "![chart](https://cdn.test/img/1)" {
		t.Errorf("result = %+v", out)
	}
	if fake.Calls("POST /image") != 1 {
		t.Errorf("uploads = %d", fake.Calls("POST /image"))
	}
}

func TestUploadImageRemoteRejection(t *testing.T) {
	srv, _, fake := testServer(t)
	fake.RejectUpload = func(string) bool { return true }

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG)
	r := callTool(t, srv, "upload_image", map[string]interface{}{"url": uri, "filename": "chart.png"})
	if !r.IsError {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(resultText(r), "chart.png") {
		t.Errorf("error does not name the file: %s", resultText(r))
	}
}

func TestUploadImageRejectsBadInput(t *testing.T) {
	srv, _, fake := testServer(t)

	cases := []string{
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png")),
		"data:application/pdf;base64,JVBERi0=",
		"ftp://example.com/a.png",
		"http://127.0.0.1/a.png",
	}
	for _, u := range cases {
		r := callTool(t, srv, "upload_image", map[string]interface{}{"url": u})
		if !r.IsError {
			t.Errorf("expected error for %q", u)
		}
	}
	if fake.Calls("POST /image") != 0 {
		t.Errorf("nothing should reach the CDN, got %d uploads", fake.Calls("POST /image"))
	}
}

func TestFormatContract(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_format_contract", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "draft_id") || !strings.Contains(text, "png, jpg, jpeg, gif, webp") {
		t.Errorf("contract missing key sections")
	}
}

func TestUploadImageTooLarge(t *testing.T) {
	_, store, fake := testServer(t)
	v := vault.New(store)
	client := substack.NewClient("secret", substack.WithBaseURL(fake.BaseURL()))
	srv := New(v, publisher.New(v, client), client, nil, "mypub", WithMaxImageBytes(4))

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG)
	r := callTool(t, srv, "upload_image", map[string]interface{}{"url": uri})
	if !r.IsError {
		t.Fatal("expected size error")
	}
	if fake.Calls("POST /image") != 0 {
		t.Error("oversized image must not be uploaded")
	}
}
