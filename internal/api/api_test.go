package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/testutil"
)

type testEnv struct {
	router http.Handler
	fake   *testutil.FakeRemote
}

// newTestEnv builds a router over a temp vault, a temp ledger and a fake
// remote. An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string, files map[string]string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, files, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, files map[string]string, sseHandler http.Handler) *testEnv {
	t.Helper()
	v := testutil.NewVault(t, files)
	db := testutil.TestLedger(t)
	fake := testutil.NewFakeRemote(t)
	client := substack.NewClient("secret", substack.WithBaseURL(fake.BaseURL()))
	pub := publisher.New(v, client, publisher.WithLedger(db), publisher.WithDefaults(publisher.Defaults{Publication: "mypub"}))

	router := NewRouter(Deps{
		Vault:       v,
		Publisher:   pub,
		Remote:      client,
		Ledger:      db,
		Publication: "mypub",
	}, token != "", token, sseHandler, 0)
	return &testEnv{router: router, fake: fake}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestConvertInline(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := env.do(t, http.MethodPost, "/convert", map[string]string{"markdown": "---\ntitle: x\n---\n# Hi\n\n**b**"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Document json.RawMessage `json:"document"`
		Body     string          `json:"body"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(resp.Document), `"type":"heading"`) {
		t.Errorf("document = %s", resp.Document)
	}
	if strings.Contains(resp.Body, "title") {
		t.Errorf("front matter leaked into body: %s", resp.Body)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &doc); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if doc["type"] != "doc" {
		t.Errorf("body root = %v", doc["type"])
	}
}

func TestConvertFromPath(t *testing.T) {
	env := newTestEnv(t, "", map[string]string{"posts/a.md": "Hello *there*\n"})

	w := env.do(t, http.MethodPost, "/convert", map[string]string{"path": "posts/a.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"type":"em"`) {
		t.Errorf("missing em mark: %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/convert", map[string]string{"path": "nope.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPost, "/convert", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty request = %d, want 400", w.Code)
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := env.do(t, http.MethodPost, "/preview", map[string]string{"markdown": "# Hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp PreviewResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp.HTML, "<h1") {
		t.Errorf("html = %q", resp.HTML)
	}
}

func TestPublishAndHistory(t *testing.T) {
	env := newTestEnv(t, "", map[string]string{"a.md": "---\ntitle: Hello\n---\nbody\n"})

	w := env.do(t, http.MethodPost, "/publish", map[string]any{"path": "a.md", "publish": true})
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d, body = %s", w.Code, w.Body.String())
	}
	var res publisher.Result
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Created || !res.Published || res.DraftID == "" {
		t.Errorf("result = %+v", res)
	}
	if res.CanonicalURL != "https://mypub.substack.com/p/hello" {
		t.Errorf("canonical url = %q", res.CanonicalURL)
	}

	w = env.do(t, http.MethodGet, "/history?path=a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if len(hist.Attempts) != 1 || hist.Attempts[0].Outcome != models.OutcomeSuccess {
		t.Errorf("attempts = %+v", hist.Attempts)
	}

	w = env.do(t, http.MethodGet, "/notes?published=true", nil)
	var notes NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &notes)
	if notes.Total != 1 || notes.Notes[0].DraftID != res.DraftID || !notes.Notes[0].Published {
		t.Errorf("notes = %+v", notes)
	}
}

func TestPublishErrors(t *testing.T) {
	env := newTestEnv(t, "", map[string]string{
		"untitled.md": "body\n",
		"ok.md":       "---\ntitle: OK\n---\nbody\n",
	})

	w := env.do(t, http.MethodPost, "/publish", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no path = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/publish", map[string]any{"path": "untitled.md"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing title = %d, want 422", w.Code)
	}

	w = env.do(t, http.MethodPost, "/publish", map[string]any{"path": "ok.md", "audience": "vip"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad audience = %d, want 400", w.Code)
	}

	env.fake.Override("POST /drafts", http.StatusTooManyRequests)
	w = env.do(t, http.MethodPost, "/publish", map[string]any{"path": "ok.md"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Too many requests") {
		t.Errorf("body = %s", w.Body.String())
	}

	env.fake.Override("POST /drafts", http.StatusBadRequest)
	w = env.do(t, http.MethodPost, "/publish", map[string]any{"path": "ok.md"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("remote rejection = %d, want 502", w.Code)
	}
}

func TestSections(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.fake.SetSections(testutil.FakeSection{ID: 3, Name: "News", Slug: "news", IsLive: true})

	w := env.do(t, http.MethodGet, "/sections", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SectionsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Publication != "mypub" || len(resp.Sections) != 1 || resp.Sections[0].Name != "News" {
		t.Errorf("sections = %+v", resp)
	}

	env.fake.Override("GET /publication/sections", http.StatusInternalServerError)
	w = env.do(t, http.MethodGet, "/sections?publication=other", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sections":[]`) {
		t.Errorf("failed lookup = %d %s, want empty list", w.Code, w.Body.String())
	}
}

func TestListNotes(t *testing.T) {
	env := newTestEnv(t, "", map[string]string{
		"b.md":         "b",
		"a.md":         "a",
		".hidden/c.md": "c",
		"img.png":      "x",
	})

	w := env.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Notes[0].Path != "a.md" || resp.Notes[1].Path != "b.md" {
		t.Errorf("notes = %+v", resp.Notes)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret123", nil)

	w := env.do(t, http.MethodGet, "/notes", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret123", nil)

	w := env.do(t, http.MethodPost, "/convert", map[string]string{"markdown": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret123", nil)

	w := env.do(t, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnvWithSSE(t, "secret", nil, sseStub())

	w := env.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnvWithSSE(t, "tok", nil, sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	env := newTestEnvWithSSE(t, "tok", nil, sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with access_token should not 401")
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGet(t *testing.T) {
	env := newTestEnv(t, "tok", nil)

	w := env.do(t, http.MethodPost, "/convert?access_token=tok", map[string]string{"markdown": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

// Image upload tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := uploadFile(t, env.router, "shot.png", testutil.PNG)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ImageUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.URL != "https://cdn.test/img/1" || resp.Filename != "shot.png" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestUploadImage_Rejected(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := uploadFile(t, env.router, "notes.txt", []byte("hello"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported = %d, want 400", w.Code)
	}

	w = uploadFile(t, env.router, "fake.png", []byte("not really a png"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("mismatched content = %d, want 400", w.Code)
	}

	env.fake.RejectUpload = func(string) bool { return true }
	w = uploadFile(t, env.router, "shot.png", testutil.PNG)
	if w.Code != http.StatusBadGateway {
		t.Errorf("remote rejection = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shot.png") {
		t.Errorf("error does not name the file: %s", w.Body.String())
	}
	if env.fake.Calls("POST /image") != 1 {
		t.Errorf("remote calls = %d, want 1", env.fake.Calls("POST /image"))
	}
}

func TestUploadImage_MissingFileField(t *testing.T) {
	env := newTestEnv(t, "", nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", w.Code)
	}
}
