package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// FakeDraft is a draft held by FakeRemote.
type FakeDraft struct {
	ID        int
	Title     string
	Subtitle  string
	Body      string
	Audience  string
	Tags      []string
	SectionID int
	Published bool
}

// FakeSection is a section served by FakeRemote.
type FakeSection struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	IsLive bool   `json:"is_live"`
}

// FakeRemote is an in-memory draft API behind an httptest server. Routes
// live under /{publication}/api/v1, so BaseURL works as a client template.
type FakeRemote struct {
	Server *httptest.Server

	mu        sync.Mutex
	drafts    map[int]*FakeDraft
	order     []int
	nextID    int
	sections  []FakeSection
	calls     map[string]int
	overrides map[string]int
	uploads   int

	// RejectUpload, when set, fails uploads whose payload it matches.
	RejectUpload func(data string) bool
}

// NewFakeRemote starts a fake remote that is shut down with t.
func NewFakeRemote(t *testing.T) *FakeRemote {
	t.Helper()
	f := &FakeRemote{
		drafts:    make(map[int]*FakeDraft),
		nextID:    100,
		calls:     make(map[string]int),
		overrides: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/{publication}/api/v1", func(r chi.Router) {
		r.Use(f.middleware)
		r.Post("/drafts", f.createDraft)
		r.Get("/drafts", f.listDrafts)
		r.Get("/drafts/{id}", f.getDraft)
		r.Put("/drafts/{id}", f.updateDraft)
		r.Post("/drafts/{id}/publish", f.publishDraft)
		r.Get("/publication/sections", f.listSections)
		r.Post("/image", f.uploadImage)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the client base URL template for this server.
func (f *FakeRemote) BaseURL() string {
	return f.Server.URL + "/{publication}/api/v1"
}

// AddDraft seeds a draft and returns its ID.
func (f *FakeRemote) AddDraft(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(&FakeDraft{Title: title})
}

// SetSections replaces the served sections.
func (f *FakeRemote) SetSections(s ...FakeSection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sections = s
}

// Override forces status for a route key such as "GET /drafts/{id}".
func (f *FakeRemote) Override(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[route] = status
}

// Calls returns how often a route key was hit.
func (f *FakeRemote) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// Draft returns a copy of draft id.
func (f *FakeRemote) Draft(id int) (FakeDraft, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return FakeDraft{}, false
	}
	return *d, true
}

// DraftCount returns the number of drafts held.
func (f *FakeRemote) DraftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

func (f *FakeRemote) addLocked(d *FakeDraft) int {
	f.nextID++
	d.ID = f.nextID
	f.drafts[d.ID] = d
	f.order = append(f.order, d.ID)
	return d.ID
}

func (f *FakeRemote) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Route pattern is only known after routing; count with a normalized key.
		key := r.Method + " " + routeKey(strings.SplitN(r.URL.Path, "/api/v1", 2)[1])

		f.mu.Lock()
		f.calls[key]++
		status, forced := f.overrides[key]
		f.mu.Unlock()

		if r.Header.Get("Cookie") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if forced {
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeKey(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 2 && parts[0] == "drafts" {
		parts[1] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

func (f *FakeRemote) draftJSON(d *FakeDraft) map[string]any {
	out := map[string]any{
		"id":             d.ID,
		"draft_title":    d.Title,
		"draft_subtitle": d.Subtitle,
		"audience":       d.Audience,
		"is_published":   d.Published,
	}
	if d.SectionID != 0 {
		out["draft_section_id"] = d.SectionID
	}
	return out
}

func (f *FakeRemote) createDraft(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title    string   `json:"draft_title"`
		Subtitle string   `json:"draft_subtitle"`
		Body     string   `json:"draft_body"`
		Audience string   `json:"audience"`
		Tags     []string `json:"post_tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	d := &FakeDraft{Title: in.Title, Subtitle: in.Subtitle, Body: in.Body, Audience: in.Audience, Tags: in.Tags}
	f.addLocked(d)
	out := f.draftJSON(d)
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (f *FakeRemote) listDrafts(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	out := make([]map[string]any, 0, len(f.order))
	for _, id := range f.order {
		if d, ok := f.drafts[id]; ok && !d.Published {
			out = append(out, f.draftJSON(d))
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"drafts": out})
}

func (f *FakeRemote) lookup(w http.ResponseWriter, r *http.Request) *FakeDraft {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	d, ok := f.drafts[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	return d
}

func (f *FakeRemote) getDraft(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d := f.lookup(w, r); d != nil {
		writeJSON(w, http.StatusOK, f.draftJSON(d))
	}
}

func (f *FakeRemote) updateDraft(w http.ResponseWriter, r *http.Request) {
	var in map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.lookup(w, r)
	if d == nil {
		return
	}
	for k, raw := range in {
		switch k {
		case "draft_title":
			_ = json.Unmarshal(raw, &d.Title)
		case "draft_subtitle":
			_ = json.Unmarshal(raw, &d.Subtitle)
		case "draft_body":
			_ = json.Unmarshal(raw, &d.Body)
		case "audience":
			_ = json.Unmarshal(raw, &d.Audience)
		case "post_tags":
			_ = json.Unmarshal(raw, &d.Tags)
		case "draft_section_id":
			_ = json.Unmarshal(raw, &d.SectionID)
		}
	}
	writeJSON(w, http.StatusOK, f.draftJSON(d))
}

func (f *FakeRemote) publishDraft(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.lookup(w, r)
	if d == nil {
		return
	}
	d.Published = true
	slug := strings.ToLower(strings.ReplaceAll(d.Title, " ", "-"))
	pub := chi.URLParam(r, "publication")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            d.ID,
		"slug":          slug,
		"canonical_url": fmt.Sprintf("https://%s.substack.com/p/%s", pub, slug),
	})
}

func (f *FakeRemote) listSections(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	out := append([]FakeSection{}, f.sections...)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeRemote) uploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	data := r.PostForm.Get("image")
	if !strings.HasPrefix(data, "data:image/") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if f.RejectUpload != nil && f.RejectUpload(data) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	f.mu.Lock()
	f.uploads++
	n := f.uploads
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"url": fmt.Sprintf("https://cdn.test/img/%d", n)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
