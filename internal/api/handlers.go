package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/converter"
	"github.com/starford/herald/internal/frontmatter"
	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/preview"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/richdoc"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/vault"
)

// Publisher runs the publish workflow.
type Publisher interface {
	CreateOrUpdate(ctx context.Context, req publisher.Request) (*publisher.Result, error)
}

// Remote is the part of the draft API the handlers call directly.
type Remote interface {
	publisher.Uploader
	GetSections(ctx context.Context, publication string) []substack.Section
}

// Deps are the collaborators behind the API.
type Deps struct {
	Vault       *vault.Vault
	Publisher   Publisher
	Remote      Remote
	Ledger      ledger.Ledger
	Renderer    *preview.Renderer
	Publication string
}

// Handler holds API route handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	if d.Renderer == nil {
		d.Renderer = preview.New()
	}
	return &Handler{Deps: d}
}

// source resolves a SourceRequest to Markdown with front matter removed.
func (h *Handler) source(req SourceRequest) (string, error) {
	if req.Markdown != "" {
		return frontmatter.StripBody([]byte(req.Markdown)), nil
	}
	if req.Path == "" {
		return "", errors.New("markdown or path is required")
	}
	note, err := h.Vault.ReadNote(req.Path)
	if err != nil {
		return "", err
	}
	return note.Body, nil
}

func (h *Handler) writeSourceError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case path == "":
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error("read note failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	}
}

// Convert handles POST /api/convert.
//
//	@Summary		Convert Markdown to the remote rich document format
//	@Tags			convert
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SourceRequest	true	"Markdown or note path"
//	@Success		200		{object}	ConvertResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	md, err := h.source(req)
	if err != nil {
		h.writeSourceError(w, req.Path, err)
		return
	}
	doc := converter.Convert(md)
	body, err := richdoc.Encode(doc)
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertResponse{Document: doc, Body: body})
}

// Preview handles POST /api/preview.
//
//	@Summary		Render Markdown to HTML
//	@Tags			convert
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SourceRequest	true	"Markdown or note path"
//	@Success		200		{object}	PreviewResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	md, err := h.source(req)
	if err != nil {
		h.writeSourceError(w, req.Path, err)
		return
	}
	html, err := h.Renderer.Render(md)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{HTML: html})
}

// Publish handles POST /api/publish.
//
//	@Summary		Save a note as a draft and optionally publish it
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PublishRequest	true	"Publish request"
//	@Success		200		{object}	PublishResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	req.OnlyExisting = false

	res, err := h.Publisher.CreateOrUpdate(r.Context(), req)
	if err != nil {
		writeError(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sections handles GET /api/sections.
//
//	@Summary		List the sections of a publication
//	@Tags			publish
//	@Produce		json
//	@Param			publication	query		string	false	"Publication subdomain"
//	@Success		200			{object}	SectionsResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sections [get]
func (h *Handler) Sections(w http.ResponseWriter, r *http.Request) {
	pub := r.URL.Query().Get("publication")
	if pub == "" {
		pub = h.Publication
	}
	if pub == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("publication is required"))
		return
	}
	writeJSON(w, http.StatusOK, SectionsResponse{
		Publication: pub,
		Sections:    h.Remote.GetSections(r.Context(), pub),
	})
}

// History handles GET /api/history.
//
//	@Summary		List recent publish attempts
//	@Tags			publish
//	@Produce		json
//	@Param			path	query		string	false	"Only attempts for this note"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	attempts, err := h.Ledger.ListAttempts(r.Context(), q.Get("path"), limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Attempts: attempts})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List vault notes with their remote state
//	@Tags			notes
//	@Produce		json
//	@Param			published	query		bool	false	"Only notes with a draft"
//	@Success		200			{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	metas, err := h.Vault.Store().List("")
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	pubs, err := h.Ledger.ListPublications(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	state := make(map[string]models.Publication, len(pubs))
	for _, p := range pubs {
		if h.Publication == "" || p.Publication == h.Publication {
			state[p.Path] = p
		}
	}

	onlyTracked := r.URL.Query().Get("published") == "true"
	items := make([]NoteListItem, 0, len(metas))
	for _, m := range metas {
		p, tracked := state[m.Path]
		if onlyTracked && !tracked {
			continue
		}
		items = append(items, NoteListItem{
			Path:         m.Path,
			Checksum:     m.Checksum,
			UpdatedAt:    m.UpdatedAt,
			DraftID:      p.DraftID,
			Published:    p.Published,
			CanonicalURL: p.CanonicalURL,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}
