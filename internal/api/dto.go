package api

import (
	"time"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/richdoc"
	"github.com/starford/herald/internal/substack"
)

// SourceRequest names the Markdown to work on: inline text or a vault note.
// When both are set, Markdown wins.
type SourceRequest struct {
	Markdown string `json:"markdown,omitempty" example:"# Hello\nWorld"`
	Path     string `json:"path,omitempty" example:"posts/hello.md"`
}

// ConvertResponse carries the converted document.
type ConvertResponse struct {
	Document richdoc.Document `json:"document" validate:"required"`
	Body     string           `json:"body" validate:"required"`
}

// PreviewResponse carries rendered HTML.
type PreviewResponse struct {
	HTML string `json:"html" validate:"required"`
}

// PublishRequest is the request body for POST /api/publish.
type PublishRequest = publisher.Request

// PublishResponse is the outcome of a publish run.
type PublishResponse = publisher.Result

// SectionsResponse lists a publication's sections.
type SectionsResponse struct {
	Publication string             `json:"publication" example:"mypub" validate:"required"`
	Sections    []substack.Section `json:"sections" validate:"required"`
}

// HistoryResponse lists recent publish attempts.
type HistoryResponse struct {
	Attempts []models.Attempt `json:"attempts" validate:"required"`
}

// NoteListItem is a vault note with its last known remote state.
type NoteListItem struct {
	Path         string    `json:"path" example:"posts/hello.md"`
	Checksum     string    `json:"checksum"`
	UpdatedAt    time.Time `json:"updated_at"`
	DraftID      string    `json:"draft_id,omitempty" example:"12345"`
	Published    bool      `json:"published"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// ImageUploadResponse is returned after an image reaches the CDN.
type ImageUploadResponse struct {
	Filename string `json:"filename" example:"image.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"https://cdn.example/image.png" validate:"required"`
}
