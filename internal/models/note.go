// Package models defines the records shared between herald's layers.
package models

import "time"

// NoteMetadata is a lightweight listing entry for a vault note.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileInfo describes a vault file.
type FileInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	IsDir     bool      `json:"is_dir"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publication is the last known remote state of a note.
type Publication struct {
	Path         string    `json:"path"`
	Publication  string    `json:"publication"`
	DraftID      string    `json:"draft_id"`
	Title        string    `json:"title"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	BodyChecksum string    `json:"body_checksum"`
	Published    bool      `json:"published"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Attempt is one run of the publish workflow for a note.
type Attempt struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	Publication    string    `json:"publication"`
	Title          string    `json:"title"`
	DraftID        string    `json:"draft_id,omitempty"`
	Created        bool      `json:"created"`
	Published      bool      `json:"published"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	ImagesUploaded int       `json:"images_uploaded"`
	ImageErrors    int       `json:"image_errors"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
