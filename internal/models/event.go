package models

import "time"

// Progress event types emitted by the publish workflow and the watcher.
const (
	EventPublishStarted = "publish.started"
	EventImagesUploaded = "images.uploaded"
	EventDraftCreated   = "draft.created"
	EventDraftUpdated   = "draft.updated"
	EventDraftPublished = "draft.published"
	EventPublishFailed  = "publish.failed"
	EventNoteChanged    = "note.changed"
)

// Event is one progress notification.
type Event struct {
	Type        string    `json:"type"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	Path        string    `json:"path"`
	Publication string    `json:"publication,omitempty"`
	DraftID     string    `json:"draft_id,omitempty"`
	URL         string    `json:"url,omitempty"`
	Message     string    `json:"message,omitempty"`
	Count       int       `json:"count,omitempty"`
	At          time.Time `json:"at"`
}
