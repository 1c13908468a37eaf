package ledger

import (
	"context"

	"github.com/starford/herald/internal/models"
)

// Ledger is what the publish workflow and its readers need from storage.
// Consumers depend on this interface rather than on *DB.
type Ledger interface {
	RecordAttempt(ctx context.Context, a models.Attempt) error
	UpsertPublication(ctx context.Context, p models.Publication) error
	GetPublication(ctx context.Context, path, publication string) (*models.Publication, error)
	ListPublications(ctx context.Context) ([]models.Publication, error)
	ListAttempts(ctx context.Context, path string, limit int) ([]models.Attempt, error)
	DeletePath(ctx context.Context, path string) error
	Close() error
}

var _ Ledger = (*DB)(nil)
