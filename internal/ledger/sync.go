package ledger

import (
	"context"
	"log/slog"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/vault"
)

// SyncStats counts what Sync changed.
type SyncStats struct {
	Imported int
	Removed  int
}

// Sync brings the ledger in line with the vault for one publication:
//   - notes whose front matter carries a draft_id unknown to the ledger are imported
//   - records whose note no longer exists on disk are removed
//
// Imported records have no body checksum, so the next autosync pass
// treats them as changed.
func Sync(ctx context.Context, db Ledger, v *vault.Vault, publication string, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	metas, err := v.Store().List("")
	if err != nil {
		return stats, err
	}
	known, err := db.ListPublications(ctx)
	if err != nil {
		return stats, err
	}

	tracked := make(map[string]models.Publication, len(known))
	for _, p := range known {
		if p.Publication == publication {
			tracked[p.Path] = p
		}
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if _, ok := tracked[m.Path]; ok {
			continue
		}

		meta, err := v.ReadFrontmatter(m.Path)
		if err != nil {
			logger.Warn("ledger sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if meta.DraftID == "" {
			continue
		}
		rec := models.Publication{
			Path:         m.Path,
			Publication:  publication,
			DraftID:      meta.DraftID,
			Title:        meta.Title,
			CanonicalURL: meta.CanonicalURL,
			Published:    meta.CanonicalURL != "",
		}
		if err := db.UpsertPublication(ctx, rec); err != nil {
			logger.Warn("ledger sync: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Imported++
		logger.Debug("ledger sync: imported", slog.String("path", m.Path), slog.String("draft_id", meta.DraftID))
	}

	for p := range tracked {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeletePath(ctx, p); err != nil {
			logger.Warn("ledger sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("ledger sync: removed stale", slog.String("path", p))
	}

	return stats, nil
}
