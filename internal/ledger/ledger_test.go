package ledger

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/vault"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM publications`).Scan(&count); err != nil {
		t.Fatalf("publications table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM attempts`).Scan(&count); err != nil {
		t.Fatalf("attempts table missing: %v", err)
	}
}

func TestUpsertAndGetPublication(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec := models.Publication{
		Path: "posts/a.md", Publication: "pub", DraftID: "1", Title: "A",
		CanonicalURL: "https://pub.substack.com/p/a", BodyChecksum: "c1", Published: true,
	}
	if err := db.UpsertPublication(ctx, rec); err != nil {
		t.Fatalf("UpsertPublication: %v", err)
	}

	// A later draft save must not lose the URL or the published flag.
	rec.CanonicalURL, rec.Published, rec.BodyChecksum = "", false, "c2"
	if err := db.UpsertPublication(ctx, rec); err != nil {
		t.Fatalf("UpsertPublication: %v", err)
	}

	got, err := db.GetPublication(ctx, "posts/a.md", "pub")
	if err != nil {
		t.Fatalf("GetPublication: %v", err)
	}
	if got.CanonicalURL != "https://pub.substack.com/p/a" || !got.Published || got.BodyChecksum != "c2" {
		t.Errorf("got %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}
}

func TestGetPublication_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetPublication(context.Background(), "nope.md", "pub")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAttempts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, path := range []string{"a.md", "b.md", "a.md"} {
		a := models.Attempt{
			ID:          path + string(rune('0'+i)),
			Path:        path,
			Publication: "pub",
			Outcome:     models.OutcomeSuccess,
			Created:     i == 0,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if err := db.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	all, err := db.ListAttempts(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a.md2" {
		t.Fatalf("attempts = %+v", all)
	}

	forA, err := db.ListAttempts(ctx, "a.md", 1)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(forA) != 1 || forA[0].ID != "a.md2" {
		t.Errorf("attempts for a.md = %+v", forA)
	}

	last, _ := db.ListAttempts(ctx, "a.md", 10)
	if !last[1].Created || !last[1].StartedAt.Equal(base) {
		t.Errorf("oldest attempt = %+v", last[1])
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Write("tracked.md", []byte("---\ndraft_id: 10\ntitle: T\n---\nBody"))
	_ = store.Write("plain.md", []byte("No front matter"))
	v := vault.New(store)

	_ = db.UpsertPublication(ctx, models.Publication{Path: "gone.md", Publication: "pub", DraftID: "9"})
	_ = db.UpsertPublication(ctx, models.Publication{Path: "gone.md", Publication: "other", DraftID: "8"})

	stats, err := Sync(ctx, db, v, "pub", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Imported != 1 || stats.Removed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	got, err := db.GetPublication(ctx, "tracked.md", "pub")
	if err != nil {
		t.Fatalf("tracked note not imported: %v", err)
	}
	if got.DraftID != "10" || got.Title != "T" {
		t.Errorf("imported = %+v", got)
	}
	if _, err := db.GetPublication(ctx, "gone.md", "pub"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale record kept: %v", err)
	}
}
