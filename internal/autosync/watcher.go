// Package autosync pushes edits of already-published notes to their remote
// drafts. It watches the vault with fsnotify and, after a quiet period per
// note, re-runs the publish workflow in update-only mode.
package autosync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/vault"
)

// DefaultDebounce is how long a note must stay unchanged before it syncs.
const DefaultDebounce = 2 * time.Second

const reconcileDelay = 200 * time.Millisecond

// Publisher is the workflow autosync drives.
type Publisher interface {
	CreateOrUpdate(ctx context.Context, req publisher.Request) (*publisher.Result, error)
}

// Notifier is told about every note change seen on disk.
type Notifier interface {
	NoteChanged(path string)
}

// Syncer watches a vault and keeps remote drafts current.
type Syncer struct {
	vault       *vault.Vault
	pub         Publisher
	ledger      ledger.Ledger
	publication string
	debounce    time.Duration
	notifier    Notifier
	log         *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	due     chan string
	done    chan struct{}
}

// Config configures a Syncer.
type Config struct {
	Publication string
	Debounce    time.Duration
	Notifier    Notifier
	Logger      *slog.Logger
}

// New creates a Syncer. The ledger supplies the body checksum of the last
// successful run so unchanged notes are skipped.
func New(v *vault.Vault, pub Publisher, l ledger.Ledger, cfg Config) *Syncer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		vault:       v,
		pub:         pub,
		ledger:      l,
		publication: cfg.Publication,
		debounce:    cfg.Debounce,
		notifier:    cfg.Notifier,
		log:         cfg.Logger,
		pending:     make(map[string]*time.Timer),
		due:         make(chan string, 64),
		done:        make(chan struct{}),
	}
}

// Run watches the vault until ctx is cancelled.
//
// New directories are added to the watch list as they appear. Renames and
// removals trigger a short, debounced ledger reconciliation.
func (s *Syncer) Run(ctx context.Context) error {
	root := s.vault.Store().Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	s.log.Info("autosync: started", slog.String("root", root), slog.Duration("debounce", s.debounce))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	defer func() {
		s.stopPending()
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.log.Info("autosync: stopped")
			return nil

		case <-reconcileCh:
			if s.ledger == nil {
				continue
			}
			stats, err := ledger.Sync(ctx, s.ledger, s.vault, s.publication, s.log)
			if err != nil {
				s.log.Warn("autosync: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			if stats.Imported+stats.Removed > 0 {
				s.log.Debug("autosync: reconciled", slog.Int("imported", stats.Imported), slog.Int("removed", stats.Removed))
			}

		case rel := <-s.due:
			if _, err := s.SyncNote(ctx, rel); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("autosync: sync failed", slog.String("path", rel), slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if storage.IsTemp(ev.Name) || hidden(root, ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						s.log.Warn("autosync: add new dir failed", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !vault.IsNote(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if s.notifier != nil {
					s.notifier.NoteChanged(rel)
				}
				s.schedule(rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports renames on the old path; the new path
				// arrives as a Create.
				s.cancel(rel)
				if s.notifier != nil {
					s.notifier.NoteChanged(rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("autosync: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// SyncNote updates the remote draft of rel if the note already has one and
// its body changed since the last successful run. It reports whether a
// workflow run happened.
func (s *Syncer) SyncNote(ctx context.Context, rel string) (bool, error) {
	note, err := s.vault.ReadNote(rel)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if note.Meta.DraftID == "" {
		return false, nil
	}

	if s.ledger != nil {
		rec, err := s.ledger.GetPublication(ctx, rel, s.publication)
		switch {
		case err == nil && rec.BodyChecksum != "" && rec.BodyChecksum == note.BodyChecksum():
			s.log.Debug("autosync: unchanged", slog.String("path", rel))
			return false, nil
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return false, err
		}
	}

	res, err := s.pub.CreateOrUpdate(ctx, publisher.Request{
		Path:         rel,
		Publication:  s.publication,
		OnlyExisting: true,
	})
	if err != nil {
		return true, err
	}
	if res.Skipped {
		for _, w := range res.Warnings {
			s.log.Warn("autosync: skipped", slog.String("path", rel), slog.String("reason", w))
		}
		return false, nil
	}
	s.log.Info("autosync: draft updated",
		slog.String("path", rel),
		slog.String("draft_id", res.DraftID),
		slog.Int("warnings", len(res.Warnings)),
	)
	return true, nil
}

// schedule (re)starts the quiet-period timer for rel.
func (s *Syncer) schedule(rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[rel]; ok {
		t.Reset(s.debounce)
		return
	}
	s.pending[rel] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.pending, rel)
		s.mu.Unlock()
		select {
		case s.due <- rel:
		case <-s.done:
		}
	})
}

func (s *Syncer) cancel(rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[rel]; ok {
		t.Stop()
		delete(s.pending, rel)
	}
}

func (s *Syncer) stopPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rel, t := range s.pending {
		t.Stop()
		delete(s.pending, rel)
	}
}

func hidden(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to w.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
