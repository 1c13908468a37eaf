package autosync

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/herald/internal/frontmatter"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/testutil"
	"github.com/starford/herald/internal/vault"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) NoteChanged(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *changes) seen(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, x := range c.paths {
		if x == p {
			return true
		}
	}
	return false
}

type env struct {
	dir   string
	fake  *testutil.FakeRemote
	vault *vault.Vault
	sync  *Syncer
	notes *changes
}

func newEnv(t *testing.T, files map[string]string) *env {
	t.Helper()
	dir, store := testutil.TestVault(t, files)
	v := vault.New(store)
	db := testutil.TestLedger(t)
	fake := testutil.NewFakeRemote(t)
	client := substack.NewClient("secret", substack.WithBaseURL(fake.BaseURL()))
	pub := publisher.New(v, client, publisher.WithLedger(db))
	notes := &changes{}
	s := New(v, pub, db, Config{Publication: "mypub", Debounce: 50 * time.Millisecond, Notifier: notes})
	return &env{dir: dir, fake: fake, vault: v, sync: s, notes: notes}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSyncNote_SkipsNotesWithoutDraft(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\ntitle: A\n---\nbody\n"})

	ran, err := e.sync.SyncNote(context.Background(), "a.md")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, e.fake.DraftCount())
	assert.Zero(t, e.fake.Calls("GET /drafts"))
}

func TestSyncNote_UpdatesOnlyWhenBodyChanged(t *testing.T) {
	e := newEnv(t, nil)
	id := e.fake.AddDraft("Tracked")
	require.NoError(t, e.vault.Store().Write("a.md",
		[]byte("---\ntitle: Tracked\ndraft_id: "+strconv.Itoa(id)+"\n---\nfirst\n")))
	ctx := context.Background()

	ran, err := e.sync.SyncNote(ctx, "a.md")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, e.fake.Calls("PUT /drafts/{id}"))

	ran, err = e.sync.SyncNote(ctx, "a.md")
	require.NoError(t, err)
	assert.False(t, ran, "unchanged body is skipped")
	assert.Equal(t, 1, e.fake.Calls("PUT /drafts/{id}"))

	require.NoError(t, e.vault.WriteFrontmatter("a.md", func(m *frontmatter.Matter) error {
		return m.Set("subtitle", "front matter only")
	}))
	ran, err = e.sync.SyncNote(ctx, "a.md")
	require.NoError(t, err)
	assert.False(t, ran, "front matter edits do not count as body changes")

	require.NoError(t, e.vault.Store().Write("a.md",
		[]byte("---\ntitle: Tracked\ndraft_id: "+strconv.Itoa(id)+"\n---\nsecond\n")))
	ran, err = e.sync.SyncNote(ctx, "a.md")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, e.fake.Calls("PUT /drafts/{id}"))
	assert.Zero(t, e.fake.Calls("POST /drafts"), "autosync never creates drafts")
}

func TestSyncNote_StaleDraftIsNotRecreated(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\ntitle: Orphan\ndraft_id: 999\n---\nbody\n"})

	ran, err := e.sync.SyncNote(context.Background(), "a.md")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, e.fake.DraftCount())
	assert.Zero(t, e.fake.Calls("POST /drafts"))

	meta, err := e.vault.ReadFrontmatter("a.md")
	require.NoError(t, err)
	assert.Equal(t, "999", meta.DraftID)
}

func TestSyncNote_MissingFile(t *testing.T) {
	e := newEnv(t, nil)
	ran, err := e.sync.SyncNote(context.Background(), "gone.md")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestRun_DebouncedUpdate(t *testing.T) {
	e := newEnv(t, nil)
	id := e.fake.AddDraft("Live")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.sync.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(e.dir, "live.md")
	for i := 0; i < 3; i++ {
		content := "---\ntitle: Live\ndraft_id: " + strconv.Itoa(id) + "\n---\nedit " + strconv.Itoa(i) + "\n"
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return e.fake.Calls("PUT /drafts/{id}") >= 1
	}, "draft not updated by autosync")
	assert.True(t, e.notes.seen("live.md"))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, e.fake.Calls("PUT /drafts/{id}"), "burst of writes syncs once")

	d, _ := e.fake.Draft(id)
	assert.Contains(t, d.Body, "edit 2")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_IgnoresHiddenAndTemp(t *testing.T) {
	e := newEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.sync.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".herald-tmp-123.md"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(e.dir, ".obsidian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".obsidian", "w.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "seen.md"), []byte("x"), 0o644))

	eventually(t, 2*time.Second, 25*time.Millisecond, func() bool {
		return e.notes.seen("seen.md")
	}, "visible note change not reported")
	assert.False(t, e.notes.seen(".herald-tmp-123.md"))
	assert.False(t, e.notes.seen(".obsidian/w.md"))
}
