// Package testutil provides shared test helpers: temp vaults, temp ledgers
// and an in-memory fake of the remote draft API.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/vault"
)

// TestLedger opens a ledger in a temp directory that is cleaned up with t.
func TestLedger(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "herald-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temp vault seeded with files (path → content).
func TestVault(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return dir, store
}

// NewVault is TestVault wrapped in a *vault.Vault.
func NewVault(t *testing.T, files map[string]string) *vault.Vault {
	t.Helper()
	_, store := TestVault(t, files)
	return vault.New(store)
}

// PNG is a minimal byte sequence sniffed as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
