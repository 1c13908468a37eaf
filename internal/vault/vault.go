// Package vault reads notes and edits their front matter on top of a
// storage provider.
package vault

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/starford/herald/internal/checksum"
	"github.com/starford/herald/internal/frontmatter"
	"github.com/starford/herald/internal/storage"
)

// Note is a note read from the vault.
type Note struct {
	Path     string
	Raw      []byte
	Body     string
	Meta     frontmatter.Metadata
	Checksum string
}

// Dir is the slash-separated directory of the note inside the vault.
func (n *Note) Dir() string {
	d := path.Dir(n.Path)
	if d == "." {
		return ""
	}
	return d
}

// BodyChecksum fingerprints the Markdown body, ignoring front matter.
func (n *Note) BodyChecksum() string {
	return checksum.String(n.Body)
}

// Vault serializes front matter writes so concurrent publishes of the same
// vault cannot lose each other's keys.
type Vault struct {
	store storage.Provider
	mu    sync.Mutex
}

// New creates a Vault over store.
func New(store storage.Provider) *Vault {
	return &Vault{store: store}
}

// Store exposes the underlying provider.
func (v *Vault) Store() storage.Provider { return v.store }

// ReadFile returns the full text of a vault file.
func (v *Vault) ReadFile(p string) (string, error) {
	data, err := v.store.Read(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBinary returns the raw bytes of a vault file.
func (v *Vault) ReadBinary(p string) ([]byte, error) {
	return v.store.Read(p)
}

// ReadFrontmatter returns the typed front matter of a note.
func (v *Vault) ReadFrontmatter(p string) (frontmatter.Metadata, error) {
	data, err := v.store.Read(p)
	if err != nil {
		return frontmatter.Metadata{}, err
	}
	return frontmatter.Parse(data).Metadata(), nil
}

// ReadNote reads and splits a Markdown note.
func (v *Vault) ReadNote(p string) (*Note, error) {
	if !IsNote(p) {
		return nil, fmt.Errorf("vault: not a markdown note: %s", p)
	}
	data, err := v.store.Read(p)
	if err != nil {
		return nil, err
	}
	m := frontmatter.Parse(data)
	return &Note{
		Path:     p,
		Raw:      data,
		Body:     m.Body,
		Meta:     m.Metadata(),
		Checksum: checksum.Sum(data),
	}, nil
}

// WriteFrontmatter applies mutate to the note's front matter and writes the
// note back. The body is re-read under the lock, so edits made since an
// earlier ReadNote are kept.
func (v *Vault) WriteFrontmatter(p string, mutate func(*frontmatter.Matter) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.store.Read(p)
	if err != nil {
		return err
	}
	m := frontmatter.Parse(data)
	if m.Invalid() {
		return fmt.Errorf("vault: %s: %w", p, frontmatter.ErrInvalid)
	}
	if err := mutate(m); err != nil {
		return err
	}
	out, err := m.Bytes()
	if err != nil {
		return err
	}
	if string(out) == string(data) {
		return nil
	}
	return v.store.Write(p, out)
}

// IsNote reports whether p names a Markdown note.
func IsNote(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".md")
}
