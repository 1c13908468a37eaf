// Package frontmatter splits a note into its YAML front matter and Markdown
// body, and edits the front matter without disturbing keys it does not own.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when writing to a note whose front matter is not a
// YAML mapping.
var ErrInvalid = errors.New("frontmatter: invalid YAML block")

const delim = "---"

var bom = []byte("\xef\xbb\xbf")

// Matter is a parsed note.
type Matter struct {
	// Body is the Markdown after the front matter block, or the whole file
	// when there is no usable block.
	Body string

	root    *yaml.Node // mapping node; nil when the note has no block
	invalid bool
}

// Split separates the raw front matter block from the body. A block must
// start on the first line and be closed by a "---" or "..." line.
func Split(data []byte) (block, body []byte, found bool) {
	s := bytes.TrimPrefix(data, bom)
	nl := bytes.IndexByte(s, '\n')
	if nl < 0 || string(bytes.TrimRight(s[:nl], " \t\r")) != delim {
		return nil, data, false
	}

	rest := s[nl+1:]
	for off := 0; off <= len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		line, next := rest[off:], len(rest)
		if end >= 0 {
			line, next = rest[off:off+end], off+end+1
		}
		if t := string(bytes.TrimRight(line, " \t\r")); t == delim || t == "..." {
			return rest[:off], rest[next:], true
		}
		if end < 0 {
			break
		}
		off = next
	}
	return nil, data, false
}

// Parse reads a note. Invalid YAML is not an error: the whole file becomes
// the body and the note is marked invalid for writing.
func Parse(data []byte) *Matter {
	block, body, found := Split(data)
	if !found {
		return &Matter{Body: string(data)}
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(bytes.TrimSpace(block)) > 0 {
		var doc yaml.Node
		if err := yaml.Unmarshal(block, &doc); err != nil ||
			len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
			return &Matter{Body: string(data), invalid: true}
		}
		root = doc.Content[0]
	}
	return &Matter{Body: string(body), root: root}
}

// StripBody returns the body of data with any front matter removed.
func StripBody(data []byte) string {
	return Parse(data).Body
}

// Invalid reports whether a block was present but unparsable.
func (m *Matter) Invalid() bool { return m.invalid }


func (m *Matter) lookup(key string) *yaml.Node {
	if m.root == nil {
		return nil
	}
	for i := 0; i+1 < len(m.root.Content); i += 2 {
		if m.root.Content[i].Value == key {
			return m.root.Content[i+1]
		}
	}
	return nil
}

// String returns the scalar value of key. Non-scalar and null values count
// as absent.
func (m *Matter) String(key string) (string, bool) {
	n := m.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}

// Strings returns a list value. A scalar is read as one comma-separated list.
func (m *Matter) Strings(key string) []string {
	n := m.lookup(key)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode {
				out = appendTrimmed(out, item.Value)
			}
		}
		return out
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(n.Value, ",") {
			out = appendTrimmed(out, part)
		}
		return out
	}
	return nil
}

// Set stores value under key, replacing the existing value in place or
// appending the key at the end.
func (m *Matter) Set(key string, value any) error {
	if m.invalid {
		return ErrInvalid
	}
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return fmt.Errorf("frontmatter: encode %s: %w", key, err)
	}
	if m.root == nil {
		m.root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	if existing := m.lookup(key); existing != nil {
		// Keep comments attached to the old value.
		n.HeadComment, n.LineComment, n.FootComment = existing.HeadComment, existing.LineComment, existing.FootComment
		*existing = n
		return nil
	}
	m.root.Content = append(m.root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&n,
	)
	return nil
}

// Bytes renders the note back to file content.
func (m *Matter) Bytes() ([]byte, error) {
	if m.root == nil {
		return []byte(m.Body), nil
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(m.root.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m.root); err != nil {
			return nil, fmt.Errorf("frontmatter: encode: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("frontmatter: encode: %w", err)
		}
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(m.Body)
	return buf.Bytes(), nil
}

func appendTrimmed(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}
