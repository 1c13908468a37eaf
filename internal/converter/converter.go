// Package converter turns note Markdown into the newsletter platform's
// rich-document tree.
//
// The supported dialect is deliberately small: ATX headings, fenced code,
// horizontal rules, single-level quotes and lists, standalone images and
// paragraphs with strong/em/code/link spans. Anything else degrades to
// paragraph text instead of failing.
package converter

import "github.com/starford/herald/internal/richdoc"

// Convert wraps the scanned blocks of markdown in a document envelope.
func Convert(markdown string) richdoc.Document {
	return richdoc.Document{Blocks: ScanBlocks(markdown)}
}
