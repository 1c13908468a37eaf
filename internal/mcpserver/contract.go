package mcpserver

// FormatContract describes the Markdown subset the converter understands
// and the front matter keys the publish workflow reads and writes.
const FormatContract = `# Herald Markdown Format Contract

Notes are converted line by line into the platform's rich document format.
Anything outside this subset is published as plain paragraph text.

## Front matter

` + "```" + `markdown
---
title: Human-readable title   # REQUIRED unless passed to publish_note
subtitle: Optional subtitle
tags: [essay, go]             # list or comma-separated string
audience: everyone            # everyone | only_paid | founding | only_free
section: Deep Dives           # section ID, name or slug
draft_id: 12345               # WRITTEN BY HERALD, do not edit
canonical_url: https://...    # WRITTEN BY HERALD after publishing
published_at: 2025-01-20T...  # WRITTEN BY HERALD after publishing
---
` + "```" + `

Unknown keys are kept untouched.

## Blocks

- ` + "`# Heading`" + ` to ` + "`###### Heading`" + ` (a space after the hashes is required; heading text is plain)
- Paragraphs: consecutive non-blank lines; a line break inside a paragraph is kept
- ` + "`- item`, `* item`, `+ item`" + ` bullet lists; ` + "`1. item`" + ` ordered lists
- ` + "`> quote`" + ` blockquotes; consecutive quote lines join into one paragraph
- Fenced code blocks with an optional language: ` + "```go" + `
- ` + "`---`, `***`, `___`" + ` horizontal rules
- ` + "`![alt](src \"title\")`" + ` alone on a line becomes an image block

## Inline

- ` + "`**bold**`" + `, ` + "`*italic*`" + `, ` + "`***both***`" + `
- ` + "`` `code` ``" + `
- ` + "`[text](https://link)`" + ` (link text is not formatted further)
- Backslash escapes: ` + "`\\*`, `\\[`, `\\]`" + `
- Underscore emphasis is not supported; it stays literal text.

## Images

- Local images are uploaded to the CDN when the note is published; the note
  itself keeps its local paths.
- Paths resolve against the note's folder; a leading ` + "`/`" + ` means the vault root.
- Supported formats: png, jpg, jpeg, gif, webp, up to 10 MB.
- Use the ` + "`upload_image`" + ` tool to put a remote image on the CDN first.
`
