package richdoc

import (
	"errors"
	"fmt"
)

// ErrInvalidLevel is returned when a heading level is outside [1,6].
var ErrInvalidLevel = errors.New("richdoc: heading level must be between 1 and 6")

// NewText builds a text run. Duplicate marks are dropped, first occurrence wins.
func NewText(value string, marks ...Mark) Text {
	if len(marks) == 0 {
		return Text{Value: value}
	}
	out := make([]Mark, 0, len(marks))
	for _, m := range marks {
		dup := false
		for _, have := range out {
			if have == m {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, m)
		}
	}
	return Text{Value: value, Marks: out}
}

// NewLink builds a link run.
func NewLink(text, href string) Link {
	return Link{Text: text, Href: href}
}

// NewParagraph builds a paragraph from runs.
func NewParagraph(runs ...Run) Paragraph {
	return Paragraph{Runs: runs}
}

// PlainParagraph builds a paragraph holding a single unmarked text run.
func PlainParagraph(text string) Paragraph {
	return Paragraph{Runs: []Run{NewText(text)}}
}

// NewHeading builds a heading, rejecting levels outside [1,6].
func NewHeading(level int, runs ...Run) (Heading, error) {
	if level < 1 || level > 6 {
		return Heading{}, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}
	return Heading{Level: level, Runs: runs}, nil
}

// NewBulletList wraps each run sequence in its own paragraph item.
func NewBulletList(items ...[]Run) BulletList {
	return BulletList{Items: paragraphs(items)}
}

// NewOrderedList wraps each run sequence in its own paragraph item.
func NewOrderedList(items ...[]Run) OrderedList {
	return OrderedList{Items: paragraphs(items)}
}

// NewCodeBlock builds a code block; language may be empty.
func NewCodeBlock(code, language string) CodeBlock {
	return CodeBlock{Language: language, Code: code}
}

// NewBlockquote builds a quote holding one plain paragraph.
func NewBlockquote(text string) Blockquote {
	return Blockquote{Items: []Paragraph{PlainParagraph(text)}}
}

// NewImage builds an image block; alt and title may be empty.
func NewImage(src, alt, title string) Image {
	return Image{Src: src, Alt: alt, Title: title}
}

func paragraphs(items [][]Run) []Paragraph {
	out := make([]Paragraph, len(items))
	for i, runs := range items {
		out[i] = Paragraph{Runs: runs}
	}
	return out
}
