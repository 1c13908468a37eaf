// Package richdoc defines the rich-document tree accepted by the newsletter
// platform: a "doc" envelope holding typed blocks, whose paragraphs and
// headings hold inline runs.
package richdoc

// Kind is the wire type tag of a node.
type Kind string

// Node kinds understood by the remote editor.
const (
	KindDoc            Kind = "doc"
	KindParagraph      Kind = "paragraph"
	KindHeading        Kind = "heading"
	KindBulletList     Kind = "bulletList"
	KindOrderedList    Kind = "orderedList"
	KindListItem       Kind = "listItem"
	KindCodeBlock      Kind = "codeBlock"
	KindBlockquote     Kind = "blockquote"
	KindImage          Kind = "image2"
	KindHorizontalRule Kind = "horizontal_rule"
	KindPaywall        Kind = "paywall"
	KindText           Kind = "text"
	KindHardBreak      Kind = "hardBreak"
)

// Mark is an inline formatting mark on a text run.
type Mark string

// Supported marks. Links are a separate run type, not a mark.
const (
	MarkStrong Mark = "strong"
	MarkEm     Mark = "em"
	MarkCode   Mark = "code"
)

// Document is the root of a converted note.
type Document struct {
	Blocks []Block
}

// Kind always reports KindDoc.
func (Document) Kind() Kind { return KindDoc }

// Block is one structural unit of a document.
type Block interface {
	Kind() Kind
	node() Node
}

// Run is one inline span inside a paragraph or heading.
type Run interface {
	Kind() Kind
	node() Node
}

// Paragraph is a sequence of runs.
type Paragraph struct {
	Runs []Run
}

// Heading is a leveled title. Level is within [1,6] when built with NewHeading.
type Heading struct {
	Level int
	Runs  []Run
}

// BulletList is an unordered list; each item is exactly one paragraph.
type BulletList struct {
	Items []Paragraph
}

// OrderedList is a numbered list; each item is exactly one paragraph.
type OrderedList struct {
	Items []Paragraph
}

// CodeBlock is a fenced block of verbatim code.
type CodeBlock struct {
	Language string
	Code     string
}

// Blockquote holds quoted paragraphs.
type Blockquote struct {
	Items []Paragraph
}

// Image is a standalone image block.
type Image struct {
	Src   string
	Alt   string
	Title string
}

// HorizontalRule is a thematic break.
type HorizontalRule struct{}

// Paywall marks where free content ends. The converter never emits it.
type Paywall struct{}

// Text is a run of characters carrying zero or more marks.
type Text struct {
	Value string
	Marks []Mark
}

// Link is a hyperlink run. Its text is not further formatted.
type Link struct {
	Text string
	Href string
}

// LineBreak is a hard break inside a paragraph.
type LineBreak struct{}

func (Paragraph) Kind() Kind      { return KindParagraph }
func (Heading) Kind() Kind        { return KindHeading }
func (BulletList) Kind() Kind     { return KindBulletList }
func (OrderedList) Kind() Kind    { return KindOrderedList }
func (CodeBlock) Kind() Kind      { return KindCodeBlock }
func (Blockquote) Kind() Kind     { return KindBlockquote }
func (Image) Kind() Kind          { return KindImage }
func (HorizontalRule) Kind() Kind { return KindHorizontalRule }
func (Paywall) Kind() Kind        { return KindPaywall }
func (Text) Kind() Kind           { return KindText }
func (Link) Kind() Kind           { return KindText }
func (LineBreak) Kind() Kind      { return KindHardBreak }

// HasMark reports whether the run carries m.
func (t Text) HasMark(m Mark) bool {
	for _, have := range t.Marks {
		if have == m {
			return true
		}
	}
	return false
}

// PlainText flattens the runs of a paragraph, rendering hard breaks as newlines.
func (p Paragraph) PlainText() string {
	return plainText(p.Runs)
}

// PlainText flattens the heading runs.
func (h Heading) PlainText() string {
	return plainText(h.Runs)
}

func plainText(runs []Run) string {
	var out []byte
	for _, r := range runs {
		switch v := r.(type) {
		case Text:
			out = append(out, v.Value...)
		case Link:
			out = append(out, v.Text...)
		case LineBreak:
			out = append(out, '\n')
		}
	}
	return string(out)
}
