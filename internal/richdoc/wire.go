package richdoc

import (
	"encoding/json"
	"fmt"
)

// Node is the wire form of any document node.
type Node struct {
	Type    Kind           `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    *string        `json:"text,omitempty"`
	Marks   []MarkNode     `json:"marks,omitempty"`
}

// MarkNode is the wire form of a mark.
type MarkNode struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// docWire keeps "content" present even for an empty document.
type docWire struct {
	Type    Kind   `json:"type"`
	Content []Node `json:"content"`
}

// MarshalJSON encodes the document as the remote editor's node tree.
func (d Document) MarshalJSON() ([]byte, error) {
	content := make([]Node, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		content = append(content, b.node())
	}
	return json.Marshal(docWire{Type: KindDoc, Content: content})
}

// Encode returns the document as a JSON string, the form the draft payload
// embeds in its body field.
func Encode(d Document) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("richdoc: encode: %w", err)
	}
	return string(data), nil
}

func textNode(value string, marks []MarkNode) Node {
	v := value
	return Node{Type: KindText, Text: &v, Marks: marks}
}

func runNodes(runs []Run) []Node {
	out := make([]Node, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.node())
	}
	return out
}

func itemNodes(items []Paragraph) []Node {
	out := make([]Node, 0, len(items))
	for _, p := range items {
		out = append(out, Node{Type: KindListItem, Content: []Node{p.node()}})
	}
	return out
}

func (t Text) node() Node {
	var marks []MarkNode
	for _, m := range t.Marks {
		marks = append(marks, MarkNode{Type: string(m)})
	}
	return textNode(t.Value, marks)
}

func (l Link) node() Node {
	return textNode(l.Text, []MarkNode{{Type: "link", Attrs: map[string]any{"href": l.Href}}})
}

func (LineBreak) node() Node { return Node{Type: KindHardBreak} }

func (p Paragraph) node() Node {
	return Node{Type: KindParagraph, Content: runNodes(p.Runs)}
}

func (h Heading) node() Node {
	return Node{Type: KindHeading, Attrs: map[string]any{"level": h.Level}, Content: runNodes(h.Runs)}
}

func (l BulletList) node() Node {
	return Node{Type: KindBulletList, Content: itemNodes(l.Items)}
}

func (l OrderedList) node() Node {
	return Node{Type: KindOrderedList, Content: itemNodes(l.Items)}
}

func (c CodeBlock) node() Node {
	n := Node{Type: KindCodeBlock, Content: []Node{textNode(c.Code, nil)}}
	if c.Language != "" {
		n.Attrs = map[string]any{"language": c.Language}
	}
	return n
}

func (q Blockquote) node() Node {
	content := make([]Node, 0, len(q.Items))
	for _, p := range q.Items {
		content = append(content, p.node())
	}
	return Node{Type: KindBlockquote, Content: content}
}

func (i Image) node() Node {
	attrs := map[string]any{"src": i.Src, "fullscreen": false}
	if i.Alt != "" {
		attrs["alt"] = i.Alt
	}
	if i.Title != "" {
		attrs["title"] = i.Title
	}
	return Node{Type: KindImage, Attrs: attrs}
}

func (HorizontalRule) node() Node { return Node{Type: KindHorizontalRule} }

func (Paywall) node() Node { return Node{Type: KindPaywall} }
