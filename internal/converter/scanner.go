package converter

import (
	"regexp"
	"strings"

	"github.com/starford/herald/internal/richdoc"
)

var (
	headingRe     = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	ruleRe        = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)
	listStartRe   = regexp.MustCompile(`^(\*|-|\+|\d+\.)\s`)
	orderedStart  = regexp.MustCompile(`^\d+\.\s`)
	orderedItemRe = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	bulletItemRe  = regexp.MustCompile(`^[*+-]\s+(.+)$`)
	imageLineRe   = regexp.MustCompile(`^!\[([^\]]*)\]\(([^\s)]+)(?:\s+"([^"]+)")?\)$`)
)

const fence = "```"

// ScanBlocks splits markdown into blocks in one pass over its lines.
// It never fails: malformed constructs degrade to paragraph text.
func ScanBlocks(markdown string) []richdoc.Block {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	lines := strings.Split(markdown, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	s := &scanner{lines: lines}
	for s.pos < len(s.lines) {
		s.step()
	}
	return s.blocks
}

type scanner struct {
	lines  []string
	pos    int
	blocks []richdoc.Block
}

func (s *scanner) emit(b richdoc.Block) {
	s.blocks = append(s.blocks, b)
}

// step classifies the line at pos and consumes it, or the run of lines it opens.
func (s *scanner) step() {
	line := s.lines[s.pos]
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		s.pos++
	case strings.HasPrefix(trimmed, fence) && s.closingFence(s.pos) >= 0:
		s.codeBlock()
	case headingRe.MatchString(line):
		s.heading()
	case ruleRe.MatchString(trimmed):
		s.emit(richdoc.HorizontalRule{})
		s.pos++
	case strings.HasPrefix(line, ">"):
		s.blockquote()
	case listStartRe.MatchString(trimmed):
		s.list()
	default:
		s.paragraph()
	}
}

// startsBlock reports whether line i opens anything other than a paragraph.
func (s *scanner) startsBlock(i int) bool {
	line := s.lines[i]
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, fence):
		return s.closingFence(i) >= 0
	case headingRe.MatchString(line),
		ruleRe.MatchString(trimmed),
		strings.HasPrefix(line, ">"),
		listStartRe.MatchString(trimmed):
		return true
	}
	return false
}

// closingFence returns the index of the fence closing the one opened at i, or -1.
func (s *scanner) closingFence(i int) int {
	for j := i + 1; j < len(s.lines); j++ {
		if strings.TrimSpace(s.lines[j]) == fence {
			return j
		}
	}
	return -1
}

func (s *scanner) codeBlock() {
	open := s.pos
	end := s.closingFence(open)
	language := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s.lines[open]), fence))
	code := strings.Join(s.lines[open+1:end], "\n")
	s.emit(richdoc.NewCodeBlock(code, language))
	s.pos = end + 1
}

func (s *scanner) heading() {
	m := headingRe.FindStringSubmatch(s.lines[s.pos])
	// The pattern bounds the level to [1,6].
	h, _ := richdoc.NewHeading(len(m[1]), richdoc.NewText(strings.TrimSpace(m[2])))
	s.emit(h)
	s.pos++
}

func (s *scanner) blockquote() {
	var parts []string
	for s.pos < len(s.lines) {
		trimmed := strings.TrimSpace(s.lines[s.pos])
		if !strings.HasPrefix(trimmed, ">") {
			break
		}
		parts = append(parts, strings.TrimSpace(trimmed[1:]))
		s.pos++
	}
	s.emit(richdoc.NewBlockquote(strings.Join(parts, " ")))
}

func (s *scanner) list() {
	ordered := orderedStart.MatchString(strings.TrimSpace(s.lines[s.pos]))
	itemRe := bulletItemRe
	if ordered {
		itemRe = orderedItemRe
	}
	isItem := func(line string) bool {
		return itemRe.MatchString(strings.TrimSpace(line))
	}

	var items [][]richdoc.Run
	for s.pos < len(s.lines) {
		trimmed := strings.TrimSpace(s.lines[s.pos])
		if trimmed == "" {
			next := s.pos + 1
			if next >= len(s.lines) || !isItem(s.lines[next]) {
				break
			}
			s.pos++
			continue
		}
		m := itemRe.FindStringSubmatch(trimmed)
		if m == nil {
			break
		}
		items = append(items, FormatInline(m[1]))
		s.pos++
	}

	if len(items) == 0 {
		// A list opener whose item text is empty; keep it as text.
		s.paragraph()
		return
	}
	if ordered {
		s.emit(richdoc.NewOrderedList(items...))
	} else {
		s.emit(richdoc.NewBulletList(items...))
	}
}

func (s *scanner) paragraph() {
	start := s.pos
	s.pos++
	for s.pos < len(s.lines) {
		if strings.TrimSpace(s.lines[s.pos]) == "" || s.startsBlock(s.pos) {
			break
		}
		s.pos++
	}
	lines := s.lines[start:s.pos]

	if len(lines) == 1 {
		if m := imageLineRe.FindStringSubmatch(strings.TrimSpace(lines[0])); m != nil {
			s.emit(richdoc.NewImage(m[2], m[1], m[3]))
			return
		}
	}

	var runs []richdoc.Run
	for i, l := range lines {
		if i > 0 {
			runs = append(runs, richdoc.LineBreak{})
		}
		runs = append(runs, FormatInline(l)...)
	}
	s.emit(richdoc.NewParagraph(runs...))
}
