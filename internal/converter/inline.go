package converter

import (
	"regexp"
	"strings"

	"github.com/starford/herald/internal/richdoc"
)

// Private-use code points standing in for escaped characters while scanning.
const (
	sentinelAsterisk     = "\uE000"
	sentinelBracketOpen  = "\uE001"
	sentinelBracketClose = "\uE002"
)

var (
	protectEscapes = strings.NewReplacer(`\*`, sentinelAsterisk, `\[`, sentinelBracketOpen, `\]`, sentinelBracketClose)
	restoreEscapes = strings.NewReplacer(sentinelAsterisk, "*", sentinelBracketOpen, "[", sentinelBracketClose, "]")
)

type inlineKind int

const (
	inlineBoldItalic inlineKind = iota
	inlineBold
	inlineItalic
	inlineLink
	inlineCode
)

// Declaration order breaks ties between matches starting at the same offset.
var inlinePatterns = []struct {
	kind inlineKind
	re   *regexp.Regexp
}{
	{inlineBoldItalic, regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`)},
	{inlineBold, regexp.MustCompile(`\*\*([^*]+)\*\*`)},
	{inlineItalic, regexp.MustCompile(`\*([^*]+)\*`)},
	{inlineLink, regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)},
	{inlineCode, regexp.MustCompile("`([^`]+)`")},
}

// FormatInline resolves emphasis, strong, code and link spans in text.
// The earliest match in the remaining input wins at every step. The result
// always holds at least one run.
func FormatInline(text string) []richdoc.Run {
	remaining := protectEscapes.Replace(text)
	var runs []richdoc.Run

	for remaining != "" {
		best := -1
		var loc []int
		for i, p := range inlinePatterns {
			m := p.re.FindStringSubmatchIndex(remaining)
			if m == nil {
				continue
			}
			if best < 0 || m[0] < loc[0] {
				best, loc = i, m
			}
		}

		if best < 0 {
			runs = append(runs, plain(remaining))
			break
		}

		if loc[0] > 0 {
			runs = append(runs, plain(remaining[:loc[0]]))
		}
		group := func(n int) string {
			return restoreEscapes.Replace(remaining[loc[2*n]:loc[2*n+1]])
		}

		switch inlinePatterns[best].kind {
		case inlineBoldItalic:
			runs = append(runs, richdoc.NewText(group(1), richdoc.MarkStrong, richdoc.MarkEm))
		case inlineBold:
			runs = append(runs, richdoc.NewText(group(1), richdoc.MarkStrong))
		case inlineItalic:
			runs = append(runs, richdoc.NewText(group(1), richdoc.MarkEm))
		case inlineLink:
			runs = append(runs, richdoc.NewLink(group(1), group(2)))
		case inlineCode:
			runs = append(runs, richdoc.NewText(group(1), richdoc.MarkCode))
		}

		remaining = remaining[loc[1]:]
	}

	if len(runs) == 0 {
		return []richdoc.Run{richdoc.NewText("")}
	}
	return runs
}

func plain(s string) richdoc.Text {
	return richdoc.NewText(restoreEscapes.Replace(s))
}
