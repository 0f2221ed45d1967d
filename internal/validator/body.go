package validator

import (
	"regexp"
	"strings"

	"github.com/conneroisu/pagefrag/internal/escape"
)

// bodyScan is a raw, parser independent reading of the body element. It is
// used by the layers that inspect the embedded HTML so that they still run
// when the document is not well-formed.
type bodyScan struct {
	found bool
	// html is the concatenation of every CDATA section.
	html     string
	sections int
	// stray holds non-whitespace text found between or around sections.
	stray []string
	// strayTerminator is set when a CDATA terminator appears outside any
	// section, meaning embedded content was not escaped.
	strayTerminator bool
	unterminated    bool
}

func openTagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`<` + regexp.QuoteMeta(tag) + `(\s[^>]*)?(/?)>`)
}

func scanBody(doc, bodyTag string) bodyScan {
	var s bodyScan

	loc := openTagPattern(bodyTag).FindStringSubmatchIndex(doc)
	if loc == nil {
		return s
	}
	s.found = true
	if loc[5] > loc[4] {
		// Self closing, no content.
		return s
	}

	closeTag := "</" + bodyTag
	rest := doc[loc[1]:]
	var sb strings.Builder

	for len(rest) > 0 {
		switch {
		case strings.HasPrefix(rest, escape.Open):
			rest = rest[len(escape.Open):]
			end := strings.Index(rest, escape.Terminator)
			if end < 0 {
				s.unterminated = true
				sb.WriteString(rest)
				s.sections++
				s.html = sb.String()
				return s
			}
			sb.WriteString(rest[:end])
			s.sections++
			rest = rest[end+len(escape.Terminator):]
		case strings.HasPrefix(rest, closeTag):
			s.html = sb.String()
			return s
		default:
			next := len(rest)
			if i := strings.Index(rest, escape.Open); i >= 0 && i < next {
				next = i
			}
			if i := strings.Index(rest, closeTag); i >= 0 && i < next {
				next = i
			}
			chunk := rest[:next]
			if escape.ContainsTerminator(chunk) {
				s.strayTerminator = true
			}
			if strings.TrimSpace(chunk) != "" {
				s.stray = append(s.stray, chunk)
			}
			rest = rest[next:]
		}
	}

	s.html = sb.String()
	return s
}
