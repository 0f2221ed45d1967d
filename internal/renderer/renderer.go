// Package renderer merges a page template, navigation values and per-page
// content into a single HTML document.
//
// Substitution is literal: the template holds {{NAME}} placeholders drawn
// from a fixed set, and each is replaced in a single pass so substituted
// values are never re-scanned. Unrecognised placeholders are left in place.
package renderer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
)

// Placeholder names recognised by the renderer.
const (
	PlaceholderPageNumber = "PAGE_NUMBER"
	PlaceholderContent    = "CONTENT"
	PlaceholderStyle      = "STYLE"
	PlaceholderScript     = "SCRIPT"
	PlaceholderPrevPage   = "PREV_PAGE"
	PlaceholderNextPage   = "NEXT_PAGE"
)

// Placeholders lists every recognised placeholder name.
var Placeholders = []string{
	PlaceholderPageNumber,
	PlaceholderContent,
	PlaceholderStyle,
	PlaceholderScript,
	PlaceholderPrevPage,
	PlaceholderNextPage,
}

var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Token returns the placeholder as it appears in a template.
func Token(name string) string {
	return "{{" + name + "}}"
}

// PageTemplate is a parsed page template. It is immutable and safe to share
// between goroutines.
type PageTemplate struct {
	name    string
	text    string
	present map[string]bool
	unknown []string
}

// NewPageTemplate parses text and records which placeholders it uses. name is
// only used in diagnostics.
func NewPageTemplate(name, text string) *PageTemplate {
	known := make(map[string]bool, len(Placeholders))
	for _, p := range Placeholders {
		known[p] = true
	}

	present := make(map[string]bool)
	seenUnknown := make(map[string]bool)
	var unknown []string

	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		ph := m[1]
		if known[ph] {
			present[ph] = true
			continue
		}
		if !seenUnknown[ph] {
			seenUnknown[ph] = true
			unknown = append(unknown, ph)
		}
	}
	sort.Strings(unknown)

	return &PageTemplate{
		name:    name,
		text:    text,
		present: present,
		unknown: unknown,
	}
}

// Name returns the name the template was loaded under.
func (t *PageTemplate) Name() string { return t.name }

// Text returns the raw template text.
func (t *PageTemplate) Text() string { return t.text }

// Has reports whether the template uses the named placeholder.
func (t *PageTemplate) Has(placeholder string) bool { return t.present[placeholder] }

// UnknownPlaceholders lists {{X}} tokens that are not recognised and will be
// left untouched by Render.
func (t *PageTemplate) UnknownPlaceholders() []string {
	out := make([]string, len(t.unknown))
	copy(out, t.unknown)
	return out
}

// Check returns a TemplateError when a required placeholder is missing.
func (t *PageTemplate) Check() error {
	if t == nil {
		return fragerrors.NewTemplateError(fragerrors.ErrCodeMissingPlaceholder, "no page template loaded")
	}
	if !t.present[PlaceholderContent] {
		return fragerrors.NewTemplateError(
			fragerrors.ErrCodeMissingPlaceholder,
			fmt.Sprintf("template %s has no %s placeholder", t.name, Token(PlaceholderContent)),
		).WithPath(t.name)
	}
	return nil
}

// Navigation computes the previous and next page numbers with wraparound at
// both ends of [minPage, maxPage].
func Navigation(pageNumber, minPage, maxPage int) (prev, next int) {
	prev = pageNumber - 1
	next = pageNumber + 1
	if pageNumber == minPage {
		prev = maxPage
	}
	if pageNumber == maxPage {
		next = minPage
	}
	return prev, next
}

// Render substitutes the page values into tmpl.
func Render(tmpl *PageTemplate, pageNumber int, content, style, script string, minPage, maxPage int) (string, error) {
	if err := tmpl.Check(); err != nil {
		return "", err
	}
	if minPage > maxPage {
		return "", fragerrors.NewInputError(
			fragerrors.ErrCodePageOutOfRange,
			fmt.Sprintf("invalid page range %d-%d", minPage, maxPage),
			nil,
		)
	}
	if pageNumber < minPage || pageNumber > maxPage {
		return "", fragerrors.NewInputError(
			fragerrors.ErrCodePageOutOfRange,
			fmt.Sprintf("page %d outside range %d-%d", pageNumber, minPage, maxPage),
			nil,
		).WithPage(pageNumber)
	}

	prev, next := Navigation(pageNumber, minPage, maxPage)

	r := strings.NewReplacer(
		Token(PlaceholderPageNumber), strconv.Itoa(pageNumber),
		Token(PlaceholderContent), content,
		Token(PlaceholderStyle), style,
		Token(PlaceholderScript), script,
		Token(PlaceholderPrevPage), strconv.Itoa(prev),
		Token(PlaceholderNextPage), strconv.Itoa(next),
	)

	return r.Replace(tmpl.text), nil
}
