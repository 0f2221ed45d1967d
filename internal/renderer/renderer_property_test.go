//go:build property

package renderer

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestNavigationProperties checks that navigation always stays in range and
// that prev/next are inverse moves.
func TestNavigationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("navigation stays inside the range", prop.ForAll(
		func(minPage, span, offset int) bool {
			maxPage := minPage + span
			page := minPage + offset%(span+1)
			prev, next := Navigation(page, minPage, maxPage)
			return prev >= minPage && prev <= maxPage && next >= minPage && next <= maxPage
		},
		gen.IntRange(1, 900),
		gen.IntRange(0, 99),
		gen.IntRange(0, 1000),
	))

	properties.Property("next of prev is the page itself", prop.ForAll(
		func(minPage, span, offset int) bool {
			maxPage := minPage + span
			page := minPage + offset%(span+1)
			prev, _ := Navigation(page, minPage, maxPage)
			_, back := Navigation(prev, minPage, maxPage)
			return back == page
		},
		gen.IntRange(1, 900),
		gen.IntRange(1, 99),
		gen.IntRange(0, 1000),
	))

	properties.Property("rendered page carries its number", prop.ForAll(
		func(page int) bool {
			tmpl := NewPageTemplate("t", "<b>{{PAGE_NUMBER}}</b>{{CONTENT}}")
			html, err := Render(tmpl, page, "", "", "", 100, 999)
			return err == nil && strings.HasPrefix(html, "<b>"+strconv.Itoa(page)+"</b>")
		},
		gen.IntRange(100, 999),
	))

	properties.TestingRun(t)
}
