package escape

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"no terminator", "<p>a & b</p>", "<p>a & b</p>"},
		{"single terminator", "a]]>b", "a]]]]><![CDATA[>b"},
		{"terminator at start", "]]>x", "]]]]><![CDATA[>x"},
		{"terminator at end", "x]]>", "x]]]]><![CDATA[>"},
		{"adjacent terminators", "]]>]]>", "]]]]><![CDATA[>]]]]><![CDATA[>"},
		{"extra leading bracket", "]]]>", "]]]]]><![CDATA[>"},
		{"brackets without close", "]] ]", "]] ]"},
		{"already escaped text is escaped again", "]]]]><![CDATA[>", "]]]]]]><![CDATA[><![CDATA[>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Escape(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.input, Unescape(got))
		})
	}
}

// decodeCDATA wraps escaped text in an element and lets encoding/xml join the
// sections back together.
func decodeCDATA(t *testing.T, escaped string) string {
	t.Helper()

	var v struct {
		Body string `xml:",chardata"`
	}
	err := xml.Unmarshal([]byte("<b><![CDATA["+escaped+"]]></b>"), &v)
	require.NoError(t, err)

	return v.Body
}

func TestEscapedTextParsesBack(t *testing.T) {
	inputs := []string{
		"<!DOCTYPE html><html><body>]]></body></html>",
		"if (a[b[0]]>1) { x(); }",
		"]]]]]>>>",
		"<![CDATA[ nested ]]> text",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, in, decodeCDATA(t, Escape(in)))
		})
	}
}

func TestContainsTerminator(t *testing.T) {
	assert.True(t, ContainsTerminator("a]]>b"))
	assert.False(t, ContainsTerminator("a]]b>"))
	assert.False(t, ContainsTerminator(strings.Repeat("]", 10)))
}

func FuzzEscapeRoundTrip(f *testing.F) {
	f.Add("")
	f.Add("]]>")
	f.Add("]]]>]]>>")
	f.Add("<script>if(a[b[c]]>d){}</script>")

	f.Fuzz(func(t *testing.T, s string) {
		escaped := Escape(s)
		if Unescape(escaped) != s {
			t.Fatalf("round trip mismatch for %q", s)
		}

		// Every terminator left in the escaped text must be one we inserted.
		if strings.Count(escaped, Terminator) != strings.Count(escaped, Reopen) {
			t.Fatalf("stray terminator in %q", escaped)
		}
	})
}
