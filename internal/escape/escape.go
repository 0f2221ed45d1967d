// Package escape makes arbitrary text safe for embedding inside an XML CDATA
// section.
//
// A CDATA section ends at the first "]]>" it contains, so that sequence is the
// only thing that needs treatment. Escape splits every terminator between its
// brackets and the closing angle bracket, closing the current section and
// opening a new one:
//
//	a]]>b  ->  a]]]]><![CDATA[>b
//
// An XML parser joins the adjacent sections back into "a]]>b".
package escape

import "strings"

const (
	// Open starts a CDATA section.
	Open = "<![CDATA["
	// Terminator ends a CDATA section.
	Terminator = "]]>"
	// Reopen is inserted between "]]" and ">" of every terminator.
	Reopen = Terminator + Open

	escapedTerminator = "]]" + Reopen + ">"
)

// Escape replaces every CDATA terminator in content, scanning left to right
// without overlap. No other character is modified.
func Escape(content string) string {
	if !strings.Contains(content, Terminator) {
		return content
	}

	return strings.ReplaceAll(content, Terminator, escapedTerminator)
}

// Unescape reverses Escape. For every string s, Unescape(Escape(s)) == s.
func Unescape(escaped string) string {
	if !strings.Contains(escaped, Reopen) {
		return escaped
	}

	return strings.ReplaceAll(escaped, Reopen, "")
}

// ContainsTerminator reports whether s still holds a raw CDATA terminator.
func ContainsTerminator(s string) bool {
	return strings.Contains(s, Terminator)
}
