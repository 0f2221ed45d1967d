// Package fragment wraps rendered HTML in the XML envelope consumed by the
// policy gateway:
//
//	<fragment>
//	    <set-body><![CDATA[...rendered page...]]></set-body>
//	</fragment>
//
// The embedded HTML is escaped before it is placed in the CDATA section and
// the size ceiling is enforced on the escaped, serialized document.
package fragment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/escape"
)

const (
	// MaxBytes is the gateway's hard per-document ceiling.
	MaxBytes = 256 * 1024

	DefaultRootTag = "fragment"
	DefaultBodyTag = "set-body"

	indent = "\n    "
)

// BOM is the UTF-8 byte order mark written in front of persisted fragments.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// PolicyFragment is an assembled document.
type PolicyFragment struct {
	// HTML is the rendered page before escaping.
	HTML string
	// Document is the serialized XML without a byte order mark.
	Document []byte
	// Size is the number of bytes that will be persisted, BOM included when
	// the assembler writes one.
	Size int
	bom  bool
}

// Bytes returns the persisted form of the fragment.
func (f *PolicyFragment) Bytes() []byte {
	if !f.bom {
		return f.Document
	}
	out := make([]byte, 0, len(BOM)+len(f.Document))
	out = append(out, BOM...)
	return append(out, f.Document...)
}

// String returns the serialized document without a byte order mark.
func (f *PolicyFragment) String() string {
	return string(f.Document)
}

// Options configures an Assembler.
type Options struct {
	RootTag  string
	BodyTag  string
	MaxBytes int
	BOM      bool
}

// Assembler builds PolicyFragments. It holds no mutable state.
type Assembler struct {
	rootTag  string
	bodyTag  string
	maxBytes int
	bom      bool
}

// NewAssembler creates an assembler. Zero values fall back to the defaults;
// MaxBytes is clamped to the gateway ceiling.
func NewAssembler(opts Options) *Assembler {
	a := &Assembler{
		rootTag:  opts.RootTag,
		bodyTag:  opts.BodyTag,
		maxBytes: opts.MaxBytes,
		bom:      opts.BOM,
	}
	if a.rootTag == "" {
		a.rootTag = DefaultRootTag
	}
	if a.bodyTag == "" {
		a.bodyTag = DefaultBodyTag
	}
	if a.maxBytes <= 0 || a.maxBytes > MaxBytes {
		a.maxBytes = MaxBytes
	}
	return a
}

// RootTag returns the configured root element name.
func (a *Assembler) RootTag() string { return a.rootTag }

// BodyTag returns the configured body-setting element name.
func (a *Assembler) BodyTag() string { return a.bodyTag }

// Assemble escapes html, wraps it in the envelope and checks the size.
func (a *Assembler) Assemble(html string) (*PolicyFragment, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement(a.rootTag)
	root.CreateText(indent)
	body := root.CreateElement(a.bodyTag)
	body.CreateCData(escape.Escape(html))
	root.CreateText("\n")

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fragerrors.WrapInternal(err, fragerrors.ErrCodeSerializationFailed, "serializing fragment")
	}

	size := buf.Len()
	if a.bom {
		size += len(BOM)
	}
	if size > a.maxBytes {
		return nil, fragerrors.NewSizeLimitError(size, a.maxBytes)
	}

	return &PolicyFragment{
		HTML:     html,
		Document: buf.Bytes(),
		Size:     size,
		bom:      a.bom,
	}, nil
}

// Decode parses a serialized fragment and returns the embedded HTML: the
// CDATA sections of the body element joined together. A leading BOM is
// ignored.
func Decode(document []byte, bodyTag string) (string, error) {
	if bodyTag == "" {
		bodyTag = DefaultBodyTag
	}

	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(bytes.TrimPrefix(document, BOM)); err != nil {
		return "", fmt.Errorf("parsing fragment: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("fragment has no root element")
	}
	body := root.SelectElement(bodyTag)
	if body == nil {
		return "", fmt.Errorf("fragment has no <%s> element", bodyTag)
	}

	return CDataText(body), nil
}

// CDataText joins the CDATA sections directly below e.
func CDataText(e *etree.Element) string {
	var sb strings.Builder
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok && cd.IsCData() {
			sb.WriteString(cd.Data)
		}
	}
	return sb.String()
}
