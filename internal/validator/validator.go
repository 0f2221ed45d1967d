// Package validator runs the four-layer validation gate over assembled
// fragments: well-formedness, schema compliance, security heuristics and
// structural integration of the embedded HTML.
//
// Every layer always runs so callers get the complete picture. A fragment is
// valid when all layers pass; warnings never change validity.
package validator

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"

	"github.com/conneroisu/pagefrag/internal/fragment"
)

// DefaultAllowedScriptOrigins are the CDN origins external scripts may load
// from without a warning.
var DefaultAllowedScriptOrigins = []string{
	"https://cdn.jsdelivr.net",
	"https://cdnjs.cloudflare.com",
	"https://unpkg.com",
}

var (
	evalPattern        = regexp.MustCompile(`\beval\s*\(`)
	newFunctionPattern = regexp.MustCompile(`\bnew\s+Function\s*\(`)
)

// Options configures a Validator.
type Options struct {
	RootTag              string
	BodyTag              string
	AllowedScriptOrigins []string
}

// Validator checks serialized fragments. It is safe for concurrent use.
type Validator struct {
	rootTag string
	bodyTag string
	origins map[string]bool
	hosts   map[string]bool
}

// New creates a Validator. Empty tag names fall back to the fragment
// defaults; a nil origin list uses DefaultAllowedScriptOrigins.
func New(opts Options) *Validator {
	v := &Validator{
		rootTag: opts.RootTag,
		bodyTag: opts.BodyTag,
		origins: make(map[string]bool),
		hosts:   make(map[string]bool),
	}
	if v.rootTag == "" {
		v.rootTag = fragment.DefaultRootTag
	}
	if v.bodyTag == "" {
		v.bodyTag = fragment.DefaultBodyTag
	}

	allowed := opts.AllowedScriptOrigins
	if allowed == nil {
		allowed = DefaultAllowedScriptOrigins
	}
	for _, o := range allowed {
		u, err := url.Parse(strings.TrimSpace(o))
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		v.origins[strings.ToLower(u.Scheme)+"://"+host] = true
		v.hosts[host] = true
	}

	return v
}

// Validate runs all four layers over document. page is the page number the
// fragment was rendered for; zero skips the page number check.
func (v *Validator) Validate(document []byte, page int) Report {
	return Reduce(
		v.WellFormed(document),
		v.Schema(document),
		v.Security(document),
		v.Structure(document, page),
	)
}

func trimBOM(document []byte) []byte {
	return bytes.TrimPrefix(document, fragment.BOM)
}

func (v *Validator) parse(document []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(trimBOM(document)); err != nil {
		return nil, err
	}
	return doc, nil
}

// WellFormed is layer 1: the document must parse as XML with a single root.
func (v *Validator) WellFormed(document []byte) LayerResult {
	res := newLayer(LayerWellFormed)

	if len(bytes.TrimSpace(trimBOM(document))) == 0 {
		res.fail("document is empty")
		return res
	}

	doc, err := v.parse(document)
	if err != nil {
		res.fail(fmt.Sprintf("XML parse error: %v", err))
		return res
	}

	if n := len(doc.ChildElements()); n != 1 {
		res.fail(fmt.Sprintf("document must have exactly one root element, found %d", n))
	}
	for _, tok := range doc.Child {
		if cd, ok := tok.(*etree.CharData); ok && strings.TrimSpace(cd.Data) != "" {
			res.fail("text content outside the root element")
			break
		}
	}

	return res
}

// Schema is layer 2: root tag, exactly one body element, CDATA-only body.
func (v *Validator) Schema(document []byte) LayerResult {
	res := newLayer(LayerSchema)

	doc, err := v.parse(document)
	if err != nil {
		res.fail("document could not be parsed, schema not checked")
		return res
	}

	root := doc.Root()
	if root == nil {
		res.fail("document has no root element")
		return res
	}
	if root.FullTag() != v.rootTag {
		res.fail(fmt.Sprintf("root element is <%s>, expected <%s>", root.FullTag(), v.rootTag))
	}

	bodies := root.SelectElements(v.bodyTag)
	switch len(bodies) {
	case 0:
		res.fail(fmt.Sprintf("missing <%s> element", v.bodyTag))
		return res
	case 1:
	default:
		res.fail(fmt.Sprintf("expected exactly one <%s> element, found %d", v.bodyTag, len(bodies)))
	}

	for _, child := range root.ChildElements() {
		if child.FullTag() != v.bodyTag {
			res.warn(fmt.Sprintf("unexpected element <%s> under <%s>", child.FullTag(), root.FullTag()))
		}
	}

	body := bodies[0]
	cdata := 0
	content := 0
	for _, tok := range body.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if !t.IsCData() {
				res.fail(fmt.Sprintf("<%s> contains plain text, expected a CDATA section", v.bodyTag))
				continue
			}
			cdata++
			content += len(t.Data)
		case *etree.Element:
			res.fail(fmt.Sprintf("<%s> contains element <%s>, expected a CDATA section", v.bodyTag, t.FullTag()))
		default:
			res.fail(fmt.Sprintf("<%s> contains a non-CDATA node", v.bodyTag))
		}
	}
	if cdata == 0 {
		res.fail(fmt.Sprintf("<%s> has no CDATA section", v.bodyTag))
	} else if content == 0 {
		res.fail(fmt.Sprintf("<%s> CDATA section is empty", v.bodyTag))
	}

	return res
}

// Security is layer 3. Script origins, inline handlers and dynamic code
// evaluation only produce warnings. A CDATA terminator left unescaped in
// the body is blocking.
func (v *Validator) Security(document []byte) LayerResult {
	res := newLayer(LayerSecurity)

	scan := scanBody(string(trimBOM(document)), v.bodyTag)
	if scan.strayTerminator {
		res.fail("unescaped CDATA terminator in embedded content")
	}
	if !scan.found || scan.html == "" {
		res.warn("no embedded HTML to scan")
		return res
	}

	handlers := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(scan.html))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		for _, attr := range tok.Attr {
			key := strings.ToLower(attr.Key)
			if len(key) > 2 && strings.HasPrefix(key, "on") {
				handlers[tok.Data+" "+key] = true
			}
			if tok.Data == "script" && key == "src" {
				if msg := v.checkScriptSrc(attr.Val); msg != "" {
					res.warn(msg)
				}
			}
		}
	}

	if len(handlers) > 0 {
		names := make([]string, 0, len(handlers))
		for h := range handlers {
			names = append(names, h)
		}
		sort.Strings(names)
		for _, h := range names {
			parts := strings.SplitN(h, " ", 2)
			res.warn(fmt.Sprintf("inline event handler %s on <%s>", parts[1], parts[0]))
		}
	}

	if n := len(evalPattern.FindAllStringIndex(scan.html, -1)); n > 0 {
		res.warn(fmt.Sprintf("eval( call pattern found %d time(s)", n))
	}
	if n := len(newFunctionPattern.FindAllStringIndex(scan.html, -1)); n > 0 {
		res.warn(fmt.Sprintf("new Function( call pattern found %d time(s)", n))
	}

	return res
}

// checkScriptSrc returns a warning for script sources that are neither
// relative to the document nor served from an allowed origin.
func (v *Validator) checkScriptSrc(src string) string {
	src = strings.TrimSpace(src)
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Sprintf("script src %q cannot be parsed", src)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	switch {
	case scheme == "" && host == "":
		return ""
	case scheme == "" && v.hosts[host]:
		return ""
	case host != "" && v.origins[scheme+"://"+host]:
		return ""
	case host == "":
		return fmt.Sprintf("script src %q uses the %s: scheme", src, scheme)
	default:
		return fmt.Sprintf("script src %q is not from an allowed origin", src)
	}
}

// Structure is layer 4: the embedded HTML must be a complete document.
func (v *Validator) Structure(document []byte, page int) LayerResult {
	res := newLayer(LayerStructure)

	scan := scanBody(string(trimBOM(document)), v.bodyTag)
	if !scan.found || scan.html == "" {
		res.fail("no embedded HTML document")
		return res
	}

	var doctype bool
	seen := map[string]bool{}
	z := html.NewTokenizer(strings.NewReader(scan.html))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.DoctypeToken:
			doctype = true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html", "head", "body":
				seen[string(name)] = true
			}
		}
	}

	if !doctype {
		res.warn("missing <!DOCTYPE> declaration")
	}
	for _, tag := range []string{"html", "head", "body"} {
		if !seen[tag] {
			res.fail(fmt.Sprintf("missing <%s> element", tag))
		}
	}
	if page != 0 && !strings.Contains(scan.html, strconv.Itoa(page)) {
		res.warn(fmt.Sprintf("page number %d does not appear in the content", page))
	}

	return res
}
