// Package source loads the inputs of a conversion batch from the filesystem:
// the page template, the shared style and script assets, and one content
// file per page.
package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/renderer"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures a Loader.
type Options struct {
	SourceDir  string
	Template   string
	ContentDir string
	Extension  string
	// Encoding is a WHATWG encoding label for content files.
	Encoding string
	// Normalize is "", "none", "nfc" or "nfkc".
	Normalize string
	MaxChars  int

	Styles      []string
	Scripts     []string
	StyleLimit  int
	ScriptLimit int
}

// Asset is the concatenation of every file matched for one asset kind.
type Asset struct {
	Kind  string
	Text  string
	Files []string
	Size  int
}

// Loader reads batch inputs. It keeps no state between calls and is safe
// for concurrent use.
type Loader struct {
	opts     Options
	encoding encoding.Encoding
	utf8     bool
	form     *norm.Form
	pattern  *regexp.Regexp
}

// NewLoader validates the options and resolves the content encoding.
func NewLoader(opts Options) (*Loader, error) {
	if opts.Extension == "" {
		opts.Extension = "txt"
	}
	opts.Extension = strings.TrimPrefix(opts.Extension, ".")
	if opts.Encoding == "" {
		opts.Encoding = "utf-8"
	}

	enc, err := htmlindex.Get(opts.Encoding)
	if err != nil {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown content encoding %q", opts.Encoding))
	}

	l := &Loader{
		opts:     opts,
		encoding: enc,
		utf8:     enc == unicode.UTF8,
		pattern:  regexp.MustCompile(`^page-(\d+)\.` + regexp.QuoteMeta(opts.Extension) + `$`),
	}

	switch strings.ToLower(opts.Normalize) {
	case "", "none":
	case "nfc":
		f := norm.NFC
		l.form = &f
	case "nfkc":
		f := norm.NFKC
		l.form = &f
	default:
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown normalization form %q", opts.Normalize))
	}

	return l, nil
}

// TemplatePath is the resolved path of the page template.
func (l *Loader) TemplatePath() string {
	if filepath.IsAbs(l.opts.Template) {
		return l.opts.Template
	}
	return filepath.Join(l.opts.SourceDir, l.opts.Template)
}

// ContentPath is the content file for page.
func (l *Loader) ContentPath(page int) string {
	return filepath.Join(l.opts.ContentDir, fmt.Sprintf("page-%d.%s", page, l.opts.Extension))
}

// Template loads and checks the page template. A missing or unreadable
// template is a batch-wide input error; a template without the CONTENT
// placeholder is a template error.
func (l *Loader) Template() (*renderer.PageTemplate, error) {
	path := l.TemplatePath()

	data, err := readText(path)
	if err != nil {
		return nil, err.AsFatal()
	}

	tmpl := renderer.NewPageTemplate(filepath.Base(path), data)
	if err := tmpl.Check(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Assets loads the style and script assets. Warnings report assets over
// their advisory size limit.
func (l *Loader) Assets() (style, script Asset, warnings []string, err error) {
	style, err = l.asset("style", l.opts.Styles)
	if err != nil {
		return Asset{}, Asset{}, nil, err
	}
	script, err = l.asset("script", l.opts.Scripts)
	if err != nil {
		return Asset{}, Asset{}, nil, err
	}

	if l.opts.StyleLimit > 0 && style.Size > l.opts.StyleLimit {
		warnings = append(warnings, fmt.Sprintf("style assets are %d bytes, advisory limit is %d", style.Size, l.opts.StyleLimit))
	}
	if l.opts.ScriptLimit > 0 && script.Size > l.opts.ScriptLimit {
		warnings = append(warnings, fmt.Sprintf("script assets are %d bytes, advisory limit is %d", script.Size, l.opts.ScriptLimit))
	}

	return style, script, warnings, nil
}

func (l *Loader) asset(kind string, entries []string) (Asset, error) {
	a := Asset{Kind: kind}

	files, err := l.resolve(entries)
	if err != nil {
		return a, err
	}

	parts := make([]string, 0, len(files))
	for _, f := range files {
		text, rerr := readText(f)
		if rerr != nil {
			return a, rerr.AsFatal()
		}
		parts = append(parts, text)
	}

	a.Files = files
	a.Text = strings.Join(parts, "\n")
	a.Size = len(a.Text)
	return a, nil
}

// resolve expands names and glob patterns relative to the source directory.
// Globs are expanded in lexical order; a file matched twice is read once.
func (l *Loader) resolve(entries []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, entry := range entries {
		path := entry
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.opts.SourceDir, entry)
		}

		if !isGlob(entry) {
			info, err := os.Stat(path)
			if err != nil {
				return nil, fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound,
					"shared asset not found", err).WithPath(path).AsFatal()
			}
			if info.IsDir() {
				return nil, fragerrors.NewInputError(fragerrors.ErrCodeFileUnreadable,
					"shared asset is a directory", nil).WithPath(path).AsFatal()
			}
			add(path)
			continue
		}

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("bad asset pattern %q: %v", entry, err))
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				add(m)
			}
		}
	}

	return files, nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// Content loads the content of page. The text is decoded from the
// configured encoding, line endings are normalized to LF, the optional
// Unicode normalization is applied, and the result must not exceed the
// character ceiling.
func (l *Loader) Content(page int) (string, error) {
	path := l.ContentPath(page)

	data, err := os.ReadFile(path)
	if err != nil {
		code := fragerrors.ErrCodeFileUnreadable
		msg := "content file unreadable"
		if os.IsNotExist(err) {
			code = fragerrors.ErrCodeFileNotFound
			msg = "content file not found"
		}
		return "", fragerrors.NewInputError(code, msg, err).
			WithPage(page).WithStage(fragerrors.StageLoad).WithPath(path)
	}

	text, err := l.decode(data)
	if err != nil {
		return "", fragerrors.NewInputError(fragerrors.ErrCodeEncoding,
			fmt.Sprintf("content is not valid %s", l.opts.Encoding), err).
			WithPage(page).WithStage(fragerrors.StageLoad).WithPath(path)
	}

	text = normalizeNewlines(text)
	if l.form != nil {
		text = l.form.String(text)
	}

	if l.opts.MaxChars > 0 {
		if n := utf8.RuneCountInString(text); n > l.opts.MaxChars {
			return "", fragerrors.NewInputError(fragerrors.ErrCodeContentTooLong,
				fmt.Sprintf("content is %d characters, limit is %d", n, l.opts.MaxChars), nil).
				WithPage(page).WithStage(fragerrors.StageLoad).WithPath(path).
				WithContext("actual", n).WithContext("limit", l.opts.MaxChars)
		}
	}

	return text, nil
}

func (l *Loader) decode(data []byte) (string, error) {
	if l.utf8 {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid UTF-8 byte sequence")
		}
		return string(data), nil
	}

	out, err := l.encoding.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Discover lists the pages in [min, max] that have a content file, in
// ascending order.
func (l *Loader) Discover(min, max int) ([]int, error) {
	entries, err := os.ReadDir(l.opts.ContentDir)
	if err != nil {
		return nil, fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound,
			"content directory unreadable", err).WithPath(l.opts.ContentDir).AsFatal()
	}

	var pages []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := l.pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < min || n > max {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)

	return pages, nil
}

// PageOf returns the page number a content file name belongs to.
func (l *Loader) PageOf(name string) (int, bool) {
	m := l.pattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Inputs lists every shared input the batch depends on: the template and
// the currently matched asset files.
func (l *Loader) Inputs() []string {
	inputs := []string{l.TemplatePath()}
	for _, list := range [][]string{l.opts.Styles, l.opts.Scripts} {
		if files, err := l.resolve(list); err == nil {
			inputs = append(inputs, files...)
		}
	}
	return inputs
}

// readText reads a UTF-8 text file, dropping a leading BOM and normalizing
// line endings.
func readText(path string) (string, *fragerrors.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound, "file not found", err).WithPath(path)
		}
		return "", fragerrors.NewInputError(fragerrors.ErrCodeFileUnreadable, "file unreadable", err).WithPath(path)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fragerrors.NewInputError(fragerrors.ErrCodeEncoding, "file is not valid UTF-8", nil).WithPath(path)
	}
	return normalizeNewlines(string(data)), nil
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
