// Package config provides configuration management for pagefrag using Viper
// for layered loading from flags, environment variables and a config file.
//
// Precedence, highest first: command-line flags, PAGEFRAG_* environment
// variables (PAGEFRAG_PAGES_MIN, PAGEFRAG_OUTPUT_BOM, ...), the .pagefrag.yml
// file, and the defaults below.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
)

// Gateway and content defaults.
const (
	DefaultMinPage     = 100
	DefaultMaxPage     = 999
	DefaultMaxChars    = 2000
	DefaultStyleLimit  = 5 * 1024
	DefaultScriptLimit = 10 * 1024
	DefaultPattern     = "page-%d.xml"
	MaxFragmentBytes   = 256 * 1024
)

// Overwrite policies applied when an output file already exists.
const (
	OverwritePrompt = "prompt"
	OverwriteForce  = "force"
	OverwriteSkip   = "skip"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths" yaml:"paths" json:"paths"`
	Assets     AssetsConfig     `mapstructure:"assets" yaml:"assets" json:"assets"`
	Pages      PagesConfig      `mapstructure:"pages" yaml:"pages" json:"pages"`
	Content    ContentConfig    `mapstructure:"content" yaml:"content" json:"content"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Fragment   FragmentConfig   `mapstructure:"fragment" yaml:"fragment" json:"fragment"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation" json:"validation"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
}

type PathsConfig struct {
	Source   string `mapstructure:"source" yaml:"source" json:"source"`
	Template string `mapstructure:"template" yaml:"template" json:"template"`
	Content  string `mapstructure:"content" yaml:"content" json:"content"`
	Output   string `mapstructure:"output" yaml:"output" json:"output"`
}

// AssetsConfig lists shared style and script files, as names or glob
// patterns relative to the source directory.
type AssetsConfig struct {
	Styles      []string `mapstructure:"styles" yaml:"styles" json:"styles"`
	Scripts     []string `mapstructure:"scripts" yaml:"scripts" json:"scripts"`
	StyleLimit  int      `mapstructure:"style_limit" yaml:"style_limit" json:"style_limit"`
	ScriptLimit int      `mapstructure:"script_limit" yaml:"script_limit" json:"script_limit"`
}

type PagesConfig struct {
	Min int `mapstructure:"min" yaml:"min" json:"min"`
	Max int `mapstructure:"max" yaml:"max" json:"max"`
	// Select is the default page selection, e.g. "101,103-105". Empty means
	// every content file found within [Min, Max].
	Select string `mapstructure:"select" yaml:"select" json:"select"`
}

type ContentConfig struct {
	Extension string `mapstructure:"extension" yaml:"extension" json:"extension"`
	Encoding  string `mapstructure:"encoding" yaml:"encoding" json:"encoding"`
	MaxChars  int    `mapstructure:"max_chars" yaml:"max_chars" json:"max_chars"`
	Normalize string `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
}

type OutputConfig struct {
	Pattern  string `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
	BOM      bool   `mapstructure:"bom" yaml:"bom" json:"bom"`
	MaxBytes int    `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
}

type FragmentConfig struct {
	Root string `mapstructure:"root" yaml:"root" json:"root"`
	Body string `mapstructure:"body" yaml:"body" json:"body"`
}

type ValidationConfig struct {
	Enabled              bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedScriptOrigins []string `mapstructure:"allowed_script_origins" yaml:"allowed_script_origins" json:"allowed_script_origins"`
}

type BatchConfig struct {
	Workers   int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	Force     bool   `mapstructure:"force" yaml:"force" json:"force"`
	DryRun    bool   `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
	Overwrite string `mapstructure:"overwrite" yaml:"overwrite" json:"overwrite"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers every default on v so that environment variables
// for unset keys are still picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.source", "site")
	v.SetDefault("paths.template", "template.html")
	v.SetDefault("paths.content", "content")
	v.SetDefault("paths.output", "dist")

	v.SetDefault("assets.styles", []string{"*.css"})
	v.SetDefault("assets.scripts", []string{"*.js"})
	v.SetDefault("assets.style_limit", DefaultStyleLimit)
	v.SetDefault("assets.script_limit", DefaultScriptLimit)

	v.SetDefault("pages.min", DefaultMinPage)
	v.SetDefault("pages.max", DefaultMaxPage)
	v.SetDefault("pages.select", "")

	v.SetDefault("content.extension", "txt")
	v.SetDefault("content.encoding", "utf-8")
	v.SetDefault("content.max_chars", DefaultMaxChars)
	v.SetDefault("content.normalize", "")

	v.SetDefault("output.pattern", DefaultPattern)
	v.SetDefault("output.bom", true)
	v.SetDefault("output.max_bytes", MaxFragmentBytes)

	v.SetDefault("fragment.root", "fragment")
	v.SetDefault("fragment.body", "set-body")

	v.SetDefault("validation.enabled", true)
	v.SetDefault("validation.allowed_script_origins", []string{
		"https://cdn.jsdelivr.net",
		"https://cdnjs.cloudflare.com",
		"https://unpkg.com",
	})

	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.force", false)
	v.SetDefault("batch.dry_run", false)
	v.SetDefault("batch.overwrite", OverwritePrompt)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot decode configuration: %v", err))
	}

	// Comma separated lists arrive as a single string from env variables.
	config.Assets.Styles = splitList(config.Assets.Styles)
	config.Assets.Scripts = splitList(config.Assets.Scripts)
	config.Validation.AllowedScriptOrigins = splitList(config.Validation.AllowedScriptOrigins)

	config.Content.Extension = strings.TrimPrefix(config.Content.Extension, ".")
	config.Content.Normalize = strings.ToLower(strings.TrimSpace(config.Content.Normalize))
	config.Batch.Overwrite = strings.ToLower(strings.TrimSpace(config.Batch.Overwrite))

	if err := validateConfig(&config); err != nil {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid configuration: %v", err))
	}

	return &config, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// TemplatePath is the template file inside the source directory.
func (c *Config) TemplatePath() string {
	if filepath.IsAbs(c.Paths.Template) {
		return c.Paths.Template
	}
	return filepath.Join(c.Paths.Source, c.Paths.Template)
}

// OutputPath is the fragment file written for page.
func (c *Config) OutputPath(page int) string {
	name := c.Output.Pattern
	if strings.Contains(strings.ReplaceAll(name, "%%", ""), "%") {
		name = fmt.Sprintf(name, page)
	} else {
		name = strings.ReplaceAll(name, "%%", "%")
	}
	return filepath.Join(c.Paths.Output, name)
}

// PageOfOutput recovers the page number from a fragment file name produced
// by the output pattern. Patterns without a verb never match.
func (c *Config) PageOfOutput(name string) (int, bool) {
	p := strings.ReplaceAll(c.Output.Pattern, "%%", "\x00")
	loc := pageVerb.FindStringIndex(p)
	if loc == nil {
		return 0, false
	}
	literal := func(s string) string {
		return regexp.QuoteMeta(strings.ReplaceAll(s, "\x00", "%"))
	}
	re, err := regexp.Compile("^" + literal(p[:loc[0]]) + `[ +]?(\d+)` + literal(p[loc[1]:]) + "$")
	if err != nil {
		return 0, false
	}
	m := re.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return page, true
}

// ContentPath is the content file read for page.
func (c *Config) ContentPath(page int) string {
	return filepath.Join(c.Paths.Content, fmt.Sprintf("page-%d.%s", page, c.Content.Extension))
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if config.Pages.Min < 0 {
		return fmt.Errorf("pages.min must not be negative, got %d", config.Pages.Min)
	}
	if config.Pages.Min > config.Pages.Max {
		return fmt.Errorf("pages.min %d is greater than pages.max %d", config.Pages.Min, config.Pages.Max)
	}
	if config.Pages.Select != "" {
		if _, err := ParsePages(config.Pages.Select); err != nil {
			return fmt.Errorf("pages.select: %w", err)
		}
	}

	if config.Content.MaxChars < 1 {
		return fmt.Errorf("content.max_chars must be positive, got %d", config.Content.MaxChars)
	}
	if config.Content.Extension == "" || strings.ContainsAny(config.Content.Extension, `/\`) {
		return fmt.Errorf("content.extension %q is not a valid file extension", config.Content.Extension)
	}
	switch config.Content.Normalize {
	case "", "none", "nfc", "nfkc":
	default:
		return fmt.Errorf("content.normalize must be one of none, nfc, nfkc; got %q", config.Content.Normalize)
	}

	if config.Assets.StyleLimit < 0 || config.Assets.ScriptLimit < 0 {
		return fmt.Errorf("asset size limits must not be negative")
	}

	if err := validatePattern(config.Output.Pattern); err != nil {
		return fmt.Errorf("output.pattern: %w", err)
	}
	if config.Output.MaxBytes < 1 || config.Output.MaxBytes > MaxFragmentBytes {
		return fmt.Errorf("output.max_bytes must be between 1 and %d, got %d", MaxFragmentBytes, config.Output.MaxBytes)
	}

	if err := validateTag(config.Fragment.Root); err != nil {
		return fmt.Errorf("fragment.root: %w", err)
	}
	if err := validateTag(config.Fragment.Body); err != nil {
		return fmt.Errorf("fragment.body: %w", err)
	}
	if config.Fragment.Root == config.Fragment.Body {
		return fmt.Errorf("fragment.root and fragment.body must differ")
	}

	if config.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", config.Batch.Workers)
	}
	switch config.Batch.Overwrite {
	case OverwritePrompt, OverwriteForce, OverwriteSkip:
	default:
		return fmt.Errorf("batch.overwrite must be one of prompt, force, skip; got %q", config.Batch.Overwrite)
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	for name, path := range map[string]string{
		"source":   config.Source,
		"template": config.Template,
		"content":  config.Content,
		"output":   config.Output,
	} {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid %s path '%s': %w", name, path, err)
		}
	}
	return nil
}

// validatePath validates a file path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}

	return nil
}

var pageVerb = regexp.MustCompile(`%[-+ 0]*[0-9]*d`)

// validatePattern allows at most one integer verb for the page number and
// no path separators. A pattern without a verb names a single file, which
// only works for one-page selections.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if strings.ContainsAny(pattern, `/\`) {
		return fmt.Errorf("pattern %q must be a file name", pattern)
	}
	stripped := strings.ReplaceAll(pattern, "%%", "")
	verbs := pageVerb.FindAllString(stripped, -1)
	if len(verbs) > 1 || strings.Count(stripped, "%") != len(verbs) {
		return fmt.Errorf("pattern %q may contain at most one %%d verb", pattern)
	}
	return nil
}

func validateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("empty element name")
	}
	for i, r := range tag {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !letter {
			return fmt.Errorf("element name %q must start with a letter or underscore", tag)
		}
		if !letter && r != '-' && r != '.' && !(r >= '0' && r <= '9') {
			return fmt.Errorf("element name %q contains %q", tag, r)
		}
	}
	return nil
}
