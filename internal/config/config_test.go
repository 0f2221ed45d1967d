package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.Paths.Source)
	assert.Equal(t, "dist", cfg.Paths.Output)
	assert.Equal(t, DefaultMinPage, cfg.Pages.Min)
	assert.Equal(t, DefaultMaxPage, cfg.Pages.Max)
	assert.Equal(t, DefaultMaxChars, cfg.Content.MaxChars)
	assert.Equal(t, "txt", cfg.Content.Extension)
	assert.Equal(t, DefaultPattern, cfg.Output.Pattern)
	assert.True(t, cfg.Output.BOM)
	assert.Equal(t, MaxFragmentBytes, cfg.Output.MaxBytes)
	assert.True(t, cfg.Validation.Enabled)
	assert.Len(t, cfg.Validation.AllowedScriptOrigins, 3)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, OverwritePrompt, cfg.Batch.Overwrite)
	assert.Equal(t, []string{"*.css"}, cfg.Assets.Styles)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "custom range and workers",
			setup: func(v *viper.Viper) {
				v.Set("pages.min", 1)
				v.Set("pages.max", 20)
				v.Set("batch.workers", 4)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 1, cfg.Pages.Min)
				assert.Equal(t, 20, cfg.Pages.Max)
				assert.Equal(t, 4, cfg.Batch.Workers)
			},
		},
		{
			name: "extension dot is stripped",
			setup: func(v *viper.Viper) {
				v.Set("content.extension", ".md")
				v.Set("content.normalize", "NFC")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "md", cfg.Content.Extension)
				assert.Equal(t, "nfc", cfg.Content.Normalize)
			},
		},
		{
			name:        "reversed range",
			setup:       func(v *viper.Viper) { v.Set("pages.min", 200); v.Set("pages.max", 100) },
			expectError: "greater than pages.max",
		},
		{
			name:        "ceiling above gateway limit",
			setup:       func(v *viper.Viper) { v.Set("output.max_bytes", MaxFragmentBytes+1) },
			expectError: "output.max_bytes",
		},
		{
			name:        "zero workers",
			setup:       func(v *viper.Viper) { v.Set("batch.workers", 0) },
			expectError: "batch.workers",
		},
		{
			name:        "unknown overwrite policy",
			setup:       func(v *viper.Viper) { v.Set("batch.overwrite", "maybe") },
			expectError: "batch.overwrite",
		},
		{
			name:        "pattern with two verbs",
			setup:       func(v *viper.Viper) { v.Set("output.pattern", "page-%d-%d.xml") },
			expectError: "at most one %d",
		},
		{
			name:        "pattern with a non integer verb",
			setup:       func(v *viper.Viper) { v.Set("output.pattern", "page-%s.xml") },
			expectError: "at most one %d",
		},
		{
			name:  "padded pattern",
			setup: func(v *viper.Viper) { v.Set("output.pattern", "frag_%04d.xml") },
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, filepath.Join("dist", "frag_0007.xml"), cfg.OutputPath(7))
			},
		},
		{
			name:  "pattern without verb names one file",
			setup: func(v *viper.Viper) { v.Set("output.pattern", "latest.xml") },
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.OutputPath(101), cfg.OutputPath(102))
			},
		},
		{
			name:        "pattern with directory",
			setup:       func(v *viper.Viper) { v.Set("output.pattern", "x/page-%d.xml") },
			expectError: "must be a file name",
		},
		{
			name:        "bad tag",
			setup:       func(v *viper.Viper) { v.Set("fragment.root", "1root") },
			expectError: "fragment.root",
		},
		{
			name:        "same tags",
			setup:       func(v *viper.Viper) { v.Set("fragment.body", "fragment") },
			expectError: "must differ",
		},
		{
			name:        "unknown normalization",
			setup:       func(v *viper.Viper) { v.Set("content.normalize", "nfd") },
			expectError: "content.normalize",
		},
		{
			name:        "bad selection",
			setup:       func(v *viper.Viper) { v.Set("pages.select", "10-x") },
			expectError: "pages.select",
		},
		{
			name:        "undecodable value",
			setup:       func(v *viper.Viper) { v.Set("pages.min", "lots") },
			expectError: "cannot decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.True(t, fragerrors.IsConfigError(err))
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".pagefrag.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
paths:
  source: web
  output: out
assets:
  styles: [main.css, "theme-*.css"]
pages:
  min: 100
  max: 110
output:
  bom: false
`), 0o644))

	t.Setenv("PAGEFRAG_PAGES_MAX", "120")

	v := viper.New()
	v.SetConfigFile(file)
	v.SetEnvPrefix("PAGEFRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "web", cfg.Paths.Source)
	assert.Equal(t, "out", cfg.Paths.Output)
	assert.Equal(t, []string{"main.css", "theme-*.css"}, cfg.Assets.Styles)
	assert.Equal(t, 120, cfg.Pages.Max, "environment overrides the file")
	assert.False(t, cfg.Output.BOM)
}

func TestPaths(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("site", "template.html"), cfg.TemplatePath())
	assert.Equal(t, filepath.Join("dist", "page-101.xml"), cfg.OutputPath(101))
	assert.Equal(t, filepath.Join("content", "page-101.txt"), cfg.ContentPath(101))

	cfg.Paths.Template = "/abs/t.html"
	assert.Equal(t, "/abs/t.html", cfg.TemplatePath())
}

func TestPageOfOutput(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		page    int
		ok      bool
	}{
		{"page-%d.xml", "page-101.xml", 101, true},
		{"page-%d.xml", "dist/page-7.xml", 7, true},
		{"page-%d.xml", "page-101.xml.bak", 0, false},
		{"frag_%04d.xml", "frag_0007.xml", 7, true},
		{"100%%-%d.xml", "100%-5.xml", 5, true},
		{"latest.xml", "latest.xml", 0, false},
		{"p.%d.xml", "pX101.xml", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			cfg := &Config{Output: OutputConfig{Pattern: tt.pattern}}
			page, ok := cfg.PageOfOutput(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.page, page)
		})
	}
}
