// Package report renders batch and validation outcomes for humans and
// machines: styled text, JSON, YAML and a standalone HTML page.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagefrag/internal/batch"
	"github.com/conneroisu/pagefrag/internal/validator"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatHTML}

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" || f == "table" {
		return FormatText, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, known := range Formats {
		names[i] = string(known)
	}
	return "", fmt.Errorf("invalid output format %s, must be one of: %s", s, strings.Join(names, ", "))
}

// FileReport is the validation outcome for one fragment file.
type FileReport struct {
	Path   string            `json:"path" yaml:"path"`
	Page   int               `json:"page,omitempty" yaml:"page,omitempty"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty"`
	Report *validator.Report `json:"report,omitempty" yaml:"report,omitempty"`
}

// Valid reports whether the file could be read and passed every layer.
func (f FileReport) Valid() bool {
	return f.Error == "" && f.Report != nil && f.Report.Valid
}

// batchDoc is the machine readable form of a batch result.
type batchDoc struct {
	batch.Result `yaml:",inline"`
	Succeeded     []int `json:"succeeded" yaml:"succeeded"`
	Failed        []int `json:"failed" yaml:"failed"`
	Skipped       []int `json:"skipped" yaml:"skipped"`
	ExitCode      int   `json:"exit_code" yaml:"exit_code"`
}

func newBatchDoc(res *batch.Result) batchDoc {
	return batchDoc{
		Result:    *res,
		Succeeded: nonNil(res.Succeeded()),
		Failed:    nonNil(res.Failed()),
		Skipped:   nonNil(res.Skipped()),
		ExitCode:  res.ExitCode(),
	}
}

func nonNil(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}

// WriteBatch renders a batch result.
func WriteBatch(w io.Writer, res *batch.Result, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, newBatchDoc(res))
	case FormatYAML:
		return writeYAML(w, newBatchDoc(res))
	case FormatHTML:
		return batchPage(res).Render(context.Background(), w)
	default:
		return writeBatchText(w, res)
	}
}

// WriteValidation renders the outcome of validating existing fragments.
func WriteValidation(w io.Writer, files []FileReport, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, files)
	case FormatYAML:
		return writeYAML(w, files)
	case FormatHTML:
		return validationPage(files).Render(context.Background(), w)
	default:
		return writeValidationText(w, files)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
