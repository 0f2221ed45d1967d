package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagefrag/internal/batch"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/validator"
)

func sampleResult() *batch.Result {
	report := validator.Reduce(
		validator.LayerResult{Layer: validator.LayerWellFormed, Passed: false, Errors: []string{"XML parse error: <boom>"}},
	)
	return &batch.Result{
		RunID:    "run-1",
		Template: "site/template.html",
		Warnings: []string{"style assets are 6000 bytes, advisory limit is 5120"},
		Pages: []batch.PageResult{
			{Page: 101, Status: batch.StatusSucceeded, Path: "dist/page-101.xml", Size: 512},
			{Page: 102, Status: batch.StatusFailed, Stage: fragerrors.StageValidate, Code: fragerrors.ErrCodeValidationFailed,
				Message: "blocking validation errors", Validation: &report,
				Err: fragerrors.NewValidationError(fragerrors.ErrCodeValidationFailed, "x")},
			{Page: 103, Status: batch.StatusSkipped, Path: "dist/page-103.xml", Message: "existing file kept"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "table": FormatText, "JSON": FormatJSON, "yaml": FormatYAML, "html": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestBatchText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, sampleResult(), FormatText))

	out := buf.String()
	assert.Contains(t, out, "succeeded (1):")
	assert.Contains(t, out, "101 -> dist/page-101.xml (512 bytes)")
	assert.Contains(t, out, "102 [validate] blocking validation errors")
	assert.Contains(t, out, "skipped (1):")
	assert.Contains(t, out, "style assets are 6000 bytes")
	assert.Contains(t, out, "exit code: 1")
}

func TestBatchJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, sampleResult(), FormatJSON))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, float64(1), doc["exit_code"])
	assert.Equal(t, []interface{}{float64(102)}, doc["failed"])
	pages := doc["pages"].([]interface{})
	require.Len(t, pages, 3)
	assert.Equal(t, "validate", pages[1].(map[string]interface{})["stage"])
}

func TestBatchYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, sampleResult(), FormatYAML))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, 1, doc["exit_code"])
	assert.Equal(t, []interface{}{101}, doc["succeeded"])
}

func TestBatchHTMLEscapes(t *testing.T) {
	res := sampleResult()
	res.Pages[1].Message = "<script>alert(1)</script>"

	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, res, FormatHTML))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
	assert.Contains(t, out, `<tr class="failed">`)
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "<td>101</td>")
}

func TestValidationHTMLShowsFileErrorWithLayers(t *testing.T) {
	rep := validator.Reduce(validator.LayerResult{Layer: validator.LayerSchema, Passed: true, Warnings: []string{"a", "b"}})
	files := []FileReport{{Path: "dist/page-101.xml", Page: 101, Error: "fragment is 300000 bytes", Report: &rep}}

	var buf bytes.Buffer
	require.NoError(t, WriteValidation(&buf, files, FormatHTML))

	out := buf.String()
	assert.Contains(t, out, "<td>fragment is 300000 bytes</td>")
	assert.Contains(t, out, `<tr class="pass"><td>dist/page-101.xml</td><td>invalid</td><td>`+validator.LayerSchema+`</td>`)
	assert.Contains(t, out, "a<br>b")
}

func TestValidationFormats(t *testing.T) {
	ok := validator.Reduce(validator.LayerResult{Layer: validator.LayerSchema, Passed: true, Warnings: []string{"minor"}})
	bad := validator.Reduce(validator.LayerResult{Layer: validator.LayerSchema, Passed: false, Errors: []string{"missing <set-body> element"}})
	files := []FileReport{
		{Path: "dist/page-101.xml", Page: 101, Report: &ok},
		{Path: "dist/page-102.xml", Page: 102, Report: &bad},
		{Path: "dist/page-103.xml", Error: "permission denied"},
	}

	var text bytes.Buffer
	require.NoError(t, WriteValidation(&text, files, FormatText))
	assert.Contains(t, text.String(), "PASS dist/page-101.xml")
	assert.Contains(t, text.String(), "FAIL dist/page-102.xml")
	assert.Contains(t, text.String(), "missing <set-body> element")
	assert.Contains(t, text.String(), "1 of 3 fragment(s) valid")

	var html bytes.Buffer
	require.NoError(t, WriteValidation(&html, files, FormatHTML))
	assert.Contains(t, html.String(), "missing &lt;set-body&gt; element")
	assert.Contains(t, html.String(), `<tr class="fail"><td>dist/page-103.xml</td><td>invalid</td>`)

	var js bytes.Buffer
	require.NoError(t, WriteValidation(&js, files, FormatJSON))
	var decoded []FileReport
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	assert.True(t, decoded[0].Valid())
	assert.False(t, decoded[2].Valid())
}
