package report

//go:generate templ generate

import "github.com/conneroisu/pagefrag/internal/batch"

func batchTitle(res *batch.Result) string {
	if res.DryRun {
		return "Conversion summary (dry run)"
	}
	return "Conversion summary"
}

func verdict(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

// verdictClass names the row style for a passing or failing check.
func verdictClass(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
