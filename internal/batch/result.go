package batch

import (
	"sort"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/validator"
)

// Process exit codes.
const (
	ExitSuccess        = 0
	ExitPartialFailure = 1
	ExitInputError     = 2
	ExitOutputError    = 3
	ExitTotalFailure   = 4
)

// Status is the outcome of one page.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// PageResult records what happened to one requested page.
type PageResult struct {
	Page   int    `json:"page" yaml:"page"`
	Status Status `json:"status" yaml:"status"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Size   int    `json:"size,omitempty" yaml:"size,omitempty"`
	// DryRun is set when the fragment was produced but not written.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`

	Stage   fragerrors.Stage `json:"stage,omitempty" yaml:"stage,omitempty"`
	Code    string           `json:"code,omitempty" yaml:"code,omitempty"`
	Message string           `json:"message,omitempty" yaml:"message,omitempty"`
	Err     error            `json:"-" yaml:"-"`

	Warnings   []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Validation *validator.Report `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Result is the outcome of a batch run, ordered by page number.
type Result struct {
	RunID    string       `json:"run_id" yaml:"run_id"`
	DryRun   bool         `json:"dry_run" yaml:"dry_run"`
	Template string       `json:"template,omitempty" yaml:"template,omitempty"`
	Assets   []string     `json:"assets,omitempty" yaml:"assets,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Pages    []PageResult `json:"pages" yaml:"pages"`
}

func (r *Result) sort() {
	sort.SliceStable(r.Pages, func(i, j int) bool { return r.Pages[i].Page < r.Pages[j].Page })
}

func (r *Result) pagesWith(status Status) []int {
	var out []int
	for _, p := range r.Pages {
		if p.Status == status {
			out = append(out, p.Page)
		}
	}
	return out
}

// Succeeded lists the pages that produced a fragment.
func (r *Result) Succeeded() []int { return r.pagesWith(StatusSucceeded) }

// Failed lists the pages that failed at some stage.
func (r *Result) Failed() []int { return r.pagesWith(StatusFailed) }

// Skipped lists the pages whose existing output was kept.
func (r *Result) Skipped() []int { return r.pagesWith(StatusSkipped) }

// Failures returns the failed page results.
func (r *Result) Failures() []PageResult {
	var out []PageResult
	for _, p := range r.Pages {
		if p.Status == StatusFailed {
			out = append(out, p)
		}
	}
	return out
}

// ExitCode maps the aggregate outcome to a process exit code. A run with no
// failures succeeds even when pages were skipped. A run without a single
// success reports the input or output code when every failure was of that
// kind, and total failure otherwise.
func (r *Result) ExitCode() int {
	failures := r.Failures()
	if len(failures) == 0 {
		return ExitSuccess
	}
	if len(r.Succeeded()) > 0 {
		return ExitPartialFailure
	}

	allLoad, allWrite := true, true
	for _, f := range failures {
		if f.Stage != fragerrors.StageLoad || !fragerrors.IsInputError(f.Err) {
			allLoad = false
		}
		if f.Stage != fragerrors.StageWrite {
			allWrite = false
		}
	}

	switch {
	case allLoad:
		return ExitInputError
	case allWrite:
		return ExitOutputError
	default:
		return ExitTotalFailure
	}
}

// ExitCodeFor maps an error that aborted a whole run to an exit code. Errors
// without a known kind, cancellation included, count as total failure.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case fragerrors.IsInputError(err), fragerrors.IsTemplateError(err), fragerrors.IsConfigError(err):
		return ExitInputError
	case fragerrors.IsOutputError(err):
		return ExitOutputError
	default:
		return ExitTotalFailure
	}
}

// AbortCode maps a run that returned err alongside r to an exit code. A run
// cut short after some pages succeeded is a partial failure; otherwise err
// decides.
func (r *Result) AbortCode(err error) int {
	if err == nil {
		return r.ExitCode()
	}
	code := ExitCodeFor(err)
	if code == ExitTotalFailure && len(r.Succeeded()) > 0 {
		return ExitPartialFailure
	}
	return code
}
