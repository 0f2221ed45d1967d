package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/conneroisu/pagefrag/internal/config"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/escape"
	"github.com/conneroisu/pagefrag/internal/fragment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head><title>Page {{PAGE_NUMBER}}</title><style>{{STYLE}}</style></head>
<body>
<nav><a href="page-{{PREV_PAGE}}">prev</a> <a href="page-{{NEXT_PAGE}}">next</a></nav>
<main>{{CONTENT}}</main>
<script>{{SCRIPT}}</script>
</body>
</html>`

type env struct {
	root string
	cfg  *config.Config
}

func newEnv(t *testing.T, overrides map[string]interface{}) *env {
	t.Helper()
	root := t.TempDir()

	v := viper.New()
	v.Set("paths.source", filepath.Join(root, "site"))
	v.Set("paths.content", filepath.Join(root, "content"))
	v.Set("paths.output", filepath.Join(root, "dist"))
	v.Set("pages.min", 100)
	v.Set("pages.max", 110)
	v.Set("content.max_chars", 200)
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	e := &env{root: root, cfg: cfg}
	e.mkdir(t, cfg.Paths.Source)
	e.mkdir(t, cfg.Paths.Content)
	e.write(t, filepath.Join(cfg.Paths.Source, "template.html"), pageTemplate)
	e.write(t, filepath.Join(cfg.Paths.Source, "main.css"), "main{display:block}")
	e.write(t, filepath.Join(cfg.Paths.Source, "app.js"), "console.log('ready')")
	return e
}

func (e *env) mkdir(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
}

func (e *env) write(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func (e *env) content(t *testing.T, page int, text string) {
	t.Helper()
	e.write(t, filepath.Join(e.cfg.Paths.Content, "page-"+strconv.Itoa(page)+".txt"), text)
}

func (e *env) orchestrator(t *testing.T, confirm ConfirmFunc) *Orchestrator {
	t.Helper()
	o, err := New(e.cfg, nil, confirm)
	require.NoError(t, err)
	return o
}

func TestAllPagesSucceed(t *testing.T) {
	e := newEnv(t, nil)
	for _, p := range []int{101, 102, 103} {
		e.content(t, p, "Welcome to page "+strconv.Itoa(p))
	}

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{103, 101, 102})
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, res.ExitCode())
	assert.Equal(t, []int{101, 102, 103}, res.Succeeded())
	assert.NotEmpty(t, res.RunID)

	data, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, fragment.BOM))

	html, err := fragment.Decode(data, "")
	require.NoError(t, err)
	assert.Contains(t, html, "Welcome to page 101")
	assert.Contains(t, html, `href="page-100"`)
	assert.Contains(t, html, `href="page-102"`)
	assert.Contains(t, html, "main{display:block}")
	assert.Contains(t, html, "console.log('ready')")
}

func TestPartialFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "fine")
	e.content(t, 102, "control \x01 character breaks XML")
	e.content(t, 103, "fine too")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102, 103})
	require.NoError(t, err)

	assert.Equal(t, ExitPartialFailure, res.ExitCode())
	assert.Equal(t, []int{101, 103}, res.Succeeded())
	assert.Equal(t, []int{102}, res.Failed())

	f := res.Failures()[0]
	assert.Equal(t, fragerrors.StageValidate, f.Stage)
	assert.Equal(t, fragerrors.ErrCodeValidationFailed, f.Code)
	require.NotNil(t, f.Validation)
	assert.False(t, f.Validation.Valid)
	assert.NoFileExists(t, e.cfg.OutputPath(102))
}

func TestAllPagesFailValidation(t *testing.T) {
	e := newEnv(t, nil)
	for _, p := range []int{101, 102, 103} {
		e.content(t, p, "\x0b")
	}

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102, 103})
	require.NoError(t, err)
	assert.Equal(t, ExitTotalFailure, res.ExitCode())
	assert.Empty(t, res.Succeeded())
}

func TestMissingTemplateAbortsBeforeAnyPage(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "x")
	require.NoError(t, os.Remove(e.cfg.TemplatePath()))

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102, 103})
	require.Error(t, err)
	assert.Equal(t, ExitInputError, ExitCodeFor(err))
	assert.Empty(t, res.Pages)
	assert.NoDirExists(t, e.cfg.Paths.Output)
}

func TestTemplateWithoutContentPlaceholder(t *testing.T) {
	e := newEnv(t, nil)
	e.write(t, e.cfg.TemplatePath(), "<html>{{PAGE_NUMBER}}</html>")

	_, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.Error(t, err)
	assert.True(t, fragerrors.IsTemplateError(err))
	assert.Equal(t, ExitInputError, ExitCodeFor(err))
}

func TestMissingLiteralAssetAborts(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"assets.styles": []string{"missing.css"}})

	_, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.Error(t, err)
	assert.Equal(t, ExitInputError, ExitCodeFor(err))
}

func TestOutputDirectoryNotCreatable(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "x")
	blocker := filepath.Join(e.root, "blocker")
	e.write(t, blocker, "file")
	e.cfg.Paths.Output = filepath.Join(blocker, "dist")

	_, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.Error(t, err)
	assert.Equal(t, ExitOutputError, ExitCodeFor(err))
}

func TestMissingContentOnlyIsInputExit(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102})
	require.NoError(t, err)
	assert.Equal(t, ExitInputError, res.ExitCode())
	for _, f := range res.Failures() {
		assert.Equal(t, fragerrors.StageLoad, f.Stage)
		assert.Equal(t, fragerrors.ErrCodeFileNotFound, f.Code)
	}
}

func TestPageOutsideRangeFailsThatPage(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "x")
	e.content(t, 200, "x")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 200})
	require.NoError(t, err)
	assert.Equal(t, []int{200}, res.Failed())
	assert.Equal(t, fragerrors.ErrCodePageOutOfRange, res.Failures()[0].Code)
	assert.Equal(t, ExitPartialFailure, res.ExitCode())
}

func TestCharacterCeiling(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"content.max_chars": 5})
	e.content(t, 101, "12345")
	e.content(t, 102, "123456")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102})
	require.NoError(t, err)
	assert.Equal(t, []int{101}, res.Succeeded())
	assert.Equal(t, fragerrors.ErrCodeContentTooLong, res.Failures()[0].Code)
}

func TestSizeCeilingWritesNothing(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"output.max_bytes": 400})
	e.content(t, 101, strings.Repeat("a", 190))

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)

	f := res.Failures()
	require.Len(t, f, 1)
	assert.Equal(t, fragerrors.StageAssemble, f[0].Stage)
	assert.True(t, fragerrors.IsSizeLimitError(f[0].Err))
	assert.Equal(t, ExitTotalFailure, res.ExitCode())
	assert.NoFileExists(t, e.cfg.OutputPath(101))
}

func TestTerminatorSurvivesPipeline(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "if (a[b[0]]>c) { x = ']]>' }")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)
	require.Equal(t, ExitSuccess, res.ExitCode())

	data, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)

	html, err := fragment.Decode(data, "")
	require.NoError(t, err)
	assert.Contains(t, html, "if (a[b[0]]>c) { x = ']]>' }")
	assert.Contains(t, string(data), "]]"+escape.Reopen+">")
}

func TestDryRunWritesNothing(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"batch.dry_run": true})
	e.content(t, 101, "x")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, ExitSuccess, res.ExitCode())
	assert.True(t, res.Pages[0].DryRun)
	assert.Positive(t, res.Pages[0].Size)
	assert.NoDirExists(t, e.cfg.Paths.Output)
}

func TestOverwriteDeclinedIsSkipped(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "new")
	e.mkdir(t, e.cfg.Paths.Output)
	e.write(t, e.cfg.OutputPath(101), "old")

	var asked []string
	res, err := e.orchestrator(t, func(path string) bool {
		asked = append(asked, path)
		return false
	}).Run(context.Background(), []int{101})
	require.NoError(t, err)

	assert.Equal(t, []string{e.cfg.OutputPath(101)}, asked)
	assert.Equal(t, []int{101}, res.Skipped())
	assert.Equal(t, ExitSuccess, res.ExitCode())

	data, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestOverwritePolicies(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		confirm   ConfirmFunc
		want      Status
	}{
		{"confirmed", nil, Always, StatusSucceeded},
		{"force flag", map[string]interface{}{"batch.force": true}, Never, StatusSucceeded},
		{"force policy", map[string]interface{}{"batch.overwrite": "force"}, Never, StatusSucceeded},
		{"skip policy", map[string]interface{}{"batch.overwrite": "skip"}, Always, StatusSkipped},
		{"no callback", nil, nil, StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.overrides)
			e.content(t, 101, "new")
			e.mkdir(t, e.cfg.Paths.Output)
			e.write(t, e.cfg.OutputPath(101), "old")

			res, err := e.orchestrator(t, tt.confirm).Run(context.Background(), []int{101})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Pages[0].Status)
		})
	}
}

func TestConfirmationsAreSerialized(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"batch.workers": 4})
	e.mkdir(t, e.cfg.Paths.Output)
	pages := []int{100, 101, 102, 103, 104, 105, 106, 107}
	for _, p := range pages {
		e.content(t, p, "x")
		e.write(t, e.cfg.OutputPath(p), "old")
	}

	var inFlight, maxInFlight int32
	var mu sync.Mutex
	var calls int
	confirm := func(string) bool {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		mu.Lock()
		calls++
		mu.Unlock()
		return true
	}

	res, err := e.orchestrator(t, confirm).Run(context.Background(), pages)
	require.NoError(t, err)

	assert.Equal(t, len(pages), calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Equal(t, pages, res.Succeeded())
}

func TestParallelMatchesSequential(t *testing.T) {
	run := func(workers int) *Result {
		e := newEnv(t, map[string]interface{}{"batch.workers": workers, "batch.dry_run": true})
		for p := 100; p <= 110; p++ {
			if p == 105 {
				e.content(t, p, "\x01")
				continue
			}
			e.content(t, p, "page body")
		}
		res, err := e.orchestrator(t, nil).Run(context.Background(), []int{110, 109, 108, 107, 106, 105, 104, 103, 102, 101, 100})
		require.NoError(t, err)
		return res
	}

	seq, par := run(1), run(6)

	type row struct {
		Page   int
		Status Status
		Stage  fragerrors.Stage
		Size   int
	}
	rows := func(r *Result) []row {
		out := make([]row, len(r.Pages))
		for i, p := range r.Pages {
			out[i] = row{p.Page, p.Status, p.Stage, p.Size}
		}
		return out
	}

	if diff := cmp.Diff(rows(seq), rows(par)); diff != "" {
		t.Errorf("parallel result differs from sequential (-seq +par):\n%s", diff)
	}
	assert.Equal(t, 100, par.Pages[0].Page)
}

func TestIdempotentOutput(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"batch.force": true})
	e.content(t, 101, "stable <b>content</b> ]]> & more")

	o := e.orchestrator(t, nil)
	_, err := o.Run(context.Background(), []int{101})
	require.NoError(t, err)
	first, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), []int{101})
	require.NoError(t, err)
	second, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPathCollisionDetectedUpFront(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"output.pattern": "latest.xml"})
	e.content(t, 101, "x")
	e.content(t, 102, "x")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101, 102})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fragerrors.ErrCodePathCollision)
	assert.Equal(t, ExitInputError, ExitCodeFor(err))
	assert.Empty(t, res.Pages)

	res, err = e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode())
}

func TestUnknownPlaceholderWarning(t *testing.T) {
	e := newEnv(t, nil)
	e.write(t, e.cfg.TemplatePath(), strings.Replace(pageTemplate, "<main>", "<main>{{AUTHOR}}", 1))
	e.content(t, 101, "x")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "{{AUTHOR}}")

	data, err := os.ReadFile(e.cfg.OutputPath(101))
	require.NoError(t, err)
	assert.Contains(t, string(data), "{{AUTHOR}}")
}

func TestValidationDisabled(t *testing.T) {
	e := newEnv(t, map[string]interface{}{"validation.enabled": false})
	e.content(t, 101, "\x01")

	res, err := e.orchestrator(t, nil).Run(context.Background(), []int{101})
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode())
	assert.Nil(t, res.Pages[0].Validation)
}

func TestSelect(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 104, "x")
	e.content(t, 102, "x")
	e.content(t, 150, "x")
	o := e.orchestrator(t, nil)

	pages, err := o.Select("")
	require.NoError(t, err)
	assert.Equal(t, []int{102, 104}, pages)

	pages, err = o.Select("105-107,101")
	require.NoError(t, err)
	assert.Equal(t, []int{101, 105, 106, 107}, pages)

	_, err = o.Select("nope")
	assert.Equal(t, ExitInputError, ExitCodeFor(err))
}

func TestCancelledContext(t *testing.T) {
	e := newEnv(t, nil)
	e.content(t, 101, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.orchestrator(t, nil).Run(ctx, []int{101})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{101}, res.Failed())
	assert.Equal(t, ExitTotalFailure, res.AbortCode(err))
}

func TestAbortCode(t *testing.T) {
	ok := PageResult{Page: 101, Status: StatusSucceeded}
	failed := PageResult{Page: 102, Status: StatusFailed, Stage: fragerrors.StageRender, Err: context.Canceled}
	inputErr := fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound, "template.html", nil)

	tests := []struct {
		name  string
		pages []PageResult
		err   error
		want  int
	}{
		{"no error", []PageResult{ok}, nil, ExitSuccess},
		{"cancelled with nothing done", []PageResult{failed}, context.Canceled, ExitTotalFailure},
		{"cancelled after a success", []PageResult{ok, failed}, context.Canceled, ExitPartialFailure},
		{"unknown error", nil, errors.New("boom"), ExitTotalFailure},
		{"input error keeps its code", []PageResult{ok}, inputErr, ExitInputError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Result{Pages: tt.pages}
			assert.Equal(t, tt.want, r.AbortCode(tt.err))
		})
	}
}

func TestExitCodeTable(t *testing.T) {
	loadErr := fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound, "x", nil)
	writeErr := fragerrors.NewOutputError(fragerrors.ErrCodeWriteFailed, "x", nil)
	valErr := fragerrors.NewValidationError(fragerrors.ErrCodeValidationFailed, "x")

	ok := PageResult{Status: StatusSucceeded}
	skip := PageResult{Status: StatusSkipped}
	load := PageResult{Status: StatusFailed, Stage: fragerrors.StageLoad, Err: loadErr}
	write := PageResult{Status: StatusFailed, Stage: fragerrors.StageWrite, Err: writeErr}
	val := PageResult{Status: StatusFailed, Stage: fragerrors.StageValidate, Err: valErr}

	tests := []struct {
		name  string
		pages []PageResult
		want  int
	}{
		{"all ok", []PageResult{ok, ok, ok}, ExitSuccess},
		{"ok and skipped", []PageResult{ok, skip}, ExitSuccess},
		{"all skipped", []PageResult{skip, skip}, ExitSuccess},
		{"partial", []PageResult{ok, ok, val}, ExitPartialFailure},
		{"all validation", []PageResult{val, val, val}, ExitTotalFailure},
		{"all load", []PageResult{load, load}, ExitInputError},
		{"all write", []PageResult{write, skip}, ExitOutputError},
		{"mixed failures", []PageResult{load, write}, ExitTotalFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Result{Pages: tt.pages}
			assert.Equal(t, tt.want, r.ExitCode())
		})
	}
}
