// Package batch drives the conversion pipeline over a set of pages:
// load, render, assemble, validate and write, with per-page failure
// isolation and an aggregated Result.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/pagefrag/internal/config"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/fragment"
	"github.com/conneroisu/pagefrag/internal/logging"
	"github.com/conneroisu/pagefrag/internal/output"
	"github.com/conneroisu/pagefrag/internal/renderer"
	"github.com/conneroisu/pagefrag/internal/source"
	"github.com/conneroisu/pagefrag/internal/validator"
)

// ConfirmFunc decides whether an existing file at path may be overwritten.
type ConfirmFunc func(path string) bool

// Never declines every overwrite.
func Never(string) bool { return false }

// Always accepts every overwrite.
func Always(string) bool { return true }

// Orchestrator runs conversion batches. A single Orchestrator may run
// several batches, one at a time or concurrently.
type Orchestrator struct {
	cfg       *config.Config
	loader    *source.Loader
	assembler *fragment.Assembler
	validator *validator.Validator
	writer    *output.Writer
	confirm   ConfirmFunc
	logger    logging.Logger

	confirmMu sync.Mutex
}

// New builds an orchestrator from cfg. A nil confirm declines every
// overwrite; a nil logger discards output.
func New(cfg *config.Config, logger logging.Logger, confirm ConfirmFunc) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid, "no configuration")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if confirm == nil {
		confirm = Never
	}

	loader, err := source.NewLoader(source.Options{
		SourceDir:   cfg.Paths.Source,
		Template:    cfg.Paths.Template,
		ContentDir:  cfg.Paths.Content,
		Extension:   cfg.Content.Extension,
		Encoding:    cfg.Content.Encoding,
		Normalize:   cfg.Content.Normalize,
		MaxChars:    cfg.Content.MaxChars,
		Styles:      cfg.Assets.Styles,
		Scripts:     cfg.Assets.Scripts,
		StyleLimit:  cfg.Assets.StyleLimit,
		ScriptLimit: cfg.Assets.ScriptLimit,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:    cfg,
		loader: loader,
		assembler: fragment.NewAssembler(fragment.Options{
			RootTag:  cfg.Fragment.Root,
			BodyTag:  cfg.Fragment.Body,
			MaxBytes: cfg.Output.MaxBytes,
			BOM:      cfg.Output.BOM,
		}),
		validator: validator.New(validator.Options{
			RootTag:              cfg.Fragment.Root,
			BodyTag:              cfg.Fragment.Body,
			AllowedScriptOrigins: cfg.Validation.AllowedScriptOrigins,
		}),
		writer:  output.NewWriter(cfg.Paths.Output),
		confirm: confirm,
		logger:  logger.WithComponent("batch"),
	}, nil
}

// Loader exposes the source loader, used by the watcher to map changed
// files to pages.
func (o *Orchestrator) Loader() *source.Loader { return o.loader }

// Validator exposes the fragment validator.
func (o *Orchestrator) Validator() *validator.Validator { return o.validator }

// Select resolves a page selection. An empty selection falls back to the
// configured selection, and then to every content file within the
// configured range.
func (o *Orchestrator) Select(selection string) ([]int, error) {
	if selection == "" {
		selection = o.cfg.Pages.Select
	}
	if selection != "" {
		pages, err := config.ParsePages(selection)
		if err != nil {
			return nil, fragerrors.NewInputError(fragerrors.ErrCodePageOutOfRange,
				fmt.Sprintf("invalid page selection: %v", err), nil).AsFatal()
		}
		return pages, nil
	}

	pages, err := o.loader.Discover(o.cfg.Pages.Min, o.cfg.Pages.Max)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound,
			fmt.Sprintf("no content files found for pages %d-%d", o.cfg.Pages.Min, o.cfg.Pages.Max), nil).
			WithPath(o.cfg.Paths.Content).AsFatal()
	}
	return pages, nil
}

// shared holds the inputs loaded once per batch.
type shared struct {
	tmpl   *renderer.PageTemplate
	style  source.Asset
	script source.Asset
}

// Run converts pages. Batch-wide problems (missing template or assets,
// colliding output paths, an output directory that cannot be created) are
// returned as errors before any page is processed. Per-page problems are
// recorded in the Result and never stop sibling pages.
func (o *Orchestrator) Run(ctx context.Context, pages []int) (*Result, error) {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)
	op := logging.StartOperation(logger, "convert")

	result := &Result{RunID: runID, DryRun: o.cfg.Batch.DryRun}

	pages = unique(pages)
	if len(pages) == 0 {
		err := fragerrors.NewInputError(fragerrors.ErrCodePageOutOfRange, "no pages requested", nil).AsFatal()
		op.EndWithError(ctx, err)
		return result, err
	}

	in, err := o.prepare(ctx, logger, pages, result)
	if err != nil {
		op.EndWithError(ctx, err)
		return result, err
	}

	result.Pages = make([]PageResult, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Batch.Workers)
	for i, page := range pages {
		g.Go(func() error {
			result.Pages[i] = o.convert(gctx, logger, in, page)
			return nil
		})
	}
	_ = g.Wait()

	result.sort()
	op.End(ctx,
		"pages", len(pages),
		"succeeded", len(result.Succeeded()),
		"failed", len(result.Failed()),
		"skipped", len(result.Skipped()),
		"dry_run", result.DryRun,
	)

	return result, ctx.Err()
}

// prepare loads the shared inputs and checks every batch prerequisite.
func (o *Orchestrator) prepare(ctx context.Context, logger logging.Logger, pages []int, result *Result) (*shared, error) {
	tmpl, err := o.loader.Template()
	if err != nil {
		return nil, err
	}
	result.Template = o.loader.TemplatePath()
	if unknown := tmpl.UnknownPlaceholders(); len(unknown) > 0 {
		toks := make([]string, len(unknown))
		for i, name := range unknown {
			toks[i] = renderer.Token(name)
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("template leaves unrecognised placeholders untouched: %s", strings.Join(toks, ", ")))
	}

	style, script, warnings, err := o.loader.Assets()
	if err != nil {
		return nil, err
	}
	result.Assets = append(append([]string{}, style.Files...), script.Files...)
	result.Warnings = append(result.Warnings, warnings...)

	if err := o.checkCollisions(pages); err != nil {
		return nil, err
	}

	if !o.cfg.Batch.DryRun {
		if err := o.writer.EnsureDir(); err != nil {
			return nil, err
		}
	}

	for _, w := range result.Warnings {
		logger.Warn(ctx, nil, w)
	}
	logger.Info(ctx, "Batch prerequisites loaded",
		"template", result.Template,
		"assets", len(result.Assets),
		"pages", len(pages),
	)

	return &shared{tmpl: tmpl, style: style, script: script}, nil
}

// checkCollisions rejects selections where two pages map to one file.
func (o *Orchestrator) checkCollisions(pages []int) error {
	owners := make(map[string]int, len(pages))
	for _, page := range pages {
		path := o.cfg.OutputPath(page)
		if prev, ok := owners[path]; ok {
			return fragerrors.NewInputError(fragerrors.ErrCodePathCollision,
				fmt.Sprintf("pages %d and %d both write to %s", prev, page, path), nil).
				WithPath(path).AsFatal()
		}
		owners[path] = page
	}
	return nil
}

// convert runs the per-page pipeline. It never returns an error: every
// failure is recorded on the PageResult.
func (o *Orchestrator) convert(ctx context.Context, logger logging.Logger, in *shared, page int) PageResult {
	res := PageResult{Page: page, Path: o.cfg.OutputPath(page)}
	logger = logger.With("page", page)

	fail := func(stage fragerrors.Stage, err error) PageResult {
		var e *fragerrors.Error
		if !errors.As(err, &e) {
			e = fragerrors.WrapInternal(err, fragerrors.ErrCodeInternalError, "unexpected failure")
		}
		if e.Stage == "" {
			e.WithStage(stage)
		}
		if e.Page == 0 {
			e.WithPage(page)
		}

		res.Status = StatusFailed
		res.Stage = stage
		res.Code = e.Code
		res.Message = fragerrors.FormatError(e)
		res.Err = e
		logger.Warn(ctx, e, "Page failed", "stage", string(stage))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(fragerrors.StageLoad, fragerrors.WrapInternal(err, fragerrors.ErrCodeInternalError, "batch cancelled"))
	}

	lo, hi := o.cfg.Pages.Min, o.cfg.Pages.Max
	if page < lo || page > hi {
		return fail(fragerrors.StageLoad, fragerrors.NewInputError(fragerrors.ErrCodePageOutOfRange,
			fmt.Sprintf("page %d is outside the configured range %d-%d", page, lo, hi), nil))
	}

	content, err := o.loader.Content(page)
	if err != nil {
		return fail(fragerrors.StageLoad, err)
	}

	html, err := renderer.Render(in.tmpl, page, content, in.style.Text, in.script.Text, lo, hi)
	if err != nil {
		return fail(fragerrors.StageRender, err)
	}

	frag, err := o.assembler.Assemble(html)
	if err != nil {
		return fail(fragerrors.StageAssemble, err)
	}
	res.Size = frag.Size
	data := frag.Bytes()

	if o.cfg.Validation.Enabled {
		report := o.validator.Validate(data, page)
		res.Validation = &report
		res.Warnings = append(res.Warnings, report.Warnings()...)
		if !report.Valid {
			return fail(fragerrors.StageValidate, fragerrors.NewValidationError(
				fragerrors.ErrCodeValidationFailed,
				fmt.Sprintf("blocking validation errors: %s", strings.Join(report.Errors(), "; ")),
			).WithContext("layers", report.FailedLayers()))
		}
	}

	if o.cfg.Batch.DryRun {
		res.Status = StatusSucceeded
		res.DryRun = true
		logger.Info(ctx, "Would write fragment", "path", res.Path, "size", res.Size)
		return res
	}

	if o.writer.Exists(res.Path) && !o.mayOverwrite(res.Path) {
		res.Status = StatusSkipped
		res.Message = "existing file kept"
		logger.Info(ctx, "Skipped existing fragment", "path", res.Path)
		return res
	}

	if err := o.writer.Write(ctx, res.Path, data); err != nil {
		return fail(fragerrors.StageWrite, err)
	}

	res.Status = StatusSucceeded
	logger.Debug(ctx, "Fragment written", "path", res.Path, "size", res.Size)
	return res
}

// mayOverwrite applies the overwrite policy. Prompts are serialized so
// interactive confirmations never interleave.
func (o *Orchestrator) mayOverwrite(path string) bool {
	if o.cfg.Batch.Force {
		return true
	}
	switch o.cfg.Batch.Overwrite {
	case config.OverwriteForce:
		return true
	case config.OverwriteSkip:
		return false
	}

	o.confirmMu.Lock()
	defer o.confirmMu.Unlock()
	return o.confirm(path)
}

func unique(pages []int) []int {
	if len(pages) == 0 {
		return nil
	}
	out := append([]int(nil), pages...)
	sort.Ints(out)
	n := 1
	for _, p := range out[1:] {
		if p != out[n-1] {
			out[n] = p
			n++
		}
	}
	return out[:n]
}
