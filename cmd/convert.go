package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/conneroisu/pagefrag/internal/batch"
	"github.com/conneroisu/pagefrag/internal/config"
	"github.com/conneroisu/pagefrag/internal/report"
)

var convertCmd = &cobra.Command{
	Use:     "convert",
	Aliases: []string{"c"},
	Short:   "Convert page content into XML policy fragments",
	Args:    usageArgs(cobra.NoArgs),
	Long: `Convert renders every selected page through the template, wraps the result
in a CDATA policy fragment, validates it and writes it to the output directory.

A page that fails is reported and never stops the other pages. Missing batch
prerequisites (template, literal asset files, an output directory that cannot
be created) abort the run before any page is processed.

Examples:
  pagefrag convert                           # every page found in content/
  pagefrag convert --pages 101,103,105-110   # a selection
  pagefrag convert --dry-run --format json   # report without writing
  pagefrag convert --force --workers 4       # overwrite, four pages at a time`,
	RunE: runConvert,
}

var (
	convertPages  pageListValue
	convertFormat formatValue
)

func init() {
	rootCmd.AddCommand(convertCmd)

	addPathFlags(convertCmd)
	convertCmd.Flags().VarP(&convertPages, "pages", "p", "pages to convert, e.g. 101,103,105-110 (default: every content file in range)")
	convertCmd.Flags().Bool("validate", true, "run the fragment validator before writing")
	convertCmd.Flags().Bool("force", false, "overwrite existing fragments without asking")
	convertCmd.Flags().BoolP("dry-run", "n", false, "convert and validate without writing")
	convertCmd.Flags().IntP("workers", "j", 1, "pages converted in parallel")
	convertCmd.Flags().String("overwrite", config.OverwritePrompt, "policy for existing fragments (prompt, force, skip)")
	addFormatFlag(convertCmd, &convertFormat)

	SetViperBindings(convertCmd.Flags(), map[string]string{
		"validate":  "validation.enabled",
		"force":     "batch.force",
		"dry-run":   "batch.dry_run",
		"workers":   "batch.workers",
		"overwrite": "batch.overwrite",
	})
}

// addPathFlags adds the input and output location flags shared by convert
// and watch.
func addPathFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "site", "directory holding the template and assets")
	cmd.Flags().StringP("template", "t", "template.html", "template file, relative to --source")
	cmd.Flags().String("content", "content", "directory holding page-<N> content files")
	cmd.Flags().StringP("output", "o", "dist", "directory receiving the fragments")

	SetViperBindings(cmd.Flags(), map[string]string{
		"source":   "paths.source",
		"template": "paths.template",
		"content":  "paths.content",
		"output":   "paths.output",
	})
}

func runConvert(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	confirm := promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), isInteractive(cmd.InOrStdin()))
	orch, err := batch.New(cfg, logger, confirm)
	if err != nil {
		return err
	}

	pages := convertPages.Pages()
	if pages == nil {
		if pages, err = orch.Select(""); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx, pages)
	if err != nil && len(result.Pages) == 0 {
		return err
	}
	if werr := report.WriteBatch(cmd.OutOrStdout(), result, convertFormat.format); werr != nil {
		return werr
	}
	if err != nil {
		return &ExitError{Code: result.AbortCode(err), Err: err}
	}
	if code := result.ExitCode(); code != batch.ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func isInteractive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// promptConfirm asks on out and reads the answer from in. Without a
// terminal every overwrite is declined.
func promptConfirm(in io.Reader, out io.Writer, interactive bool) batch.ConfirmFunc {
	if !interactive {
		return batch.Never
	}
	var (
		once   sync.Once
		reader *bufio.Reader
	)
	return func(path string) bool {
		once.Do(func() { reader = bufio.NewReader(in) })
		fmt.Fprintf(out, "Overwrite %s? [y/N] ", path)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
