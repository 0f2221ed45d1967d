package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagefrag/internal/batch"
	"github.com/conneroisu/pagefrag/internal/config"
	"github.com/conneroisu/pagefrag/internal/logging"
	"github.com/conneroisu/pagefrag/internal/report"
	"github.com/conneroisu/pagefrag/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Convert pages, then re-convert them as their inputs change",
	Args:    usageArgs(cobra.NoArgs),
	Long: `Watch converts the selected pages once and then watches the source and
content directories. A changed content file re-converts its page; a changed
template or asset re-converts the whole selection. Existing fragments are
overwritten without asking.

Examples:
  pagefrag watch                     # watch every page found in content/
  pagefrag watch --pages 101-110     # restrict to a selection
  pagefrag watch --debounce 1s       # wait longer for editors to settle`,
	RunE: runWatch,
}

var (
	watchPagesFlag pageListValue
	watchFormat    formatValue
	watchDebounce  time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	addPathFlags(watchCmd)
	watchCmd.Flags().VarP(&watchPagesFlag, "pages", "p", "pages to watch, e.g. 101,103,105-110")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "quiet period before changes are processed")
	watchCmd.Flags().IntP("workers", "j", 1, "pages converted in parallel")
	addFormatFlag(watchCmd, &watchFormat)

	SetViperBindings(watchCmd.Flags(), map[string]string{
		"workers": "batch.workers",
	})
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchPages(ctx, cfg, logger, cmd.OutOrStdout(), watchFormat.format, watchPagesFlag.Pages(), watchDebounce, nil)
}

// watchPages runs until ctx is done. ready, when non-nil, is closed once the
// initial conversion finished and the watcher is running.
func watchPages(ctx context.Context, cfg *config.Config, logger logging.Logger, out io.Writer,
	format report.Format, pages []int, debounce time.Duration, ready chan<- struct{},
) error {
	cfg.Batch.Force = true
	cfg.Batch.DryRun = false

	orch, err := batch.New(cfg, logger, batch.Always)
	if err != nil {
		return err
	}
	if pages == nil {
		if pages, err = orch.Select(""); err != nil {
			return err
		}
	}

	convert := func(ctx context.Context, pages []int) error {
		result, err := orch.Run(ctx, pages)
		if err != nil && len(result.Pages) == 0 {
			return err
		}
		return report.WriteBatch(out, result, format)
	}

	// Missing prerequisites only fail the initial run; the watcher keeps
	// going so that fixing the input recovers.
	if err := convert(ctx, pages); err != nil {
		logger.Error(ctx, err, "Initial conversion failed")
	}

	fileWatcher, err := watcher.NewFileWatcher(debounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoGitFilter)
	fileWatcher.AddFilter(watcher.NoTempFilter)
	fileWatcher.AddFilter(watcher.ExcludeDirFilter(cfg.Paths.Output))

	planner := watcher.NewPlanner(orch.Loader(), pages)
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		plan := planner.Plan(events)
		for _, event := range events {
			logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
		}
		if plan.Empty() {
			return nil
		}
		logger.Info(ctx, "Re-converting pages", "pages", config.FormatPages(plan.Pages), "full", plan.Full)
		return convert(ctx, plan.Pages)
	})

	for _, dir := range []string{cfg.Paths.Source, cfg.Paths.Content} {
		if err := fileWatcher.AddRecursive(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logger.Info(ctx, "Watching directory", "path", dir)
	}

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "Stopping file watcher")
	return nil
}
