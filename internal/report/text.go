package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/conneroisu/pagefrag/internal/batch"
	"github.com/conneroisu/pagefrag/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

func writeBatchText(w io.Writer, res *batch.Result) error {
	var b strings.Builder

	title := "Conversion summary"
	if res.DryRun {
		title += " (dry run, nothing written)"
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	if res.RunID != "" {
		b.WriteString(mutedStyle.Render("run "+res.RunID) + "\n")
	}
	if res.Template != "" {
		fmt.Fprintf(&b, "template: %s\n", res.Template)
	}
	if len(res.Assets) > 0 {
		fmt.Fprintf(&b, "assets:   %s\n", strings.Join(res.Assets, ", "))
	}

	for _, warning := range res.Warnings {
		b.WriteString(warnStyle.Render("! "+warning) + "\n")
	}

	succeeded := res.Succeeded()
	failed := res.Failures()
	skipped := res.Skipped()

	label := "succeeded"
	if res.DryRun {
		label = "would write"
	}
	fmt.Fprintf(&b, "%s %s\n", okStyle.Render(fmt.Sprintf("%s (%d):", label, len(succeeded))), config.FormatPages(succeeded))
	for _, p := range res.Pages {
		if p.Status == batch.StatusSucceeded {
			fmt.Fprintf(&b, "  %d -> %s (%d bytes)\n", p.Page, p.Path, p.Size)
		}
	}

	fmt.Fprintf(&b, "%s %s\n", failStyle.Render(fmt.Sprintf("failed (%d):", len(failed))), config.FormatPages(res.Failed()))
	for _, f := range failed {
		fmt.Fprintf(&b, "  %d [%s] %s\n", f.Page, f.Stage, f.Message)
	}

	fmt.Fprintf(&b, "%s %s\n", warnStyle.Render(fmt.Sprintf("skipped (%d):", len(skipped))), config.FormatPages(skipped))

	for _, p := range res.Pages {
		for _, warning := range p.Warnings {
			b.WriteString(warnStyle.Render(fmt.Sprintf("! page %d: %s", p.Page, warning)) + "\n")
		}
	}

	fmt.Fprintf(&b, "exit code: %d\n", res.ExitCode())

	_, err := io.WriteString(w, b.String())
	return err
}

func writeValidationText(w io.Writer, files []FileReport) error {
	var b strings.Builder
	valid := 0

	for _, f := range files {
		if f.Valid() {
			valid++
			b.WriteString(okStyle.Render("PASS") + " " + f.Path + "\n")
		} else {
			b.WriteString(failStyle.Render("FAIL") + " " + f.Path + "\n")
		}
		if f.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", f.Error)
			continue
		}
		if f.Report == nil {
			continue
		}
		for _, l := range f.Report.Layers {
			status := okStyle.Render("ok")
			if !l.Passed {
				status = failStyle.Render("failed")
			}
			fmt.Fprintf(&b, "  %-16s %s\n", l.Layer, status)
			for _, e := range l.Errors {
				fmt.Fprintf(&b, "    %s %s\n", failStyle.Render("x"), e)
			}
			for _, warning := range l.Warnings {
				fmt.Fprintf(&b, "    %s %s\n", warnStyle.Render("!"), warning)
			}
		}
	}

	fmt.Fprintf(&b, "%d of %d fragment(s) valid\n", valid, len(files))

	_, err := io.WriteString(w, b.String())
	return err
}
