package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagefrag/internal/batch"
	"github.com/conneroisu/pagefrag/internal/config"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/report"
	"github.com/conneroisu/pagefrag/internal/validator"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [file-or-dir...]",
	Short: "Validate existing XML policy fragments",
	Long: `Validate runs the four fragment checks over files already on disk:

- Well-formedness: the document parses and has a single root element
- Schema: the configured root and body elements, CDATA only, not empty
- Security: script origins, inline handlers and dynamic code (warnings)
- Structure: the embedded page has html, head and body elements

Directories are searched for *.xml files. Without arguments the configured
output directory is validated.

Examples:
  pagefrag validate                     # every fragment in dist/
  pagefrag validate dist/page-101.xml   # a single file
  pagefrag validate --format json dist  # machine readable report`,
	RunE: runValidateCommand,
}

var validateFormat formatValue

func init() {
	rootCmd.AddCommand(validateCmd)

	addFormatFlag(validateCmd, &validateFormat)
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{cfg.Paths.Output}
	}
	files, err := fragmentFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound,
			fmt.Sprintf("no fragment files found in %s", strings.Join(args, ", ")), nil)
	}

	v := validator.New(validator.Options{
		RootTag:              cfg.Fragment.Root,
		BodyTag:              cfg.Fragment.Body,
		AllowedScriptOrigins: cfg.Validation.AllowedScriptOrigins,
	})

	reports := validateFiles(cfg, v, files)
	valid := 0
	for _, r := range reports {
		if r.Valid() {
			valid++
		} else {
			logger.Debug(commandContext(cmd), "Fragment rejected", "path", r.Path, "error", r.Error)
		}
	}

	if err := report.WriteValidation(cmd.OutOrStdout(), reports, validateFormat.format); err != nil {
		return err
	}

	switch {
	case valid == len(reports):
		return nil
	case valid > 0:
		return &ExitError{Code: batch.ExitPartialFailure}
	default:
		return &ExitError{Code: batch.ExitTotalFailure}
	}
}

// validateFiles validates each file, deriving the page number from the
// configured output pattern. A file over the byte ceiling is invalid even
// when every layer passes.
func validateFiles(cfg *config.Config, v *validator.Validator, files []string) []report.FileReport {
	reports := make([]report.FileReport, 0, len(files))
	for _, path := range files {
		fr := report.FileReport{Path: path}
		if page, ok := cfg.PageOfOutput(path); ok {
			fr.Page = page
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fr.Error = err.Error()
			reports = append(reports, fr)
			continue
		}

		if len(data) > cfg.Output.MaxBytes {
			fr.Error = fragerrors.NewSizeLimitError(len(data), cfg.Output.MaxBytes).Error()
		}
		rep := v.Validate(data, fr.Page)
		fr.Report = &rep
		reports = append(reports, fr)
	}
	return reports
}

// fragmentFiles expands directories to the *.xml files they contain.
func fragmentFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fragerrors.NewInputError(fragerrors.ErrCodeFileNotFound, "cannot read fragment path", err).
				WithPath(arg)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.xml"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}
