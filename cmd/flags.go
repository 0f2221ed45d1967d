package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagefrag/internal/config"
	"github.com/conneroisu/pagefrag/internal/report"
)

// viperKeyAnnotation marks flags that override a configuration key.
const viperKeyAnnotation = "pagefrag_viper_key"

// pageListValue is a pflag.Value accepting "101,103,105-110".
type pageListValue struct {
	pages []int
	set   bool
}

var _ pflag.Value = (*pageListValue)(nil)

func (p *pageListValue) String() string { return config.FormatPages(p.pages) }

func (p *pageListValue) Set(s string) error {
	pages, err := config.ParsePages(s)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("empty page list")
	}
	if p.set {
		pages = append(p.pages, pages...)
		pages, _ = config.ParsePages(config.FormatPages(pages))
	}
	p.pages = pages
	p.set = true
	return nil
}

func (p *pageListValue) Type() string { return "pages" }

// Pages returns the parsed list, or nil when the flag was not given.
func (p *pageListValue) Pages() []int {
	if !p.set {
		return nil
	}
	return p.pages
}

func (p *pageListValue) reset() {
	p.pages = nil
	p.set = false
}

// formatValue is a pflag.Value restricted to the report formats.
type formatValue struct {
	format report.Format
}

func (f *formatValue) String() string { return string(f.format) }

func (f *formatValue) Set(s string) error {
	format, err := report.ParseFormat(s)
	if err != nil {
		return err
	}
	f.format = format
	return nil
}

func (f *formatValue) Type() string { return "format" }

func addFormatFlag(cmd *cobra.Command, target *formatValue) {
	target.format = report.FormatText
	names := make([]string, len(report.Formats))
	for i, f := range report.Formats {
		names[i] = string(f)
	}
	cmd.Flags().VarP(target, "format", "f", "report format ("+strings.Join(names, ", ")+")")
}

// SetViperBindings records the configuration key each flag overrides. The
// bindings are applied to the global viper instance right before the command
// runs.
func SetViperBindings(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flags.Lookup(flagName) == nil {
			panic(fmt.Sprintf("cmd: binding unknown flag %q", flagName))
		}
		_ = flags.SetAnnotation(flagName, viperKeyAnnotation, []string{configKey})
	}
}

// bindCommandFlags binds the annotated flags of the running command,
// including inherited persistent flags.
func bindCommandFlags(cmd *cobra.Command, _ []string) error {
	var bindErr error
	bind := func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = viper.BindPFlag(keys[0], f)
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return bindErr
}
