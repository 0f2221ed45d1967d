package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagefrag/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the pagefrag configuration",
	Long: `Inspect the effective pagefrag configuration.

Examples:
  pagefrag config show                  # effective configuration as YAML
  pagefrag config show --format json    # as JSON
  pagefrag config validate              # check .pagefrag.yml and PAGEFRAG_* values`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  usageArgs(cobra.NoArgs),
	Long: `Display the configuration after loading the config file, applying
PAGEFRAG_* environment overrides and filling in defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runConfigValidate,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch configFormat {
	case "yaml", "yml":
		return showConfigYAML(cmd.OutOrStdout(), cfg)
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)}
	}
}

func showConfigYAML(w io.Writer, cfg *config.Config) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# config file: %s\n", used)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return err
	}
	return encoder.Close()
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  file:   %s\n", used)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  pages:  %d-%d\n", cfg.Pages.Min, cfg.Pages.Max)
	fmt.Fprintf(cmd.OutOrStdout(), "  output: %s\n", cfg.OutputPath(cfg.Pages.Min))
	return nil
}
