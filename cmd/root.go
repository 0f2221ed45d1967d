// Package cmd provides the command-line interface for pagefrag with layered
// configuration.
//
// Configuration System:
//
//	Values are resolved with clear precedence:
//	1. Command-line flags (--output, --pages, etc.) - highest priority
//	2. PAGEFRAG_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (PAGEFRAG_PATHS_OUTPUT, etc.)
//	4. Configuration file (.pagefrag.yml) - lowest priority
//
// Environment Variables:
//
//	PAGEFRAG_CONFIG_FILE: Path to custom configuration file
//	PAGEFRAG_PATHS_SOURCE: Override the source directory
//	PAGEFRAG_BATCH_WORKERS: Number of pages converted in parallel
//	And every other key following the PAGEFRAG_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagefrag/internal/config"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
	"github.com/conneroisu/pagefrag/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagefrag",
	Short: "Convert page content into CDATA wrapped XML policy fragments",
	Long: `pagefrag merges per-page text content into an HTML template, inlines the
shared style and script assets, and wraps each result in an XML policy
fragment that an API gateway can serve as a response body.

Quick Start:
  pagefrag convert                     Convert every page found in content/
  pagefrag convert --pages 101-105     Convert a page selection
  pagefrag validate dist/              Check existing fragments
  pagefrag watch                       Re-convert pages as their inputs change

Exit codes:
  0 success, 1 partial failure, 2 input error, 3 output error, 4 total failure`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: bindCommandFlags,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	c, err := rootCmd.ExecuteC()
	if err != nil && c != nil && !c.Runnable() {
		// Only command lookup fails on a command without a run function.
		return usageError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .pagefrag.yml, can also use PAGEFRAG_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")
	SetViperBindings(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
}

// initConfig selects the configuration file and enables PAGEFRAG_*
// environment overrides.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. PAGEFRAG_CONFIG_FILE environment variable
//  3. .pagefrag.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAGEFRAG_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagefrag")
	}

	viper.SetEnvPrefix("PAGEFRAG")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// loadConfig reads the config file, if any, and decodes the effective
// configuration. A missing default file is fine; an explicitly named file
// that cannot be read is a configuration error.
func loadConfig() (*config.Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		explicit := cfgFile != "" || os.Getenv("PAGEFRAG_CONFIG_FILE") != ""
		if explicit || !errors.As(err, &notFound) {
			return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("cannot read config file: %v", err))
		}
	}
	return config.Load()
}

// newLogger builds the command logger. Logs go to w, reports to stdout.
func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	levelName := cfg.Log.Level
	if verbose {
		levelName = "debug"
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid, err.Error())
	}

	format := strings.ToLower(cfg.Log.Format)
	if format != "json" && format != "text" && format != "" {
		return nil, fragerrors.NewConfigError(fragerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown log format %q (want text or json)", cfg.Log.Format))
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    w,
		Component: "cli",
	}), nil
}
