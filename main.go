package main

import (
	"fmt"
	"os"

	"github.com/conneroisu/pagefrag/cmd"
	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !cmd.Reported(err) {
			fmt.Fprintln(os.Stderr, "Error:", fragerrors.FormatError(err))
		}
		os.Exit(cmd.ExitCode(err))
	}
}
