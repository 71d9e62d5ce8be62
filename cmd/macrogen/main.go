// Command macrogen compiles voucher macros from an exported template
// directory without the HTTP service or a database.
//
// Usage:
//
//	macrogen compile --dir macro_mod --amount 10 --amount 20 \
//	    --identity owner@example.com --name "Cafe Uno" --out dist
//	macrogen inspect --dir macro_mod
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/vouchermacro/internal/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "macrogen",
		Short:         "Compile voucher macros from an exported template set",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				return nil
			}
			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARNING, ERROR)")

	root.AddCommand(newCompileCmd(), newInspectCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
