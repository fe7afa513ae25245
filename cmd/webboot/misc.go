package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/webboot/internal/bootstrap"
)

func newCrawlerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawler <user-agent>",
		Short: "Report whether a user agent would skip module loading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bootstrap.IsCrawler(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "crawler: module loading skipped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "browser: module loads")
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webboot %s (%s, %s)\n", version, commit, runtime.Version())
		},
	}
}
