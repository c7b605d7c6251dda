package main

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/linkbot/internal/classifier"
	"github.com/kursadbilgin/linkbot/internal/extract"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <text>",
		Short: "Print the links found in a message, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range extract.ExtractURLs(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var hint string

	cmd := &cobra.Command{
		Use:   "classify <url>...",
		Short: "Print the content type picked for each link",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", classifier.Classify(u, hint), u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hint, "hint", "", "content type hint reported by a scraper")
	return cmd
}
