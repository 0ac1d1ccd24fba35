package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-go-golems/agentic-research/pkg/results"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newUsageCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "usage <results-dir|token_usage.json>",
		Short: "Print the token usage summary saved by a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if fi, err := os.Stat(path); err == nil && fi.IsDir() {
				path = filepath.Join(path, results.TokenUsageFile)
			}
			report, err := usage.LoadReport(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "summary":
				report.WriteSummary(out)
			case "markdown":
				fmt.Fprintln(out, report.MarkdownSection(false))
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return errors.Wrap(err, "failed to encode usage report")
				}
				return enc.Close()
			default:
				return errors.Errorf("unknown format %q (summary, markdown, yaml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "summary", "Output format (summary, markdown, yaml)")
	return cmd
}
