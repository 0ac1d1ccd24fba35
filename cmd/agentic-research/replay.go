package main

import (
	"fmt"

	"github.com/go-go-golems/agentic-research/pkg/display"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/go-go-golems/agentic-research/pkg/runner/replay"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReplayCommand() *cobra.Command {
	var operation string
	var model string
	var summary bool

	cmd := &cobra.Command{
		Use:   "replay <raw_events.json>",
		Short: "Render a saved raw event log as it was shown during the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := replay.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ledger := usage.NewLedger()
			r := reducer.New(usage.Operation(operation), model, ledger,
				reducer.WithDisplay(display.NewPrinter(out)),
				reducer.WithVerbose(viper.GetBool("verbose")),
			)
			result, err := r.Process(cmd.Context(), l.Stream())
			if err != nil {
				return err
			}

			if result.Output != "" {
				fmt.Fprint(out, display.Format(reducer.Notice{
					Kind:  reducer.NoticeOutput,
					Label: "FINAL OUTPUT",
					Text:  result.Output,
				}))
			}
			if summary {
				ledger.Report().WriteSummary(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", string(usage.OperationResearch), "Operation the usage of the log is attributed to")
	cmd.Flags().StringVar(&model, "model", "replay", "Model the usage of the log is attributed to")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the token usage summary")
	return cmd
}
