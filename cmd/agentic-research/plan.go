package main

import (
	"github.com/go-go-golems/agentic-research/pkg/settings"
	"github.com/go-go-golems/agentic-research/pkg/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type planExplanation struct {
	workflow.Plan `yaml:",inline"`
	Query         string          `yaml:"query"`
	InputFile     string          `yaml:"input_file,omitempty"`
	Models        workflow.Models `yaml:"models"`
	ResultsDir    string          `yaml:"results_dir"`
	APIType       string          `yaml:"api_type"`
}

// newPlanCommand prints the plan selected by the mode flags without
// running it.
func newPlanCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the stages a research invocation would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(viper.GetViper())
			if err != nil {
				return err
			}
			req := opts.request()
			if req.Query == "" && !req.Flags.CritiqueOnly {
				req.Query = s.DefaultQuery
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() {
				_ = enc.Close()
			}()
			return enc.Encode(planExplanation{
				Plan:       workflow.SelectPlan(req.Flags),
				Query:      req.Query,
				InputFile:  req.InputFile,
				Models:     s.Models(),
				ResultsDir: s.ResultsDir,
				APIType:    string(s.APIType),
			})
		},
	}
	addRunFlags(cmd, opts)
	_ = cmd.Flags().MarkHidden("echo-events")
	_ = cmd.Flags().MarkHidden("replay-dir")
	return cmd
}
