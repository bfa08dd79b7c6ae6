package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
)

func newValidateCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a scenario holds every artifact its stage requires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scn, err := scenario.Load(path, a.log)
			if err != nil {
				return err
			}
			return printYAML(cmd, scn.Summary())
		},
	}
	cmd.Flags().StringVar(&path, "scenario-path", "", "scenario directory")
	cmd.MarkFlagRequired("scenario-path")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenarios under the storage root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := scenario.List(a.cfg.Storage.Root, a.log)
			if err != nil {
				return err
			}
			if scenarios == nil {
				scenarios = []model.ScenarioSummary{}
			}
			return printYAML(cmd, scenarios)
		},
	}
}

func printYAML(cmd *cobra.Command, v interface{}) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
