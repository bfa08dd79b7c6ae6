package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/service"
	"go-forecast-pipeline/internal/stage"
)

type runFlags struct {
	scenarioPath string
	name         string
	finalStage   string
	test         bool
	reference    string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the forecast pipeline on a new or existing scenario",
		Long: `Run creates a scenario under the storage root, or resumes the scenario at
--scenario-path from its persisted stage, and drives it to --final-stage.
With --test every produced stage is compared against the --reference scenario.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.scenarioPath, "scenario-path", "", "existing scenario to resume")
	cmd.Flags().StringVar(&f.name, "name", "", "name of the scenario to create (default: a timestamp)")
	cmd.Flags().StringVar(&f.finalStage, "final-stage", stage.Last.String(), "last stage to produce")
	cmd.Flags().BoolVar(&f.test, "test", false, "compare every produced stage against --reference")
	cmd.Flags().StringVar(&f.reference, "reference", "", "reference scenario for --test")
	cmd.MarkFlagsMutuallyExclusive("scenario-path", "name")
	cmd.MarkFlagsRequiredTogether("test", "reference")
	return cmd
}

func (a *app) run(cmd *cobra.Command, f *runFlags) error {
	final, err := stage.Parse(f.finalStage)
	if err != nil {
		return errors.WithHint(err, "use one of the stage names, e.g. PREDICTION_PREDICTED")
	}

	p, err := a.provider()
	if err != nil {
		return err
	}
	defer p.Close()

	scn, err := openScenario(p, f)
	if err != nil {
		return err
	}
	req := service.RunRequest{Final: final, Test: f.test}
	if f.test {
		if req.Reference, err = scenario.Load(f.reference, a.log); err != nil {
			return errors.Wrap(err, "load reference scenario")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if err := p.Run(ctx, scn, req); err != nil {
		return err
	}

	a.log.Infow("Scenario ready", logger.FieldScenario, scn.Name(), logger.FieldStage, scn.Stage().String(),
		logger.FieldPath, scn.Location())
	outputs := scn.Outputs()
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %g\n", k, outputs[k])
	}
	return nil
}

func openScenario(p *service.Provider, f *runFlags) (*scenario.Scenario, error) {
	if f.scenarioPath != "" {
		return scenario.Load(f.scenarioPath, p.Log)
	}
	name := f.name
	if name == "" {
		name = time.Now().UTC().Format("20060102-150405")
	}
	return p.CreateScenario(name)
}
