// Package cli builds the cobra commands of the pipeline binaries.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/service"
)

// app carries what PersistentPreRunE loads for every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.SugaredLogger
}

// NewRootCmd returns the `pipeline` command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Staged demand forecasting pipeline",
		Long:          "Runs the demand forecasting pipeline over scenario directories, restarting from the last completed stage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path of the YAML configuration file")

	root.AddCommand(
		newRunCmd(a),
		newSeedCmd(a),
		newValidateCmd(a),
		newListCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) load() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.LoadWithViper(config.NewViper())
	}
	if err != nil {
		return err
	}
	a.log, err = logger.New(logger.Options{JSON: a.cfg.Log.JSON, Level: a.cfg.Log.Level})
	return err
}

func (a *app) provider() (*service.Provider, error) {
	return service.New(a.cfg, a.log)
}
