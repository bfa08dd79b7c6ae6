// Command pipeline-api serves the scenario API. It accepts the flags of
// `pipeline serve`.
//
// @title Forecast Pipeline API
// @version 1.0
// @description Create demand forecast scenarios, follow their runs and download their artifacts.
// @BasePath /api/v1
package main

import (
	"fmt"
	"os"

	"go-forecast-pipeline/internal/cli"
)

func main() {
	cmd := cli.NewRootCmd()
	cmd.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
