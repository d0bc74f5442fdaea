// AgentFlow CLI — локальное выполнение flow и управление выполнениями
// через HTTP API.
//
// Использование:
//
//	agentflow [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run FILE        Выполнить flow локально
//	validate FILE   Проверить flow
//	execution       Выполнения на сервере: list, show, submit
//	schedule        Файл расписаний: list, next
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/AgentFlow/internal/cli"
	"github.com/shaiso/AgentFlow/internal/orchestrator"
	"github.com/shaiso/AgentFlow/internal/setup"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	_ = setup.LoadEnv()

	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "agentflow",
		Short:         "AgentFlow CLI — run and inspect agent flows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("AGENTFLOW_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	logger := telemetry.SetupCLILogger()
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	runnerFn := func(ctx context.Context) (cli.Runner, error) {
		return setup.OrchestratorFromEnv(ctx, logger)
	}
	validatorFn := func(context.Context) (cli.Runner, error) {
		return orchestrator.New(orchestrator.Config{Logger: logger}), nil
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(runnerFn, outputFn),
		cli.NewValidateCmd(validatorFn, clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewScheduleCmd(outputFn, time.Now),
	)

	if err := rootCmd.Execute(); err != nil {
		outputFn().Error(err.Error())
		os.Exit(1)
	}
}
