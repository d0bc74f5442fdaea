package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для выполнений на сервере.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Manage executions on the API server",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

var executionHeaders = []string{"ID", "AGENT", "FLOW", "STATUS", "STARTED", "FINISHED", "ERROR"}

func executionRow(e ExecutionResponse) []string {
	return []string{e.ID, e.AgentID, e.FlowName, e.Status, formatTime(e.StartedAt), formatTime(e.FinishedAt), e.Error}
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			executions, err := clientFn().ListExecutions(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(executions))
			for i, e := range executions {
				rows[i] = executionRow(e)
			}
			outputFn().Print(executionHeaders, rows, executions)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "Filter by agent ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			exec, err := clientFn().GetExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if trace && exec.Result != nil {
				out.Result(exec.Result)
				return nil
			}
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Show step trace of a finished execution")
	return cmd
}

func newExecutionSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags requestFlags
	var async bool
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Send a flow file to the API server for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			client := clientFn()

			req, err := flags.load(cmd, args[0])
			if err != nil {
				return err
			}

			if !async {
				exec, err := client.Execute(cmd.Context(), req)
				if err != nil {
					return err
				}
				printWarnings(out, exec.Warnings)
				out.Success(fmt.Sprintf("Execution %s: %s", exec.ID, exec.Status))
				out.Result(exec.Result)
				return nil
			}

			exec, created, err := client.Submit(cmd.Context(), req, idempotencyKey)
			if err != nil {
				return err
			}
			printWarnings(out, exec.Warnings)
			if created {
				out.Success(fmt.Sprintf("Execution queued: %s", exec.ID))
			} else {
				out.Success(fmt.Sprintf("Execution already exists for key %q: %s", idempotencyKey, exec.ID))
			}
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&async, "async", false, "Queue the execution and return immediately")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key for --async")

	return cmd
}

func printWarnings(out *Output, warnings []FlowWarning) {
	for _, w := range warnings {
		if w.StepID != "" {
			out.Warning(fmt.Sprintf("step %s: %s", w.StepID, w.Message))
			continue
		}
		out.Warning(w.Message)
	}
}
