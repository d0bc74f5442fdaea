package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/flowfile"
)

// ErrFlowFailed — локальное выполнение завершилось неуспешно.
// Команда возвращает его, чтобы код выхода был ненулевым.
var ErrFlowFailed = errors.New("flow execution failed")

// Runner выполняет и проверяет flow локально (orchestrator.Orchestrator).
type Runner interface {
	Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)
	Validate(flow *domain.AgentFlow) ([]engine.Warning, error)
}

// NewRunCmd создаёт команду локального выполнения flow.
// runnerFn вызывается после парсинга флагов: сборка возможностей читает окружение.
//
// Находки статической проверки печатаются как предупреждения, а flow
// выполняется: неизвестные шаги и ошибочные условия обрабатывает движок.
// С --strict ошибка проверки останавливает команду до выполнения.
func NewRunCmd(runnerFn func(ctx context.Context) (Runner, error), outputFn func() *Output) *cobra.Command {
	var flags requestFlags
	var strict bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a flow file locally",
		Long: `Execute a flow file in this process using capabilities configured from the
environment (LLM_BASE_URL, LLM_API_KEY, KNOWLEDGE_PATH, TOOLS_FILE).

FILE is YAML or JSON: either a full execute request with a "flow" key
or a bare flow with a "steps" key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			req, err := flags.load(cmd, args[0])
			if err != nil {
				return err
			}

			runner, err := runnerFn(cmd.Context())
			if err != nil {
				return err
			}

			warnings, err := runner.Validate(&req.Flow)
			if err != nil {
				if strict {
					return err
				}
				out.Warning(err.Error())
			}
			for _, w := range warnings {
				out.Warning(w.String())
			}

			result, err := runner.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}

			out.Result(result)
			if !result.Success {
				return ErrFlowFailed
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "Refuse to run a flow that fails validation")
	return cmd
}

// NewValidateCmd создаёт команду статической проверки flow.
// С --remote проверка выполняется на сервере API.
func NewValidateCmd(runnerFn func(ctx context.Context) (Runner, error), clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a flow file without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			flow, err := flowfile.LoadFlow(args[0])
			if err != nil {
				return err
			}

			var resp ValidateFlowResponse
			if remote {
				r, err := clientFn().ValidateFlow(cmd.Context(), flow)
				if err != nil {
					return err
				}
				resp = *r
			} else {
				runner, err := runnerFn(cmd.Context())
				if err != nil {
					return err
				}
				resp = localValidation(runner, flow)
			}

			rows := make([][]string, len(resp.Warnings))
			for i, w := range resp.Warnings {
				rows[i] = []string{w.StepID, w.Message}
			}
			out.Print([]string{"STEP", "WARNING"}, rows, resp)

			if !resp.Valid {
				return fmt.Errorf("invalid flow: %s", resp.Error)
			}
			out.Success(fmt.Sprintf("Flow is valid (%d steps)", len(flow.Steps)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Validate on the API server")
	return cmd
}

func localValidation(runner Runner, flow *domain.AgentFlow) ValidateFlowResponse {
	warnings, err := runner.Validate(flow)
	resp := ValidateFlowResponse{Valid: err == nil}
	if err != nil {
		resp.Error = err.Error()
		var ve *engine.ValidationError
		if errors.As(err, &ve) {
			resp.StepID = ve.StepID
		}
	}
	for _, w := range warnings {
		resp.Warnings = append(resp.Warnings, FlowWarning{StepID: w.StepID, Message: w.Message})
	}
	return resp
}
