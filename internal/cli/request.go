package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/flowfile"
)

// requestFlags — флаги, переопределяющие поля запроса из файла.
type requestFlags struct {
	content  string
	agentID  string
	trigger  string
	meta     []string
	maxSteps int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.content, "content", "", "Trigger content (overrides file)")
	cmd.Flags().StringVar(&f.agentID, "agent-id", "", "Agent ID (overrides file)")
	cmd.Flags().StringVar(&f.trigger, "trigger", "", "Trigger type: manual, message_received, scheduled, webhook")
	cmd.Flags().StringSliceVar(&f.meta, "meta", nil, "Context metadata as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Iteration limit (overrides file)")
}

// load читает запрос из файла и применяет флаги.
func (f *requestFlags) load(cmd *cobra.Command, path string) (*domain.ExecuteRequest, error) {
	req, err := flowfile.LoadRequest(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("content") {
		req.Trigger.Content = f.content
	}
	if f.agentID != "" {
		req.AgentID = f.agentID
	}
	if f.trigger != "" {
		t := domain.TriggerType(f.trigger)
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown trigger type %q", f.trigger)
		}
		req.Trigger.Type = t
	}
	if f.maxSteps > 0 {
		req.MaxSteps = f.maxSteps
	}

	if len(f.meta) > 0 {
		if req.Meta == nil {
			req.Meta = make(map[string]any, len(f.meta))
		}
		for _, kv := range f.meta {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid meta format %q, expected KEY=VALUE", kv)
			}
			req.Meta[key] = value
		}
	}
	return req, nil
}
