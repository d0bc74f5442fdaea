package domain

// ExecuteRequest — запрос на выполнение flow.
//
// Общий конверт для API, очереди, CLI и планировщика: содержит всё,
// что нужно движку, так как flow и scopes хранятся во внешнем реестре агентов.
type ExecuteRequest struct {
	AgentID       string      `json:"agentId,omitempty" yaml:"agentId,omitempty"`
	FlowName      string      `json:"flowName,omitempty" yaml:"flowName,omitempty"`
	Flow          AgentFlow   `json:"flow" yaml:"flow"`
	Scopes        AgentScopes `json:"scopes" yaml:"scopes"`
	Trigger       TriggerData `json:"trigger" yaml:"trigger"`
	AccountID     string      `json:"accountId,omitempty" yaml:"accountId,omitempty"`
	ProviderOrder []string    `json:"providerOrder,omitempty" yaml:"providerOrder,omitempty"`

	// AbortOnError — прерывать ли выполнение на первой ошибке шага.
	// Nil означает значение по умолчанию (true).
	AbortOnError *bool `json:"abortOnError,omitempty" yaml:"abortOnError,omitempty"`

	// MaxSteps — предел числа итераций. 0 означает значение по умолчанию (50).
	MaxSteps int `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`

	// Meta — глобальные метаданные, доступные в выражениях как context.*.
	Meta map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// ShouldAbortOnError возвращает итоговое значение политики abortOnError.
func (r *ExecuteRequest) ShouldAbortOnError() bool {
	if r.AbortOnError == nil {
		return true
	}
	return *r.AbortOnError
}
