package domain

// AgentScopes — ограничения, действующие на одно выполнение flow.
//
// Пустые списки означают "разрешено всё", нулевые лимиты — "без ограничений".
type AgentScopes struct {
	// AllowedModels — whitelist моделей. Пустой список разрешает любую модель.
	AllowedModels []string `json:"allowedModels,omitempty" yaml:"allowedModels,omitempty"`

	// MaxTotalTokens — потолок суммарного расхода токенов. 0 — без лимита.
	MaxTotalTokens int `json:"maxTotalTokens,omitempty" yaml:"maxTotalTokens,omitempty"`

	// MaxExecutionTimeMs — потолок wall-clock времени выполнения. 0 — без лимита.
	MaxExecutionTimeMs int64 `json:"maxExecutionTimeMs,omitempty" yaml:"maxExecutionTimeMs,omitempty"`

	// AllowedTools — whitelist инструментов. Пустой список разрешает любой инструмент.
	AllowedTools []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`

	// CanCreateSubAgents — разрешено ли создавать под-агентов.
	CanCreateSubAgents bool `json:"canCreateSubAgents,omitempty" yaml:"canCreateSubAgents,omitempty"`
}
