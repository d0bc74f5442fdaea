package domain

// Данные, которыми шаги обмениваются с внешними возможностями:
// языковой моделью, базой знаний и инструментами.

// LLMMessage — сообщение диалога.
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest — запрос к языковой модели.
type LLMRequest struct {
	Model          string       `json:"model"`
	SystemPrompt   string       `json:"systemPrompt,omitempty"`
	Messages       []LLMMessage `json:"messages"`
	Temperature    *float64     `json:"temperature,omitempty"`
	MaxTokens      int          `json:"maxTokens,omitempty"`
	ResponseFormat string       `json:"responseFormat,omitempty"`
	AccountID      string       `json:"accountId,omitempty"`
	ProviderOrder  []string     `json:"providerOrder,omitempty"`
}

// LLMResponse — ответ языковой модели.
type LLMResponse struct {
	Content  string     `json:"content"`
	Model    string     `json:"model,omitempty"`
	Provider string     `json:"provider,omitempty"`
	Usage    TokenUsage `json:"usage"`
}

// KnowledgeQuery — запрос поиска в базе знаний.
type KnowledgeQuery struct {
	Query          string   `json:"query"`
	VectorStoreIDs []string `json:"vectorStoreIds,omitempty"`
	TopK           int      `json:"topK"`
	MinScore       float64  `json:"minScore"`
	AccountID      string   `json:"accountId,omitempty"`
}

// KnowledgeChunk — найденный фрагмент.
type KnowledgeChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// KnowledgeResult — результат поиска.
type KnowledgeResult struct {
	Chunks      []KnowledgeChunk `json:"chunks"`
	TotalTokens int              `json:"totalTokens"`
}

// ToolCall — вызов инструмента.
type ToolCall struct {
	ToolName  string         `json:"toolName"`
	Input     map[string]any `json:"input"`
	AccountID string         `json:"accountId,omitempty"`
}

// ToolResult — результат инструмента.
// Непустой Error означает ошибку инструмента.
type ToolResult struct {
	Output any    `json:"output"`
	Error  string `json:"error,omitempty"`
}
