package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// Значения по умолчанию.
const (
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultProviderName = "openai"
	defaultTimeout      = 60 * time.Second
	defaultMaxRetries   = 2
)

// Ошибки клиента.
var (
	// ErrNoProviders — не настроен ни один провайдер.
	ErrNoProviders = errors.New("no llm providers configured")

	// ErrEmptyResponse — провайдер вернул ответ без choices.
	ErrEmptyResponse = errors.New("llm response has no choices")

	// ErrProviderStatus — провайдер вернул HTTP статус >= 400.
	ErrProviderStatus = errors.New("llm provider returned error status")
)

// Provider — OpenAI-совместимый endpoint chat completions.
type Provider struct {
	// Name — имя для ProviderOrder и префикса модели ("openai/gpt-4o-mini").
	Name    string `yaml:"name"`
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

// Config — конфигурация клиента.
type Config struct {
	Providers  []Provider
	Timeout    time.Duration // default: 60s
	MaxRetries int           // повторы на сетевых ошибках (default: 2, <0 — без повторов)
	Logger     *slog.Logger
}

// ConfigFromEnv читает одного провайдера из LLM_BASE_URL, LLM_API_KEY, LLM_PROVIDER.
func ConfigFromEnv() Config {
	name := os.Getenv("LLM_PROVIDER")
	if name == "" {
		name = defaultProviderName
	}
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return Config{
		Providers: []Provider{{
			Name:    name,
			BaseURL: baseURL,
			APIKey:  os.Getenv("LLM_API_KEY"),
		}},
	}
}

// Client вызывает модели через OpenAI-совместимый API.
//
// Провайдеры перебираются по порядку: сначала указанные в
// LLMRequest.ProviderOrder, затем остальные. Ошибка одного провайдера
// переводит запрос на следующего.
type Client struct {
	providers []Provider
	http      *resty.Client
	logger    *slog.Logger
}

// NewClient создаёт клиент.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	providers := make([]Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("provider %q: base url is required", p.Name)
		}
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		if p.Name == "" {
			p.Name = defaultProviderName
		}
		providers = append(providers, p)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	if retries < 0 {
		retries = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		providers: providers,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(200*time.Millisecond).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CallLLM вызывает модель.
func (c *Client) CallLLM(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error) {
	var errs []error
	for _, p := range c.ordered(req.ProviderOrder) {
		resp, err := c.call(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("llm provider failed", "provider", p.Name, "model", req.Model, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return nil, errors.Join(errs...)
}

func (c *Client) call(ctx context.Context, p Provider, req domain.LLMRequest) (*domain.LLMResponse, error) {
	body := chatRequest{
		Model:       modelFor(p, req.Model),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if req.ResponseFormat == "json" {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	r := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&chatResponse{}).
		SetError(&apiError{})
	if p.APIKey != "" {
		r.SetAuthToken(p.APIKey)
	}

	resp, err := r.Post(p.BaseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, fmt.Errorf("%w %d: %s", ErrProviderStatus, resp.StatusCode(), msg)
	}

	decoded, ok := resp.Result().(*chatResponse)
	if !ok || len(decoded.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	model := decoded.Model
	if model == "" {
		model = body.Model
	}

	return &domain.LLMResponse{
		Content:  decoded.Choices[0].Message.Content,
		Model:    model,
		Provider: p.Name,
		Usage: domain.TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}

// ordered возвращает провайдеров в порядке order, затем остальных.
func (c *Client) ordered(order []string) []Provider {
	if len(order) == 0 {
		return c.providers
	}

	out := make([]Provider, 0, len(c.providers))
	used := make(map[int]bool, len(c.providers))
	for _, name := range order {
		for i, p := range c.providers {
			if !used[i] && strings.EqualFold(p.Name, name) {
				out = append(out, p)
				used[i] = true
			}
		}
	}
	for i, p := range c.providers {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}

// modelFor снимает префикс провайдера: "openai/gpt-4o-mini" для провайдера
// openai превращается в "gpt-4o-mini". Чужие префиксы сохраняются (роутеры
// вроде OpenRouter принимают их как есть).
func modelFor(p Provider, model string) string {
	prefix, name, ok := strings.Cut(model, "/")
	if ok && strings.EqualFold(prefix, p.Name) {
		return name
	}
	return model
}
