package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ExecutionResponse — выполнение из API.
type ExecutionResponse struct {
	ID             string                      `json:"id"`
	AgentID        string                      `json:"agentId,omitempty"`
	FlowName       string                      `json:"flowName,omitempty"`
	Status         string                      `json:"status"`
	Result         *domain.FlowExecutionResult `json:"result,omitempty"`
	Error          string                      `json:"error,omitempty"`
	IdempotencyKey string                      `json:"idempotencyKey,omitempty"`
	StartedAt      *time.Time                  `json:"startedAt,omitempty"`
	FinishedAt     *time.Time                  `json:"finishedAt,omitempty"`
	CreatedAt      time.Time                   `json:"createdAt"`
	Warnings       []FlowWarning               `json:"warnings,omitempty"`
}

// FlowWarning — замечание проверки flow.
type FlowWarning struct {
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

// ValidateFlowResponse — результат проверки flow.
type ValidateFlowResponse struct {
	Valid    bool          `json:"valid"`
	Error    string        `json:"error,omitempty"`
	StepID   string        `json:"stepId,omitempty"`
	Warnings []FlowWarning `json:"warnings"`
}

// ListExecutionsOpts — параметры фильтрации выполнений.
type ListExecutionsOpts struct {
	AgentID string
	Status  string
	Limit   int
	Offset  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		StepID  string `json:"stepId,omitempty"`
	} `json:"error"`
}

// APIError — ответ API с кодом >= 400.
type APIError struct {
	Status  int
	Code    string
	Message string
	StepID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step %s)", e.Code, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент AgentFlow API.
type Client struct {
	http *resty.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5*time.Minute).
			SetHeader("Accept", "application/json"),
	}
}

// Execute выполняет flow синхронно.
func (c *Client) Execute(ctx context.Context, req *domain.ExecuteRequest) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	_, err := c.data(c.http.R().SetContext(ctx).SetBody(req), http.MethodPost, "/api/v1/executions", &exec)
	return &exec, err
}

// Submit ставит выполнение в очередь. created=false, если ключ
// идемпотентности уже использовался и вернулось существующее выполнение.
func (c *Client) Submit(ctx context.Context, req *domain.ExecuteRequest, idempotencyKey string) (exec *ExecutionResponse, created bool, err error) {
	r := c.http.R().SetContext(ctx).SetBody(req)
	if idempotencyKey != "" {
		r.SetHeader("Idempotency-Key", idempotencyKey)
	}

	exec = &ExecutionResponse{}
	status, err := c.data(r, http.MethodPost, "/api/v1/executions/async", exec)
	return exec, status == http.StatusAccepted, err
}

// ListExecutions возвращает выполнения с фильтрацией.
func (c *Client) ListExecutions(ctx context.Context, opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	r := c.http.R().SetContext(ctx)
	if opts.AgentID != "" {
		r.SetQueryParam("agent_id", opts.AgentID)
	}
	if opts.Status != "" {
		r.SetQueryParam("status", opts.Status)
	}
	if opts.Limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		r.SetQueryParam("offset", strconv.Itoa(opts.Offset))
	}

	var lr listResponse
	resp, err := r.SetResult(&lr).SetError(&errorResponse{}).Get("/api/v1/executions")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	var executions []ExecutionResponse
	if err := json.Unmarshal(lr.Data, &executions); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return executions, nil
}

// GetExecution возвращает выполнение по ID.
func (c *Client) GetExecution(ctx context.Context, id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	_, err := c.data(c.http.R().SetContext(ctx).SetPathParam("id", id), http.MethodGet, "/api/v1/executions/{id}", &exec)
	return &exec, err
}

// ValidateFlow проверяет flow на сервере.
func (c *Client) ValidateFlow(ctx context.Context, flow *domain.AgentFlow) (*ValidateFlowResponse, error) {
	var resp ValidateFlowResponse
	_, err := c.data(c.http.R().SetContext(ctx).SetBody(flow), http.MethodPost, "/api/v1/flows/validate", &resp)
	return &resp, err
}

// --- HTTP helpers ---

// data выполняет запрос и распаковывает {"data": ...} в result.
func (c *Client) data(r *resty.Request, method, path string, result any) (int, error) {
	var dr dataResponse
	resp, err := r.SetResult(&dr).SetError(&errorResponse{}).Execute(method, path)
	if err := checkResponse(resp, err); err != nil {
		return statusOf(resp), err
	}

	if result != nil && len(dr.Data) > 0 {
		if err := json.Unmarshal(dr.Data, result); err != nil {
			return resp.StatusCode(), fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode(), nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if er, ok := resp.Error().(*errorResponse); ok && er != nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.StepID = er.Error.StepID
	}
	return apiErr
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}
