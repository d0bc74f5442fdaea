package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"
)

const defaultWebhookTimeout = 30 * time.Second

// Webhook — инструмент, выполняемый HTTP запросом.
//
// POST/PUT/PATCH отправляют вход как JSON тело, GET и DELETE — как
// query параметры. JSON ответ декодируется, иначе возвращается строка.
// В значениях заголовков раскрываются переменные окружения ("Bearer ${CRM_TOKEN}").
type Webhook struct {
	Name       string            `yaml:"name" json:"name"`
	URL        string            `yaml:"url" json:"url"`
	Method     string            `yaml:"method" json:"method"`
	Headers    map[string]string `yaml:"headers" json:"headers"`
	TimeoutSec int               `yaml:"timeoutSec" json:"timeoutSec"`
}

// File — файл описания инструментов (TOOLS_FILE).
//
//	tools:
//	  - name: lookup_order
//	    url: https://crm.example.com/orders/lookup
//	    method: POST
//	    headers:
//	      Authorization: Bearer ${CRM_TOKEN}
type File struct {
	Tools []Webhook `yaml:"tools"`
}

// RegisterWebhook регистрирует webhook инструмент.
func (c *Catalog) RegisterWebhook(w Webhook) error {
	if w.Name == "" || w.URL == "" {
		return fmt.Errorf("%w: webhook requires name and url", ErrInvalidTool)
	}

	method := strings.ToUpper(w.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := defaultWebhookTimeout
	if w.TimeoutSec > 0 {
		timeout = time.Duration(w.TimeoutSec) * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	for k, v := range w.Headers {
		client.SetHeader(k, os.ExpandEnv(v))
	}

	return c.Register(w.Name, webhookFunc(client, method, w.URL))
}

func webhookFunc(client *resty.Client, method, url string) Func {
	return func(ctx context.Context, input map[string]any) (any, error) {
		r := client.R().SetContext(ctx)

		switch method {
		case http.MethodGet, http.MethodDelete:
			for k, v := range input {
				r.SetQueryParam(k, fmt.Sprint(v))
			}
		default:
			r.SetBody(input)
		}

		resp, err := r.Execute(method, url)
		if err != nil {
			return nil, fmt.Errorf("webhook request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		}

		body := resp.Body()
		if len(body) == 0 {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return string(body), nil
		}
		return decoded, nil
	}
}

// LoadFile читает YAML файл инструментов и регистрирует webhooks.
// Возвращает число зарегистрированных инструментов.
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read tools file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse tools file: %w", err)
	}

	for _, w := range f.Tools {
		if err := c.RegisterWebhook(w); err != nil {
			return 0, fmt.Errorf("tool %q: %w", w.Name, err)
		}
	}

	c.logger.Info("tools loaded", "path", path, "count", len(f.Tools))
	return len(f.Tools), nil
}
