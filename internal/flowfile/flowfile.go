package flowfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// ErrInvalidFile — файл не удалось разобрать.
var ErrInvalidFile = errors.New("invalid flow file")

// Format — формат файла.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatOf определяет формат по расширению. Всё, кроме .json, читается как YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// LoadRequest читает запрос на выполнение из файла.
//
// Файл может содержать полный ExecuteRequest (ключ flow) или только flow
// (ключ steps). Во втором случае scopes пусты, а trigger — manual.
func LoadRequest(path string) (*domain.ExecuteRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	req, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if req.FlowName == "" {
		req.FlowName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return req, nil
}

// LoadFlow читает из файла только flow.
func LoadFlow(path string) (*domain.AgentFlow, error) {
	req, err := LoadRequest(path)
	if err != nil {
		return nil, err
	}
	return &req.Flow, nil
}

// Parse разбирает запрос на выполнение. Неизвестные поля считаются ошибкой.
func Parse(data []byte, format Format) (*domain.ExecuteRequest, error) {
	var probe map[string]any
	if err := unmarshal(data, format, &probe, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidFile)
	}

	req := &domain.ExecuteRequest{}
	_, hasFlow := probe["flow"]
	_, hasSteps := probe["steps"]

	switch {
	case hasFlow:
		if err := unmarshal(data, format, req, true); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	case hasSteps:
		if err := unmarshal(data, format, &req.Flow, true); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected \"flow\" or \"steps\" at top level", ErrInvalidFile)
	}

	if req.Trigger.Type == "" {
		req.Trigger.Type = domain.TriggerManual
	}
	if !req.Trigger.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidFile, req.Trigger.Type)
	}

	return req, nil
}

func unmarshal(data []byte, format Format, v any, strict bool) error {
	if format == FormatJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		if strict {
			dec.DisallowUnknownFields()
		}
		return dec.Decode(v)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(strict)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal сериализует запрос в указанном формате.
func Marshal(req *domain.ExecuteRequest, format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(req, "", "  ")
	}
	return yaml.Marshal(req)
}
