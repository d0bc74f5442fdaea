package domain

import "encoding/json"

// TriggerType — источник, запустивший выполнение.
type TriggerType string

const (
	// TriggerMessageReceived — входящее сообщение.
	TriggerMessageReceived TriggerType = "message_received"

	// TriggerManual — ручной запуск через API или CLI.
	TriggerManual TriggerType = "manual"

	// TriggerScheduled — запуск по расписанию.
	TriggerScheduled TriggerType = "scheduled"

	// TriggerWebhook — внешний webhook.
	TriggerWebhook TriggerType = "webhook"
)

// IsValid проверяет, что тип триггера известен.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerMessageReceived, TriggerManual, TriggerScheduled, TriggerWebhook:
		return true
	default:
		return false
	}
}

// TriggerData — данные события, запустившего flow.
//
// В выражениях доступны как trigger.content, trigger.messageId и т.д.
type TriggerData struct {
	Type               TriggerType    `json:"type" yaml:"type"`
	Content            string         `json:"content,omitempty" yaml:"content,omitempty"`
	MessageID          string         `json:"messageId,omitempty" yaml:"messageId,omitempty"`
	ConversationID     string         `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	SenderAccountID    string         `json:"senderAccountId,omitempty" yaml:"senderAccountId,omitempty"`
	RecipientAccountID string         `json:"recipientAccountId,omitempty" yaml:"recipientAccountId,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToMap возвращает представление триггера для пространства имён выражений.
//
// Пустые поля не включаются: обращение к ним даёт undefined.
// Metadata копируется глубоко, так что изменения результата не влияют на триггер.
func (t TriggerData) ToMap() map[string]any {
	m := map[string]any{
		"type": string(t.Type),
	}
	set := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	set("content", t.Content)
	set("messageId", t.MessageID)
	set("conversationId", t.ConversationID)
	set("senderAccountId", t.SenderAccountID)
	set("recipientAccountId", t.RecipientAccountID)
	if t.Metadata != nil {
		m["metadata"] = CloneValue(t.Metadata)
	}
	return m
}

// Clone возвращает глубокую копию триггера.
func (t TriggerData) Clone() TriggerData {
	c := t
	if t.Metadata != nil {
		c.Metadata = CloneValue(t.Metadata).(map[string]any)
	}
	return c
}

// CloneValue делает глубокую копию JSON-подобного значения
// (map[string]any, []any, скаляры). Прочие типы копируются через JSON.
func CloneValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case string, bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return val
		}
		return out
	}
}
