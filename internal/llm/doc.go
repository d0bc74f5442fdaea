// Package llm реализует возможность "вызвать языковую модель" поверх
// OpenAI-совместимого chat completions API.
//
// Client удовлетворяет steps.LLMCaller и перебирает провайдеров в порядке
// ProviderOrder запроса.
package llm
