// Package steps содержит исполнители типов шагов agent flow.
//
// # Обзор
//
// Исполнитель получает шаг, шину контекста, проверку ограничений и
// внешние возможности (LLM, база знаний, инструменты) и возвращает
// domain.StepResult:
//
//	type Executor interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*domain.StepResult, error)
//	}
//
// Ошибка из Execute и StepResult.Error для движка равнозначны: шаг
// записывается в трассу со статусом error.
//
// # Типы шагов
//
//   - llm (llm.go): вызов модели, inputs склеиваются в сообщение пользователя
//   - rag (rag.go): поиск фрагментов в базе знаний
//   - deterministic (deterministic.go): первое сработавшее правило
//   - tool (tool.go): вызов именованного инструмента
//   - router (router.go): выбор следующей ветки по условиям или моделью
//   - transform (transform.go): extract, merge, format, passthrough
//
// # Registry
//
//	registry := steps.DefaultRegistry()
//	registry.Freeze()
//	exec, err := registry.Get("llm")
//
// Регистрация допустима только до Freeze. Global() — общий реестр
// процесса для RegisterExecutor/GetExecutor.
//
// # Ограничения
//
// Исполнители, использующие модель или инструмент, вызывают
// Request.PreStepCheck. Нарушение whitelist возвращается как
// StepResult.Error с meta.violation, а не как ошибка Go.
package steps
