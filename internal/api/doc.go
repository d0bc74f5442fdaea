// Package api — HTTP API запуска агентских flow.
//
// Маршруты:
//
//	POST /api/v1/executions        — синхронное выполнение, ответ содержит результат
//	POST /api/v1/executions/async  — сохранить и поставить в очередь (202)
//	GET  /api/v1/executions        — история выполнений
//	GET  /api/v1/executions/{id}   — выполнение с трассировкой шагов
//	POST /api/v1/flows/validate    — статическая проверка flow
//
// Запуски не отклоняют flow с ошибками статической проверки: находки
// приходят в warnings, а поведение определяет движок. ?strict=true
// возвращает вместо этого 422 INVALID_FLOW.
//
// Ответы имеют вид {"data": ...} или {"error": {"code", "message"}}.
package api
