// Package worker выполняет flow, поставленные в очередь через API или
// scheduler.
//
// Обработка выполнения:
//
//  1. ID приходит из executions.pending (или находится polling'ом в БД)
//  2. Выполнение загружается и атомарно переводится PENDING → RUNNING
//  3. Flow запускается через Runner (orchestrator)
//  4. Результат с трассировкой сохраняется, статус SUCCEEDED или FAILED
//  5. Публикуется execution.completed
//
// Ошибки шагов не являются ошибками worker: они попадают в результат
// выполнения. Сообщение возвращается в очередь только при сбое БД.
package worker
