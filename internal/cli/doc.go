// Package cli реализует инструмент командной строки AgentFlow.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально: run и validate выполняют flow в текущем процессе
//     с возможностями из окружения (LLM, база знаний, инструменты);
//   - как клиент API: execution list/show/submit обращаются к серверу.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент AgentFlow API на resty. Распаковывает ответы
// {"data": ...} и переводит {"error": ...} в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	exec, err := client.GetExecution(ctx, id)
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения в stderr, поэтому
// работает pipe: agentflow run flow.yaml --json | jq .output
//
// ## Commands
//
//   - run FILE, validate FILE
//   - execution: list, show, submit
//   - schedule: list, next (файл расписаний, без сервера)
//
// Группы создаются фабриками, принимающими замыкания clientFn/outputFn/runnerFn:
// объекты строятся лениво, после парсинга PersistentFlags.
package cli
