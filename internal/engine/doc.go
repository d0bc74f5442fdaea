// Package engine содержит язык выражений и статическую проверку flow.
//
// Включает:
//   - lexer.go     — разбиение выражения на лексемы
//   - expr.go      — рекурсивный спуск: ||, &&, сравнения, !, цепочки step-id.field
//   - values.go    — истинность, нестрогое равенство, строковое представление
//   - namespace.go — пространство имён для разрешения цепочек
//   - template.go  — шаблоны {{ expr }}, условия, Evaluator с диагностикой
//   - graph.go     — граф переходов flow (next, router targets)
//   - validate.go  — валидация AgentFlow
//
// Выражения не вычисляют арифметику: язык нужен для подстановки
// значений и ветвления, а не для вычислений.
package engine
