package engine

import (
	"log/slog"
	"regexp"
	"strings"
)

var (
	// placeholderRe находит {{ expr }} внутри строки.
	placeholderRe = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

	// wholeRe проверяет, что строка целиком — один {{ expr }}.
	wholeRe = regexp.MustCompile(`(?s)^\{\{(.*?)\}\}$`)
)

// DiagnosticFunc получает нефатальные ошибки вычисления выражений.
type DiagnosticFunc func(expr string, err error)

// Evaluator вычисляет выражения, условия и шаблоны.
//
// Ошибки вычисления не прерывают выполнение flow: они логируются,
// передаются в DiagnosticFunc (если задан) и превращаются в undefined.
// Нулевой *Evaluator использует slog.Default и не сообщает диагностику.
type Evaluator struct {
	logger *slog.Logger
	onDiag DiagnosticFunc
}

// NewEvaluator создаёт Evaluator.
// logger может быть nil, тогда используется slog.Default().
func NewEvaluator(logger *slog.Logger, onDiag DiagnosticFunc) *Evaluator {
	return &Evaluator{logger: logger, onDiag: onDiag}
}

// WithDiagnostics возвращает копию Evaluator с другим получателем диагностики.
func (e *Evaluator) WithDiagnostics(onDiag DiagnosticFunc) *Evaluator {
	c := &Evaluator{onDiag: onDiag}
	if e != nil {
		c.logger = e.logger
	}
	return c
}

func (e *Evaluator) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Evaluator) report(expr string, err error) {
	e.log().Warn("expression evaluation failed", "expression", expr, "error", err)
	if e != nil && e.onDiag != nil {
		e.onDiag(expr, err)
	}
}

// Evaluate вычисляет выражение и возвращает ошибку разбора.
func (e *Evaluator) Evaluate(expr string, ns Namespace) (any, error) {
	return Evaluate(expr, ns)
}

// EvaluateExpression вычисляет выражение. Никогда не возвращает ошибку:
// при неудаче результат — nil (undefined).
func (e *Evaluator) EvaluateExpression(expr string, ns Namespace) any {
	val, err := Evaluate(expr, ns)
	if err != nil {
		e.report(expr, err)
		return nil
	}
	return val
}

// EvaluateCondition вычисляет условие и приводит результат к bool.
//
// Условие записывается с {{ }} или без. Некорректное условие считается ложным.
func (e *Evaluator) EvaluateCondition(cond string, ns Namespace) bool {
	expr := strings.TrimSpace(cond)
	if m := wholeRe.FindStringSubmatch(expr); m != nil && !strings.Contains(m[1], "}}") {
		expr = m[1]
	} else if strings.Contains(expr, "{{") {
		expr = strings.NewReplacer("{{", " ", "}}", " ").Replace(expr)
	}
	return Truthy(e.EvaluateExpression(strings.TrimSpace(expr), ns))
}

// ResolveTemplate подставляет значения выражений в шаблон.
//
// Если строка (без учёта пробелов по краям) — ровно один {{ expr }},
// возвращается значение выражения с сохранением типа: объект, массив,
// число, bool или nil. Иначе каждое {{ expr }} заменяется строковым
// представлением значения, а null/undefined — пустой строкой.
func (e *Evaluator) ResolveTemplate(tmpl string, ns Namespace) any {
	if expr, ok := wholeExpression(tmpl); ok {
		return e.EvaluateExpression(expr, ns)
	}
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		return Stringify(e.EvaluateExpression(expr, ns))
	})
}

// ResolveString подставляет значения и всегда возвращает строку.
func (e *Evaluator) ResolveString(tmpl string, ns Namespace) string {
	return Stringify(e.ResolveTemplate(tmpl, ns))
}

// wholeExpression возвращает выражение, если шаблон — ровно один {{ expr }}.
func wholeExpression(tmpl string) (string, bool) {
	m := wholeRe.FindStringSubmatch(strings.TrimSpace(tmpl))
	if m == nil || strings.Contains(m[1], "}}") || strings.Contains(m[1], "{{") {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// IsTemplate сообщает, содержит ли строка хотя бы один {{ expr }}.
func IsTemplate(s string) bool {
	return placeholderRe.MatchString(s)
}

// defaultEvaluator используется функциями уровня пакета.
var defaultEvaluator = &Evaluator{}

// EvaluateExpression вычисляет выражение стандартным Evaluator.
func EvaluateExpression(expr string, ns Namespace) any {
	return defaultEvaluator.EvaluateExpression(expr, ns)
}

// EvaluateCondition вычисляет условие стандартным Evaluator.
func EvaluateCondition(cond string, ns Namespace) bool {
	return defaultEvaluator.EvaluateCondition(cond, ns)
}

// ResolveTemplate подставляет значения стандартным Evaluator.
func ResolveTemplate(tmpl string, ns Namespace) any {
	return defaultEvaluator.ResolveTemplate(tmpl, ns)
}
