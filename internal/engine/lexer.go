package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenKind — вид лексемы выражения.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokBool
	tokNull
	tokIdent
	tokOp
	tokNot
	tokDot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokBool:
		return "boolean"
	case tokNull:
		return "null"
	case tokIdent:
		return "identifier"
	case tokOp:
		return "operator"
	case tokNot:
		return "'!'"
	case tokDot:
		return "'.'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "token"
	}
}

// token — лексема с позицией в исходной строке.
type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

// twoCharOps — двухсимвольные операторы. Проверяются раньше односимвольных.
var twoCharOps = []string{"==", "!=", ">=", "<=", "&&", "||"}

// tokenize разбивает выражение на лексемы.
//
// Поддерживаются строки в одинарных и двойных кавычках с экранированием
// обратным слэшем, числа со знаком, true/false, null/undefined,
// идентификаторы с дефисами (kebab-case ID шагов), операторы сравнения
// и логики, '!', '.', скобки.
func tokenize(src string) ([]token, error) {
	tokens := make([]token, 0, 8)
	i := 0

	for i < len(src) {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '"' || c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: src[i:next], value: s, pos: i})
			i = next

		case isDigit(c) || (c == '-' && i+1 < len(src) && isDigit(src[i+1]) && !prevIsValue(tokens)):
			next := lexNumber(src, i)
			n, err := strconv.ParseFloat(src[i:next], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q at %d", ErrExpressionSyntax, src[i:next], i)
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[i:next], value: n, pos: i})
			i = next

		case isIdentStart(c):
			next := i + 1
			for next < len(src) && isIdentPart(src[next]) {
				next++
			}
			word := src[i:next]
			tokens = append(tokens, keywordOrIdent(word, i))
			i = next

		case c == '.':
			tokens = append(tokens, token{kind: tokDot, text: ".", pos: i})
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		default:
			if op := matchTwoCharOp(src, i); op != "" {
				tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
				i += 2
				continue
			}
			switch c {
			case '>', '<':
				tokens = append(tokens, token{kind: tokOp, text: string(c), pos: i})
				i++
			case '!':
				tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
				i++
			default:
				return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrExpressionSyntax, c, i)
			}
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

// lexString читает строковый литерал, начинающийся с кавычки в позиции start.
func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var sb strings.Builder

	for i := start + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(src[i])
			}
		case c == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated string at %d", ErrExpressionSyntax, start)
}

// lexNumber возвращает позицию конца числа, начинающегося в start.
// Дробная часть читается только если после точки идёт цифра,
// поэтому "items.0.name" разбирается как цепочка.
func lexNumber(src string, start int) int {
	i := start
	if src[i] == '-' {
		i++
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) && !afterDot(src, start) {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	return i
}

// afterDot сообщает, что число стоит сразу после '.', то есть является
// индексом в цепочке, и не должно поглощать следующую точку.
func afterDot(src string, start int) bool {
	return start > 0 && src[start-1] == '.'
}

// prevIsValue сообщает, что предыдущая лексема — значение.
// В этом случае '-' не может быть знаком числа.
func prevIsValue(tokens []token) bool {
	if len(tokens) == 0 {
		return false
	}
	switch tokens[len(tokens)-1].kind {
	case tokString, tokNumber, tokBool, tokNull, tokIdent, tokRParen:
		return true
	default:
		return false
	}
}

func keywordOrIdent(word string, pos int) token {
	switch word {
	case "true":
		return token{kind: tokBool, text: word, value: true, pos: pos}
	case "false":
		return token{kind: tokBool, text: word, value: false, pos: pos}
	case "null", "undefined":
		return token{kind: tokNull, text: word, pos: pos}
	default:
		return token{kind: tokIdent, text: word, pos: pos}
	}
}

func matchTwoCharOp(src string, i int) string {
	if i+1 >= len(src) {
		return ""
	}
	pair := src[i : i+2]
	for _, op := range twoCharOps {
		if pair == op {
			return op
		}
	}
	return ""
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}
