package engine

import (
	"fmt"
	"strconv"
)

// parser — рекурсивный спуск по лексемам с немедленным вычислением.
//
// Грамматика (приоритет снизу вверх):
//
//	or         := and ("||" and)*
//	and        := comparison ("&&" comparison)*
//	comparison := unary (("=="|"!="|">="|"<="|">"|"<") unary)*
//	unary      := "!" unary | primary
//	primary    := literal | chain | "(" or ")"
//	chain      := ident ("." (ident | integer))*
//
// Арифметики нет: язык предназначен для шаблонов и ветвления.
type parser struct {
	tokens []token
	pos    int
	ns     Namespace
}

// Evaluate разбирает и вычисляет выражение.
// В отличие от EvaluateExpression возвращает ошибку разбора.
func Evaluate(expr string, ns Namespace) (any, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 {
		return nil, fmt.Errorf("%w: empty expression", ErrExpressionSyntax)
	}

	p := &parser{tokens: tokens, ns: ns}
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return val, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of expression", ErrExpressionSyntax)
	}
	return fmt.Errorf("%w: unexpected %s %q at %d", ErrExpressionSyntax, tok.kind, tok.text, tok.pos)
}

// parseOr возвращает первый истинный операнд или последний операнд.
func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("||"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			left = right
		}
	}
}

// parseAnd возвращает первый ложный операнд или последний операнд.
func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("&&"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			left = right
		}
	}
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("==", "!=", ">=", "<=", ">", "<")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		switch op {
		case "==":
			left = LooseEqual(left, right)
		case "!=":
			left = !LooseEqual(left, right)
		default:
			left = compare(op, left, right)
		}
	}
}

func (p *parser) parseUnary() (any, error) {
	if p.peek().kind == tokNot {
		p.next()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !Truthy(val), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, error) {
	tok := p.next()
	switch tok.kind {
	case tokString, tokNumber, tokBool:
		return tok.value, nil
	case tokNull:
		return nil, nil
	case tokIdent:
		return p.parseChain(tok.text)
	case tokLParen:
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing)
		}
		return val, nil
	default:
		return nil, p.unexpected(tok)
	}
}

// parseChain собирает ident(.ident)* и разрешает цепочку в пространстве имён.
func (p *parser) parseChain(root string) (any, error) {
	var path []string
	for p.peek().kind == tokDot {
		p.next()
		seg := p.next()
		switch seg.kind {
		case tokIdent:
			path = append(path, seg.text)
		case tokBool, tokNull:
			// true/false/null как имя поля: obj.null
			path = append(path, seg.text)
		case tokNumber:
			n, ok := seg.value.(float64)
			if !ok || n < 0 || n != float64(int(n)) {
				return nil, p.unexpected(seg)
			}
			path = append(path, strconv.Itoa(int(n)))
		default:
			return nil, p.unexpected(seg)
		}
	}
	return resolveChain(p.ns, root, path), nil
}
