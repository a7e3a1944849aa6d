/*
parser.go - Tokenizer and recursive-descent parser for the formula grammar

The parser does not evaluate anything; it only lowers the documented infix
grammar into a JSONLogic rule tree (maps and slices mirroring the rule
JSON). Evaluation happens in formula.go through the jsonlogic library.
*/
package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// TOKENIZER
// =============================================================================

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp     // == != > >= < <=
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	runes := []rune(source)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++

		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : j])})
			i = j + 1

		case c == '=' || c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			i++
			switch op {
			case "==", "!=", ">", ">=", "<", "<=":
				tokens = append(tokens, token{tokOp, op})
			default:
				return nil, fmt.Errorf("invalid operator %q", op)
			}

		case unicode.IsDigit(c) || c == '-' || c == '.':
			j := i
			if runes[j] == '-' {
				j++
			}
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			text := string(runes[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("invalid number %q", text)
			}
			tokens = append(tokens, token{tokNumber, text})
			i = j

		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{tokAnd, word})
			case "or":
				tokens = append(tokens, token{tokOr, word})
			case "not":
				tokens = append(tokens, token{tokNot, word})
			default:
				tokens = append(tokens, token{tokIdent, word})
			}
			i = j

		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens, nil
}

// =============================================================================
// PARSER - Lowers tokens to a JSONLogic rule tree
// =============================================================================

type parser struct {
	tokens  []token
	pos     int
	columns map[string]bool
}

func (p *parser) peek() token { return p.tokens[p.pos] }
func (p *parser) next() token { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) atEnd() bool { return p.peek().kind == tokEOF }

func (p *parser) parseExpr() (interface{}, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (interface{}, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []interface{}{left}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return map[string]interface{}{"or": terms}, nil
}

func (p *parser) parseAnd() (interface{}, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []interface{}{left}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return map[string]interface{}{"and": terms}, nil
}

func (p *parser) parseUnary() (interface{}, error) {
	switch p.peek().kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"!": []interface{}{inner}}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil

	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (interface{}, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator, got %q", p.peek().text)
	}
	op := p.next().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{op: []interface{}{left, right}}, nil
}

func (p *parser) parseOperand() (interface{}, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if !p.columns[t.text] {
			return nil, fmt.Errorf("unknown column %q", t.text)
		}
		return map[string]interface{}{"var": t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return f, nil
	case tokString:
		return t.text, nil
	default:
		return nil, fmt.Errorf("expected column, number or string, got %q", t.text)
	}
}
