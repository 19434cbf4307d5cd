package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToolCalculator is the calculator tool name.
const ToolCalculator = "calculator"

// CalculatorTool evaluates arithmetic expressions. Roles use it for weighted
// rubric averages and quick statistics instead of doing mental arithmetic.
type CalculatorTool struct{}

// NewCalculatorTool creates a calculator tool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

// Definition implements Tool.
func (t *CalculatorTool) Definition() Definition {
	return Definition{
		Name:        ToolCalculator,
		Description: "Calculate mathematical expressions, statistics, or weighted averages. Supports + - * / ^ ( ) and sqrt()",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"expression": {Type: "string", Description: "Arithmetic expression, e.g. (2.5*0.4 + 3*0.6) / 1.0"},
			},
			Required: []string{"expression"},
		},
	}
}

// Exec implements Tool.
func (t *CalculatorTool) Exec(_ context.Context, args map[string]any) string {
	expression, ok := StringArg(args, "expression")
	if !ok {
		return Errorf("expression is required")
	}

	value, err := evaluate(expression)
	if err != nil {
		return Errorf("cannot evaluate %q: %v", expression, err)
	}
	return fmt.Sprintf("%s = %g", strings.TrimSpace(expression), value)
}

// evaluate parses and computes an arithmetic expression with a small
// recursive-descent parser. Grammar, lowest precedence first:
//
//	expr   := term (('+'|'-') term)*
//	term   := factor (('*'|'/') factor)*
//	factor := unary ('^' factor)?
//	unary  := '-' unary | primary
//	primary := number | '(' expr ')' | 'sqrt' '(' expr ')'
func evaluate(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	value, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		// Right-associative.
		exponent, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return math.Pow(value, exponent), nil
	}
	return value, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if strings.HasPrefix(p.input[p.pos:], "sqrt") {
		p.pos += len("sqrt")
		if p.peek() != '(' {
			return 0, fmt.Errorf("sqrt requires parentheses")
		}
		value, err := p.parseParen()
		if err != nil {
			return 0, err
		}
		if value < 0 {
			return 0, fmt.Errorf("sqrt of negative number")
		}
		return math.Sqrt(value), nil
	}

	if p.input[p.pos] == '(' {
		return p.parseParen()
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", p.pos)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) parseParen() (float64, error) {
	// Caller ensured '(' is next.
	p.skipSpace()
	p.pos++
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.peek() != ')' {
		return 0, fmt.Errorf("missing closing parenthesis")
	}
	p.pos++
	return value, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
