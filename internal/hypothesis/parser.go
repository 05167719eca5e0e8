package hypothesis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gobayes/domain/core"
)

// Operator is the comparison of a hypothesis
type Operator string

const (
	Greater Operator = ">"
	Less    Operator = "<"
	Equal   Operator = "="
)

// Linear is const + sum(coef * parameter)
type Linear struct {
	Terms map[string]float64
	Const float64
}

func (l Linear) isConstant() bool {
	for _, c := range l.Terms {
		if c != 0 {
			return false
		}
	}
	return true
}

func (l Linear) scale(f float64) Linear {
	out := Linear{Terms: make(map[string]float64, len(l.Terms)), Const: l.Const * f}
	for name, c := range l.Terms {
		out.Terms[name] = c * f
	}
	return out
}

func (l Linear) add(o Linear, sign float64) Linear {
	out := l.scale(1)
	for name, c := range o.Terms {
		out.Terms[name] += sign * c
	}
	out.Const += sign * o.Const
	return out
}

// Names returns the referenced identifiers in sorted order
func (l Linear) Names() []string {
	names := make([]string, 0, len(l.Terms))
	for name, c := range l.Terms {
		if c != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Hypothesis is a parsed "lhs op rhs", stored as (lhs - rhs) op 0
type Hypothesis struct {
	Raw      string
	Operator Operator
	Linear   Linear
}

// Parse parses a linear hypothesis such as "Intercept - age > 0" or
// "2 * a = b + c". Only linear combinations of parameters are allowed.
func Parse(raw string) (*Hypothesis, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, core.NewHypothesisError(raw, err.Error())
	}
	p := &parser{tokens: tokens, raw: raw}

	lhs, err := p.expr()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	if opTok.kind != tokOperator {
		return nil, core.NewHypothesisError(raw, "expected one of <, >, =")
	}
	rhs, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, core.NewHypothesisError(raw, fmt.Sprintf("unexpected %q", t.text))
	}

	h := &Hypothesis{Raw: raw, Operator: Operator(opTok.text), Linear: lhs.add(rhs, -1)}
	if h.Linear.isConstant() {
		return nil, core.NewHypothesisError(raw, "references no parameter")
	}
	return h, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOperator
	tokSymbol
)

type token struct {
	kind  tokenKind
	text  string
	value float64
}

func tokenize(s string) ([]token, error) {
	var out []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '<' || r == '>' || r == '=':
			out = append(out, token{kind: tokOperator, text: string(r)})
			i++
		case strings.ContainsRune("+-*/()", r):
			out = append(out, token{kind: tokSymbol, text: string(r)})
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			if j < len(rs) && (rs[j] == 'e' || rs[j] == 'E') {
				k := j + 1
				if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
					k++
				}
				if k < len(rs) && unicode.IsDigit(rs[k]) {
					j = k
					for j < len(rs) && unicode.IsDigit(rs[j]) {
						j++
					}
				}
			}
			v, err := strconv.ParseFloat(string(rs[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", string(rs[i:j]))
			}
			out = append(out, token{kind: tokNumber, text: string(rs[i:j]), value: v})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.' || rs[j] == ':') {
				j++
			}
			// bracketed indices: b_Intercept[2], r_herd[1,Intercept]
			if j < len(rs) && rs[j] == '[' {
				end := j
				for end < len(rs) && rs[end] != ']' {
					end++
				}
				if end == len(rs) {
					return nil, fmt.Errorf("unclosed [ in %q", string(rs[i:]))
				}
				j = end + 1
			}
			out = append(out, token{kind: tokIdent, text: string(rs[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return append(out, token{kind: tokEOF}), nil
}

type parser struct {
	tokens []token
	pos    int
	raw    string
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isSymbol(s string) bool {
	t := p.peek()
	return t.kind == tokSymbol && t.text == s
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (Linear, error) {
	left, err := p.term()
	if err != nil {
		return Linear{}, err
	}
	for p.isSymbol("+") || p.isSymbol("-") {
		sign := 1.0
		if p.next().text == "-" {
			sign = -1
		}
		right, err := p.term()
		if err != nil {
			return Linear{}, err
		}
		left = left.add(right, sign)
	}
	return left, nil
}

// term := factor (('*' | '/') factor)*
func (p *parser) term() (Linear, error) {
	left, err := p.factor()
	if err != nil {
		return Linear{}, err
	}
	for p.isSymbol("*") || p.isSymbol("/") {
		op := p.next().text
		right, err := p.factor()
		if err != nil {
			return Linear{}, err
		}
		switch {
		case op == "/":
			if !right.isConstant() {
				return Linear{}, core.NewHypothesisError(p.raw, "division by a parameter is not linear")
			}
			if right.Const == 0 {
				return Linear{}, core.NewHypothesisError(p.raw, "division by zero")
			}
			left = left.scale(1 / right.Const)
		case right.isConstant():
			left = left.scale(right.Const)
		case left.isConstant():
			left = right.scale(left.Const)
		default:
			return Linear{}, core.NewHypothesisError(p.raw, "product of parameters is not linear")
		}
	}
	return left, nil
}

// factor := number | ident | '(' expr ')' | '-' factor | '+' factor
func (p *parser) factor() (Linear, error) {
	t := p.next()
	switch {
	case t.kind == tokNumber:
		return Linear{Terms: map[string]float64{}, Const: t.value}, nil
	case t.kind == tokIdent:
		return Linear{Terms: map[string]float64{t.text: 1}}, nil
	case t.kind == tokSymbol && t.text == "(":
		inner, err := p.expr()
		if err != nil {
			return Linear{}, err
		}
		if !p.isSymbol(")") {
			return Linear{}, core.NewHypothesisError(p.raw, "missing )")
		}
		p.next()
		return inner, nil
	case t.kind == tokSymbol && (t.text == "-" || t.text == "+"):
		inner, err := p.factor()
		if err != nil {
			return Linear{}, err
		}
		if t.text == "-" {
			return inner.scale(-1), nil
		}
		return inner, nil
	case t.kind == tokEOF:
		return Linear{}, core.NewHypothesisError(p.raw, "unexpected end of expression")
	}
	return Linear{}, core.NewHypothesisError(p.raw, fmt.Sprintf("unexpected %q", t.text))
}
