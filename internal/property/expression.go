package property

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Operator is a relational operator allowed in a polyhedral atom.
type Operator string

const (
	OpLte Operator = "<="
	OpLt  Operator = "<"
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

// flip mirrors the operator so that "c op v" can be stored as "v flip(op) c".
func (o Operator) flip() Operator {
	switch o {
	case OpLte:
		return OpGte
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	}
	return o
}

// Atom is a single "variable op constant" constraint.
type Atom struct {
	Variable string   `json:"variable"`
	Op       Operator `json:"op"`
	Value    float64  `json:"value"`
}

func (a Atom) String() string {
	return fmt.Sprintf("%s %s %s", a.Variable, a.Op, formatFloat(a.Value))
}

// -----------------------------------------------------------------------
// Tokenizer
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokWord   tokenKind = iota // variable or keyword
	tokOp                      // <=, <, >, >=
	tokNumber                  // 42 | -3.14 | 1e-3
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		if unicode.IsSpace(rune(ch)) || ch == ',' || ch == ';' {
			i++
			continue
		}
		if ch == '(' {
			tokens = append(tokens, token{tokLParen, "("})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{tokRParen, ")"})
			i++
			continue
		}
		if ch == '<' || ch == '>' {
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{tokOp, expr[i : i+2]})
				i += 2
			} else {
				tokens = append(tokens, token{tokOp, string(ch)})
				i++
			}
			continue
		}
		// Numbers, with an optional sign and exponent.
		if unicode.IsDigit(rune(ch)) || ch == '.' ||
			((ch == '-' || ch == '+') && i+1 < len(expr) && (unicode.IsDigit(rune(expr[i+1])) || expr[i+1] == '.')) {
			j := i + 1
			for j < len(expr) {
				c := expr[j]
				if unicode.IsDigit(rune(c)) || c == '.' {
					j++
					continue
				}
				if (c == 'e' || c == 'E') && j+1 < len(expr) {
					j++
					if expr[j] == '-' || expr[j] == '+' {
						j++
					}
					continue
				}
				break
			}
			tokens = append(tokens, token{tokNumber, expr[i:j]})
			i = j
			continue
		}
		// Words: variable names such as X_0 or Y_1-2, and the AND keyword.
		if unicode.IsLetter(rune(ch)) || ch == '_' {
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) ||
				expr[j] == '_' || expr[j] == '-' || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokWord, expr[i:j]})
			i = j
			continue
		}
		return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens, nil
}

// -----------------------------------------------------------------------
// Recursive-descent parser
// -----------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// ParsePolyhedral parses a conjunction of atoms. Atoms are separated by AND,
// by newlines or simply by juxtaposition:
//
//	X_0 >= -1 AND X_0 <= 1
//	(X_1 > 0.5) AND (2 >= X_1)
func ParsePolyhedral(expr string) (Polyhedral, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return Polyhedral{}, err
	}
	p := &parser{tokens: tokens}
	var atoms []Atom
	for p.peek().kind != tokEOF {
		if p.peek().kind == tokWord && strings.EqualFold(p.peek().val, "AND") {
			if len(atoms) == 0 {
				return Polyhedral{}, fmt.Errorf("expression starts with AND")
			}
			p.consume()
			continue
		}
		a, err := p.parseAtom()
		if err != nil {
			return Polyhedral{}, err
		}
		atoms = append(atoms, a)
	}
	if len(atoms) == 0 {
		return Polyhedral{}, fmt.Errorf("empty expression")
	}
	return Polyhedral{Atoms: atoms}, nil
}

// atom = "(" atom ")" | operand operator operand
func (p *parser) parseAtom() (Atom, error) {
	if p.peek().kind == tokLParen {
		p.consume()
		a, err := p.parseAtom()
		if err != nil {
			return Atom{}, err
		}
		if t := p.consume(); t.kind != tokRParen {
			return Atom{}, fmt.Errorf("expected \")\" but got %q", t.val)
		}
		return a, nil
	}

	left := p.consume()
	opTok := p.consume()
	if opTok.kind != tokOp {
		return Atom{}, fmt.Errorf("expected comparison operator, got %q", opTok.val)
	}
	right := p.consume()
	op := Operator(opTok.val)

	switch {
	case left.kind == tokWord && right.kind == tokNumber:
		v, err := strconv.ParseFloat(right.val, 64)
		if err != nil {
			return Atom{}, fmt.Errorf("invalid number %q", right.val)
		}
		return Atom{Variable: left.val, Op: op, Value: v}, nil
	case left.kind == tokNumber && right.kind == tokWord:
		v, err := strconv.ParseFloat(left.val, 64)
		if err != nil {
			return Atom{}, fmt.Errorf("invalid number %q", left.val)
		}
		return Atom{Variable: right.val, Op: op.flip(), Value: v}, nil
	}
	return Atom{}, fmt.Errorf("atom %s %s %s must compare a variable with a constant", left.val, opTok.val, right.val)
}
