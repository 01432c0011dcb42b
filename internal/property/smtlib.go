package property

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteSMT writes a property file holding a precondition and a postcondition.
// Either may be nil. Variables are declared with sort dtype (usually "Real");
// the postcondition is wrapped in (assert (or (and ...))) as expected by
// VNN-LIB readers.
func WriteSMT(w io.Writer, pre, post *Container, dtype string) error {
	bw := bufio.NewWriter(w)
	for _, c := range []*Container{pre, post} {
		if c == nil {
			continue
		}
		for _, v := range c.Variables {
			fmt.Fprintf(bw, "(declare-const %s %s)\n", v, dtype)
		}
	}
	bw.WriteString("\n")

	if pre != nil {
		bw.WriteString(strings.TrimSpace(pre.SMT))
		bw.WriteString("\n")
	}
	if post != nil {
		forms, err := parseSexps(post.SMT)
		if err != nil {
			return fmt.Errorf("postcondition: %w", err)
		}
		var atoms []string
		for _, f := range forms {
			body, ok := f.assertion()
			if !ok {
				return fmt.Errorf("postcondition: expected (assert ...), got %s", f)
			}
			atoms = append(atoms, body.String())
		}
		bw.WriteString("(assert (or\n(and\n")
		bw.WriteString(strings.Join(atoms, "\n"))
		bw.WriteString(")))\n")
	}
	return bw.Flush()
}

// ReadSMT parses a property file and groups its assertions by the tensor they
// constrain. Declared variables are grouped by the identifier before their
// last underscore ("X_0" belongs to "X"); each assertion goes to the group of
// the first declared variable it mentions. Conjunctions, and single-disjunct
// disjunctions of conjunctions, are split into one assertion per conjunct.
func ReadSMT(r io.Reader) (map[string]*Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	forms, err := parseSexps(string(data))
	if err != nil {
		return nil, err
	}

	groupOf := make(map[string]string)
	out := make(map[string]*Container)
	var asserts []sexp
	for _, f := range forms {
		if f.head() == "declare-const" && len(f.list) == 3 {
			name := f.list[1].atom
			i := strings.LastIndex(name, "_")
			if i <= 0 {
				return nil, fmt.Errorf("variable %q is not of the form <tensor>_<index>", name)
			}
			g := name[:i]
			groupOf[name] = g
			if out[g] == nil {
				out[g] = &Container{}
			}
			out[g].Variables = append(out[g].Variables, name)
			continue
		}
		if body, ok := f.assertion(); ok {
			asserts = append(asserts, splitConjuncts(body)...)
			continue
		}
		if h := f.head(); h != "set-logic" && h != "check-sat" && h != "get-model" && h != "set-info" {
			return nil, fmt.Errorf("unsupported form %s", f)
		}
	}

	var unbound []string
	for _, a := range asserts {
		g := ""
		a.walk(func(atom string) bool {
			if grp, ok := groupOf[atom]; ok {
				g = grp
				return false
			}
			return true
		})
		if g == "" {
			unbound = append(unbound, a.String())
			continue
		}
		c := out[g]
		c.SMT += "(assert " + a.String() + ")\n"
	}
	if len(unbound) > 0 {
		return nil, fmt.Errorf("assertions over undeclared variables: %s", strings.Join(unbound, ", "))
	}
	for name, c := range out {
		if c.SMT == "" {
			delete(out, name)
		}
	}
	return out, nil
}

// Groups returns the keys of a ReadSMT result in sorted order.
func Groups(props map[string]*Container) []string {
	out := make([]string, 0, len(props))
	for k := range props {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func splitConjuncts(body sexp) []sexp {
	switch body.head() {
	case "and":
		var out []sexp
		for _, c := range body.list[1:] {
			out = append(out, splitConjuncts(c)...)
		}
		return out
	case "or":
		if len(body.list) == 2 {
			return splitConjuncts(body.list[1])
		}
	}
	return []sexp{body}
}

// -----------------------------------------------------------------------
// S-expressions
// -----------------------------------------------------------------------

type sexp struct {
	atom   string
	list   []sexp
	isList bool
}

func (s sexp) head() string {
	if !s.isList || len(s.list) == 0 || s.list[0].isList {
		return ""
	}
	return s.list[0].atom
}

func (s sexp) assertion() (sexp, bool) {
	if s.head() != "assert" || len(s.list) != 2 {
		return sexp{}, false
	}
	return s.list[1], true
}

// walk visits atoms depth-first until fn returns false.
func (s sexp) walk(fn func(string) bool) bool {
	if !s.isList {
		return fn(s.atom)
	}
	for _, c := range s.list {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (s sexp) String() string {
	if !s.isList {
		return s.atom
	}
	parts := make([]string, len(s.list))
	for i, c := range s.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func parseSexps(text string) ([]sexp, error) {
	var (
		stack [][]sexp
		cur   []sexp
	)
	i := 0
	for i < len(text) {
		ch := text[i]
		switch {
		case ch == ';':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			stack = append(stack, cur)
			cur = nil
			i++
		case ch == ')':
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced \")\" at position %d", i)
			}
			done := sexp{list: cur, isList: true}
			cur = append(stack[len(stack)-1], done)
			stack = stack[:len(stack)-1]
			i++
		default:
			j := i
			for j < len(text) && !strings.ContainsRune("() \t\r\n;", rune(text[j])) {
				j++
			}
			cur = append(cur, sexp{atom: text[i:j]})
			i = j
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unbalanced \"(\": %d left open", len(stack))
	}
	return cur, nil
}
