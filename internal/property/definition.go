package property

import (
	"fmt"
	"strconv"
	"strings"
)

// Definition is the authored form of a property. Compile turns it into
// SMT-LIB assertions over the given variables, where symbol is the identifier
// of the boundary block the property decorates.
type Definition interface {
	Kind() Kind
	Compile(symbol string, variables []string) (string, error)
	// Label is a short summary kept for re-editing.
	Label() string
}

// Build compiles def into a container titled after its kind.
func Build(def Definition, symbol string, variables []string) (*Container, error) {
	smt, err := def.Compile(symbol, variables)
	if err != nil {
		return nil, fmt.Errorf("%s property: %w", def.Kind(), err)
	}
	vars := make([]string, len(variables))
	copy(vars, variables)
	return &Container{SMT: smt, Variables: vars, Title: string(def.Kind())}, nil
}

// SMT is free SMT-LIB text.
type SMT struct {
	Text string
}

func (SMT) Kind() Kind { return KindSMT }

func (d SMT) Compile(_ string, _ []string) (string, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return "", fmt.Errorf("empty SMT-LIB definition")
	}
	return text, nil
}

func (d SMT) Label() string { return strings.TrimSpace(d.Text) }

// Polyhedral is a conjunction of "variable op constant" atoms.
type Polyhedral struct {
	Atoms []Atom
}

func (Polyhedral) Kind() Kind { return KindPolyhedral }

func (d Polyhedral) Compile(_ string, variables []string) (string, error) {
	if len(d.Atoms) == 0 {
		return "", fmt.Errorf("no constraints")
	}
	known := make(map[string]struct{}, len(variables))
	for _, v := range variables {
		known[v] = struct{}{}
	}
	var b strings.Builder
	for _, a := range d.Atoms {
		if _, ok := known[a.Variable]; !ok {
			return "", fmt.Errorf("unknown variable %q", a.Variable)
		}
		fmt.Fprintf(&b, "(assert (%s %s %s))\n", a.Op, a.Variable, formatFloat(a.Value))
	}
	return b.String(), nil
}

func (d Polyhedral) Label() string {
	lines := make([]string, len(d.Atoms))
	for i, a := range d.Atoms {
		lines[i] = a.String()
	}
	return strings.Join(lines, "\n")
}

// Box bounds every variable between a lower and an upper value.
type Box struct {
	Lower []float64
	Upper []float64
}

func (Box) Kind() Kind { return KindBox }

func (d Box) Compile(symbol string, variables []string) (string, error) {
	n := len(variables)
	if len(d.Lower) != n || len(d.Upper) != n {
		return "", fmt.Errorf("the number of lower bounds and upper bounds must be %d", n)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if d.Lower[i] > d.Upper[i] {
			return "", fmt.Errorf("lower bound %g exceeds upper bound %g for %s_%d", d.Lower[i], d.Upper[i], symbol, i)
		}
		fmt.Fprintf(&b, "(assert (<= (* -1 %s_%d) %s))\n", symbol, i, formatFloat(-d.Lower[i]))
		fmt.Fprintf(&b, "(assert (<= %s_%d %s))\n", symbol, i, formatFloat(d.Upper[i]))
	}
	return b.String(), nil
}

func (d Box) Label() string {
	return formatFloats(d.Lower) + "::" + formatFloats(d.Upper)
}

// Classification requires one output variable to be the minimum (or maximum)
// of all output variables.
type Classification struct {
	Target   string
	Maximize bool
}

func (Classification) Kind() Kind { return KindClassification }

func (d Classification) Compile(symbol string, variables []string) (string, error) {
	target := -1
	for i, v := range variables {
		if v == d.Target {
			target = i
		}
	}
	if target < 0 {
		return "", fmt.Errorf("unknown variable %q", d.Target)
	}
	op := "<="
	if d.Maximize {
		op = ">="
	}
	var b strings.Builder
	for i := range variables {
		if i != target {
			fmt.Fprintf(&b, "(assert (%s %s_%d %s_%d))\n", op, symbol, target, symbol, i)
		}
	}
	return b.String(), nil
}

func (d Classification) Label() string {
	return strconv.FormatBool(!d.Maximize) + "#" + d.Target
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, ", ")
}
