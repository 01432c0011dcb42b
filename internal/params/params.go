// Package params converts layer parameters between the text a user edits and
// the typed values handed to layer constructors.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/never2/internal/network"
)

// Type tags a parameter with the type its text parses into.
type Type string

const (
	TypeTensor   Type = "Tensor"
	TypeInt      Type = "int"
	TypeFloat    Type = "float"
	TypeBool     Type = "boolean"
	TypeIntList  Type = "list of ints"
	TypeReadOnly Type = "read-only"
)

// Valid reports whether t is one of the known type tags.
func (t Type) Valid() bool {
	switch t {
	case TypeTensor, TypeInt, TypeFloat, TypeBool, TypeIntList, TypeReadOnly:
		return true
	}
	return false
}

// Param is one entry of a block's parameter mapping: the display text, the
// typed value it parsed into (nil until parsed) and its type tag.
type Param struct {
	Text  string `json:"text" yaml:"text"`
	Value any    `json:"value,omitempty" yaml:"-"`
	Type  Type   `json:"type" yaml:"type"`
}

// Parse converts text into the typed value for t.
func Parse(text string, t Type) (any, error) {
	text = strings.TrimSpace(text)
	switch t {
	case TypeTensor:
		return TextToShape(text)
	case TypeInt:
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", text)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return f, nil
	case TypeBool:
		return text == "True" || text == "true", nil
	case TypeIntList:
		var out []int
		for _, tok := range strings.Split(text, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("%q is not a list of integers", text)
			}
			out = append(out, n)
		}
		return out, nil
	case TypeReadOnly:
		return text, nil
	}
	return nil, fmt.Errorf("unknown parameter type %q", t)
}

// FormatData parses every non-empty, editable parameter into a constructor
// argument map. Empty entries are skipped so constructor defaults apply.
func FormatData(ps map[string]Param) (map[string]any, error) {
	out := make(map[string]any, len(ps))
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := ps[name]
		if strings.TrimSpace(p.Text) == "" || p.Type == TypeReadOnly {
			continue
		}
		v, err := Parse(p.Text, p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// TextToShape parses "(n, m, l)", "n, m" or "n" into a shape.
func TextToShape(text string) (network.Shape, error) {
	text = strings.NewReplacer("(", "", ")", "", "x", ",", " ", "").Replace(text)
	var out network.Shape
	for _, tok := range strings.Split(text, ",") {
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%q is not a tensor shape", text)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty tensor shape")
	}
	return out, nil
}

// ShapeToText renders a shape as "a x b x c" when prod is set, "a, b, c" otherwise.
// A 1-tuple renders as the bare number.
func ShapeToText(s network.Shape, prod bool) string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	if prod {
		return strings.Join(parts, " x ")
	}
	return strings.Join(parts, ", ")
}

// ValueToText renders a typed constructor argument back into editable text.
func ValueToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case network.Shape:
		return ShapeToText(t, false)
	case []int:
		return ShapeToText(network.Shape(t), false)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any:
		if s, err := network.ToShape(t); err == nil {
			return ShapeToText(s, false)
		}
	}
	return fmt.Sprint(v)
}
