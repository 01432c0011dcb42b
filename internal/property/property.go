// Package property defines the logical constraints attached to the input or
// output boundary of a network. Every kind compiles to SMT-LIB assertions.
package property

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/never2/internal/network"
)

// Kind discriminates the ways a property can be authored.
type Kind string

const (
	KindSMT            Kind = "Generic SMT"
	KindPolyhedral     Kind = "Polyhedral"
	KindBox            Kind = "Box"
	KindClassification Kind = "Classification"
)

// Kinds lists every property kind in palette order.
func Kinds() []Kind {
	return []Kind{KindSMT, KindPolyhedral, KindBox, KindClassification}
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown property kind %q", s)
}

// Container carries a compiled property: the SMT-LIB assertions and the
// ordered variables they constrain.
type Container struct {
	SMT       string   `json:"smt" yaml:"smt"`
	Variables []string `json:"variables" yaml:"variables"`
	Title     string   `json:"title,omitempty" yaml:"title,omitempty"`
}

// CheckVariablesSize reports whether the container constrains exactly as many
// variables as a tensor of shape dim holds.
func (c *Container) CheckVariablesSize(dim network.Shape) bool {
	return len(c.Variables) == dim.Size()
}

// Rename replaces every occurrence of the identifier from with to, in the
// assertions and in the variable names.
func (c *Container) Rename(from, to string) *Container {
	vars := make([]string, len(c.Variables))
	for i, v := range c.Variables {
		vars[i] = strings.ReplaceAll(v, from, to)
	}
	return &Container{
		SMT:       strings.ReplaceAll(c.SMT, from, to),
		Variables: vars,
		Title:     c.Title,
	}
}

// CreateVariables names every element of a tensor of shape dim: "X_0", "X_1", ...
// for vectors and "X_0-0", "X_0-1", ... for higher ranks.
func CreateVariables(name string, dim network.Shape) []string {
	var idx []string
	for _, k := range dim {
		if len(idx) == 0 {
			for i := 0; i < k; i++ {
				idx = append(idx, strconv.Itoa(i))
			}
			continue
		}
		next := make([]string, 0, len(idx)*k)
		for i := 0; i < k; i++ {
			for _, p := range idx {
				next = append(next, p+"-"+strconv.Itoa(i))
			}
		}
		idx = next
	}
	out := make([]string, len(idx))
	for i, p := range idx {
		out[i] = name + "_" + p
	}
	return out
}

// ReadVariables lists, in order of first appearance, the variables that lead
// each "(assert (<= v ...))" or "(assert (>= v ...))" line.
func ReadVariables(smt string) []string {
	var out []string
	seen := make(map[string]struct{})
	r := strings.NewReplacer("(assert (<= ", "", "(assert (>= ", "")
	for _, line := range strings.Split(smt, "\n") {
		fields := strings.Fields(r.Replace(line))
		if len(fields) == 0 || strings.HasPrefix(fields[0], "(") {
			continue
		}
		if _, ok := seen[fields[0]]; !ok {
			seen[fields[0]] = struct{}{}
			out = append(out, fields[0])
		}
	}
	return out
}
