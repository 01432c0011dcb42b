// Package catalog holds the layer blocks a user can append to a scene.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/params"
)

//go:embed blocks.yaml
var defaultBlocks []byte

// ParamSpec describes one editable (or derived, read-only) constructor argument.
type ParamSpec struct {
	Name    string      `yaml:"name" json:"name"`
	Type    params.Type `yaml:"type" json:"type"`
	Default string      `yaml:"default" json:"default,omitempty"`
}

// BlockSpec describes a layer block: where it sits in the palette, which
// network layer it builds and the parameters it exposes.
type BlockSpec struct {
	Category string      `yaml:"category" json:"category"`
	Name     string      `yaml:"name" json:"name"`
	Layer    string      `yaml:"layer" json:"layer"`
	Params   []ParamSpec `yaml:"params" json:"params"`
}

// Signature returns the "category:name" key of the block.
func (b *BlockSpec) Signature() string {
	return b.Category + ":" + b.Name
}

// Defaults returns a fresh parameter mapping filled with the spec defaults.
func (b *BlockSpec) Defaults() map[string]params.Param {
	out := make(map[string]params.Param, len(b.Params))
	for _, p := range b.Params {
		out[p.Name] = params.Param{Text: p.Default, Type: p.Type}
	}
	return out
}

type document struct {
	Version string      `yaml:"version"`
	Blocks  []BlockSpec `yaml:"blocks"`
}

// Catalog maps block signatures and layer types to specs.
// It is safe for concurrent reads; Swap replaces the contents atomically on reload.
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	bySig   map[string]*BlockSpec
	byLayer map[string]*BlockSpec
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultBlocks)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded blocks.yaml: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	known := make(map[string]struct{})
	for _, l := range network.Layers() {
		known[l] = struct{}{}
	}

	c := &Catalog{
		bySig:   make(map[string]*BlockSpec, len(doc.Blocks)),
		byLayer: make(map[string]*BlockSpec, len(doc.Blocks)),
	}
	var errs []string
	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		sig := b.Signature()
		switch {
		case b.Category == "" || b.Name == "":
			errs = append(errs, fmt.Sprintf("blocks[%d]: category and name are required", i))
			continue
		case c.bySig[sig] != nil:
			errs = append(errs, fmt.Sprintf("duplicate block %q", sig))
			continue
		}
		if _, ok := known[b.Layer]; !ok {
			errs = append(errs, fmt.Sprintf("block %s: unknown layer %q", sig, b.Layer))
			continue
		}
		for _, p := range b.Params {
			if !p.Type.Valid() {
				errs = append(errs, fmt.Sprintf("block %s: parameter %s has unknown type %q", sig, p.Name, p.Type))
			}
		}
		c.bySig[sig] = b
		if c.byLayer[b.Layer] == nil {
			c.byLayer[b.Layer] = b
		}
		c.order = append(c.order, sig)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return c, nil
}

// Get returns the spec registered under signature.
func (c *Catalog) Get(signature string) (*BlockSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bySig[signature]
	if !ok {
		return nil, fmt.Errorf("no block registered for signature %q", signature)
	}
	return b, nil
}

// ForLayer returns the first spec that builds the given layer type.
func (c *Catalog) ForLayer(layer string) (*BlockSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byLayer[layer]
	if !ok {
		return nil, fmt.Errorf("no block registered for layer %q", layer)
	}
	return b, nil
}

// Blocks returns every spec in declaration order.
func (c *Catalog) Blocks() []*BlockSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*BlockSpec, 0, len(c.order))
	for _, sig := range c.order {
		out = append(out, c.bySig[sig])
	}
	return out
}

// Swap replaces the catalog contents with those of next.
func (c *Catalog) Swap(next *Catalog) {
	next.mu.RLock()
	order, bySig, byLayer := next.order, next.bySig, next.byLayer
	next.mu.RUnlock()

	c.mu.Lock()
	c.order, c.bySig, c.byLayer = order, bySig, byLayer
	c.mu.Unlock()
}
