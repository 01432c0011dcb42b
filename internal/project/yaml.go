package project

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/never2/internal/network"
)

const documentVersion = "v1"

type document struct {
	Version string         `yaml:"version"`
	ID      string         `yaml:"id"`
	Input   inputDoc       `yaml:"input"`
	Nodes   []nodeDocument `yaml:"nodes"`
}

type inputDoc struct {
	ID  string `yaml:"id"`
	Dim []int  `yaml:"dim,flow"`
}

type nodeDocument struct {
	ID     string         `yaml:"id"`
	Layer  string         `yaml:"layer"`
	Params map[string]any `yaml:"params,omitempty"`
}

// YAMLFormat is the native network document:
//
//	version: v1
//	id: net
//	input: {id: X, dim: [784]}
//	nodes:
//	  - id: fc1
//	    layer: FullyConnectedNode
//	    params: {out_features: 10}
type YAMLFormat struct{}

func (YAMLFormat) Name() string         { return "yaml" }
func (YAMLFormat) Extensions() []string { return []string{"yaml", "yml"} }

// Read decodes a document and rebuilds every node against the shape produced
// by its predecessor, so derived parameters and output shapes are recomputed.
func (YAMLFormat) Read(r io.Reader) (*network.Sequential, network.Shape, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode network: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, nil, fmt.Errorf("unsupported network document version %q", doc.Version)
	}
	if doc.Input.ID == "" {
		doc.Input.ID = "X"
	}
	in := network.Shape(doc.Input.Dim)
	if len(in) == 0 || in.Size() <= 0 {
		return nil, nil, fmt.Errorf("input %q needs a positive dimension, got %v", doc.Input.ID, doc.Input.Dim)
	}
	if doc.ID == "" {
		doc.ID = "net"
	}

	nn := network.NewSequential(doc.ID, doc.Input.ID)
	cur := in.Clone()
	for i, nd := range doc.Nodes {
		if nd.ID == "" {
			return nil, nil, fmt.Errorf("node %d has no id", i)
		}
		n, err := network.NewLayerNode(nd.Layer, nd.ID, nd.Params, cur)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", nd.ID, err)
		}
		if err := nn.AppendNode(n); err != nil {
			return nil, nil, err
		}
		cur = n.OutDim
	}
	return nn, in, nil
}

func (YAMLFormat) Write(w io.Writer, nn *network.Sequential, inputDim network.Shape) error {
	doc := document{
		Version: documentVersion,
		ID:      nn.ID,
		Input:   inputDoc{ID: nn.InputID(), Dim: []int(inputDim.Clone())},
	}
	for _, n := range nn.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeDocument{ID: n.ID, Layer: n.Layer, Params: plainParams(n.Params)})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode network: %w", err)
	}
	return enc.Close()
}

// plainParams converts shapes to plain int slices so they encode as flow lists.
func plainParams(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(network.Shape); ok {
			v = []int(s)
		}
		out[k] = v
	}
	return out
}
