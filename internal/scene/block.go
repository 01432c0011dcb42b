package scene

import (
	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/params"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

// BlockType discriminates the three kinds of blocks.
type BlockType string

const (
	BlockTypeFunctional BlockType = "functional"
	BlockTypeLayer      BlockType = "layer"
	BlockTypeProperty   BlockType = "property"
)

// Ids of the two permanent blocks.
const (
	InputBlockID  = "INP"
	OutputBlockID = "END"
)

// Block sizes on the canvas.
const (
	BlockWidth  = 160.0
	BlockHeight = 120.0
)

// Point is a canvas position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Socket is an attachment point on a block. It refers to its owner and to
// the edge plugged into it by id, never by pointer.
type Socket struct {
	Block string
	Index int
	Edge  string // empty when nothing is connected
}

// Block is the capability set shared by every block variant. The set of
// variants is closed: *IOBlock, *LayerBlock and *PropertyBlock.
type Block interface {
	ID() string
	Type() BlockType
	Title() string
	Pos() Point
	// HasInput and HasOutput report whether the block has a socket on that side.
	HasInput() bool
	HasOutput() bool
	HasParameters() bool
	// Identifier is the tensor name displayed on the block.
	Identifier() string
	// Dimension is the tensor shape the block displays; nil when unknown.
	Dimension() network.Shape

	sockets() (in, out []*Socket)
	setPos(Point)
}

type base struct {
	id      string
	title   string
	pos     Point
	inputs  []*Socket
	outputs []*Socket
}

func (b *base) ID() string                   { return b.id }
func (b *base) Title() string                { return b.title }
func (b *base) Pos() Point                   { return b.pos }
func (b *base) HasInput() bool               { return len(b.inputs) > 0 }
func (b *base) HasOutput() bool              { return len(b.outputs) > 0 }
func (b *base) setPos(p Point)               { b.pos = p }
func (b *base) sockets() (in, out []*Socket) { return b.inputs, b.outputs }

func newSockets(owner string, n int) []*Socket {
	out := make([]*Socket, n)
	for i := range out {
		out[i] = &Socket{Block: owner, Index: i}
	}
	return out
}

// -----------------------------------------------------------------------
// IOBlock
// -----------------------------------------------------------------------

// IOBlock is one of the two permanent boundary blocks. The input block has a
// single output socket, the output block a single input socket.
type IOBlock struct {
	base
	identifier string
	dim        network.Shape
	property   string // id of the attached property block
}

func newIOBlock(input bool, identifier string, dim network.Shape) *IOBlock {
	b := &IOBlock{identifier: identifier, dim: dim.Clone()}
	if input {
		b.id, b.title = InputBlockID, "Input"
		b.outputs = newSockets(b.id, 1)
	} else {
		b.id, b.title = OutputBlockID, "Output"
		b.inputs = newSockets(b.id, 1)
	}
	return b
}

func (b *IOBlock) Type() BlockType          { return BlockTypeFunctional }
func (b *IOBlock) HasParameters() bool      { return true }
func (b *IOBlock) Identifier() string       { return b.identifier }
func (b *IOBlock) Dimension() network.Shape { return b.dim.Clone() }
func (b *IOBlock) IsInput() bool            { return b.id == InputBlockID }
func (b *IOBlock) PropertyBlockID() string  { return b.property }

// DimensionText renders the dimension the way the block displays it.
func (b *IOBlock) DimensionText() string {
	if len(b.dim) == 0 {
		return ""
	}
	return params.ShapeToText(b.dim, false)
}

// -----------------------------------------------------------------------
// LayerBlock
// -----------------------------------------------------------------------

// LayerBlock represents one network layer. Its parameter mapping mirrors the
// constructor arguments of the node it built.
type LayerBlock struct {
	base
	spec     *catalog.BlockSpec
	params   map[string]params.Param
	editable bool
	outDim   network.Shape
}

func newLayerBlock(id string, spec *catalog.BlockSpec) *LayerBlock {
	return &LayerBlock{
		base: base{
			id:      id,
			title:   spec.Name,
			inputs:  newSockets(id, 1),
			outputs: newSockets(id, 1),
		},
		spec:     spec,
		params:   spec.Defaults(),
		editable: true,
	}
}

func (b *LayerBlock) Type() BlockType          { return BlockTypeLayer }
func (b *LayerBlock) HasParameters() bool      { return len(b.params) > 0 }
func (b *LayerBlock) Identifier() string       { return b.id }
func (b *LayerBlock) Dimension() network.Shape { return b.outDim.Clone() }
func (b *LayerBlock) Signature() string        { return b.spec.Signature() }
func (b *LayerBlock) Layer() string            { return b.spec.Layer }

// Editable reports whether the parameters may still be changed. Only the
// last layer of the chain is editable.
func (b *LayerBlock) Editable() bool { return b.editable }

// Params returns a copy of the parameter mapping.
func (b *LayerBlock) Params() map[string]params.Param {
	return copyParams(b.params)
}

// ParamNames returns the parameter names in catalog order.
func (b *LayerBlock) ParamNames() []string {
	out := make([]string, len(b.spec.Params))
	for i, p := range b.spec.Params {
		out[i] = p.Name
	}
	return out
}

// syncFromNode copies the constructor arguments the node ended up with back
// into the displayed parameters.
func (b *LayerBlock) syncFromNode(n *network.Node) {
	for name, p := range b.params {
		v, ok := n.Params[name]
		if !ok {
			continue
		}
		p.Value = v
		p.Text = params.ValueToText(v)
		b.params[name] = p
	}
	b.outDim = n.OutDim.Clone()
}

func copyParams(in map[string]params.Param) map[string]params.Param {
	out := make(map[string]params.Param, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------
// PropertyBlock
// -----------------------------------------------------------------------

// PropertyBlock is a logical constraint attached to a boundary block. It has
// no sockets and does not take part in the sequential chain.
type PropertyBlock struct {
	base
	kind      property.Kind
	parent    string
	symbol    string
	dim       network.Shape
	smt       string
	variables []string
	label     string
}

func newPropertyBlock(id string, kind property.Kind, parent *IOBlock) *PropertyBlock {
	return &PropertyBlock{
		base:      base{id: id, title: string(kind)},
		kind:      kind,
		parent:    parent.ID(),
		symbol:    parent.Identifier(),
		dim:       parent.Dimension(),
		variables: property.CreateVariables(parent.Identifier(), parent.Dimension()),
	}
}

func (b *PropertyBlock) Type() BlockType          { return BlockTypeProperty }
func (b *PropertyBlock) HasParameters() bool      { return false }
func (b *PropertyBlock) Identifier() string       { return b.symbol }
func (b *PropertyBlock) Dimension() network.Shape { return b.dim.Clone() }
func (b *PropertyBlock) Kind() property.Kind      { return b.kind }
func (b *PropertyBlock) Parent() string           { return b.parent }
func (b *PropertyBlock) SMT() string              { return b.smt }
func (b *PropertyBlock) Label() string            { return b.label }

// Variables returns the ordered variables the property constrains.
func (b *PropertyBlock) Variables() []string {
	out := make([]string, len(b.variables))
	copy(out, b.variables)
	return out
}

// Container packs the property for persistence or verification.
func (b *PropertyBlock) Container() *property.Container {
	return &property.Container{SMT: b.smt, Variables: b.Variables(), Title: b.title}
}
