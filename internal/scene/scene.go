// Package scene keeps the block graph an editor shows in sync with the
// sequential network held by a project. Blocks form a single chain from the
// input block to the output block; every change to the chain is mirrored on
// the network through an Adapter.
package scene

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/metrics"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/params"
)

// Adapter is the network model the scene drives.
type Adapter interface {
	Network() *network.Sequential
	// InputDim is the shape fed to the first layer, known even when the network is empty.
	InputDim() network.Shape
	SetInput(identifier string, dim network.Shape) error
	AddToNN(layer, id string, data map[string]any) (*network.Node, error)
	DeleteLastNode() (*network.Node, error)
	// SpliceOut removes a node that is not the tail and rebuilds its successors.
	SpliceOut(id string) error
	RefreshNode(id string, data map[string]any) (*network.Node, error)
}

// Canvas holds the layout constants of the drawing surface.
type Canvas struct {
	Input  Point
	Output Point
	Gap    float64
}

// Config is the initial state of a scene.
type Config struct {
	Canvas   Canvas
	InputID  string
	OutputID string
	InputDim network.Shape
}

// DefaultConfig returns the layout and identifiers used when none are configured.
func DefaultConfig() Config {
	return Config{
		Canvas: Canvas{
			Input:  Point{X: -300, Y: -60},
			Output: Point{X: 100, Y: -60},
			Gap:    60,
		},
		InputID:  "X",
		OutputID: "Y",
		InputDim: network.Shape{1},
	}
}

// Load replays a node that already exists in the network, as when drawing an
// opened project.
type Load struct {
	ID   string
	Node *network.Node
}

// Scene is the editable block graph. It is not safe for concurrent use; all
// calls are expected from a single goroutine.
type Scene struct {
	adapter Adapter
	catalog *catalog.Catalog
	conf    Config
	confirm Confirmer
	editor  PropertyEditor
	log     *slog.Logger

	blocks   map[string]Block
	sequence []string
	edges    map[string]*Edge
	input    *IOBlock
	output   *IOBlock
	pre      *PropertyBlock
	post     *PropertyBlock
	focus    Point
}

// New creates a scene holding only the input and output blocks, joined by an edge.
func New(adapter Adapter, cat *catalog.Catalog, conf Config) *Scene {
	s := &Scene{
		adapter: adapter,
		catalog: cat,
		conf:    conf,
		confirm: NeverConfirm,
		editor:  cancelEditor{},
		log:     slog.Default(),
	}
	s.reset()
	return s
}

// SetConfirmer replaces the collaborator asked before destructive changes.
func (s *Scene) SetConfirmer(c Confirmer) {
	if c == nil {
		c = NeverConfirm
	}
	s.confirm = c
}

// SetPropertyEditor replaces the collaborator that authors new properties.
func (s *Scene) SetPropertyEditor(e PropertyEditor) {
	if e == nil {
		e = cancelEditor{}
	}
	s.editor = e
}

// SetLogger replaces the logger.
func (s *Scene) SetLogger(l *slog.Logger) { s.log = l }

func (s *Scene) reset() {
	s.blocks = make(map[string]Block)
	s.edges = make(map[string]*Edge)
	s.pre, s.post = nil, nil

	s.input = newIOBlock(true, s.conf.InputID, s.conf.InputDim)
	s.output = newIOBlock(false, s.conf.OutputID, nil)
	s.input.setPos(s.conf.Canvas.Input)
	s.output.setPos(s.conf.Canvas.Output)
	s.blocks[InputBlockID] = s.input
	s.blocks[OutputBlockID] = s.output
	s.sequence = []string{InputBlockID, OutputBlockID}
	s.connect(s.input, s.output)
	s.focus = s.conf.Canvas.Input
	metrics.SceneBlocks.Set(2)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Block looks a block up by id. Property blocks are found too.
func (s *Scene) Block(id string) (Block, bool) {
	if b, ok := s.blocks[id]; ok {
		return b, true
	}
	for _, p := range []*PropertyBlock{s.pre, s.post} {
		if p != nil && p.id == id {
			return p, true
		}
	}
	return nil, false
}

// Blocks returns the chain blocks in order, input first and output last.
func (s *Scene) Blocks() []Block {
	out := make([]Block, len(s.sequence))
	for i, id := range s.sequence {
		out[i] = s.blocks[id]
	}
	return out
}

// Sequence returns the chain block ids in order.
func (s *Scene) Sequence() []string { return slices.Clone(s.sequence) }

// Count returns the number of chain blocks, input and output included.
func (s *Scene) Count() int { return len(s.blocks) }

// Edges returns the edges in chain order.
func (s *Scene) Edges() []*Edge {
	out := make([]*Edge, 0, len(s.edges))
	for _, id := range s.sequence {
		if sk := outputSocket(s.blocks[id]); sk != nil && sk.Edge != "" {
			out = append(out, s.edges[sk.Edge])
		}
	}
	return out
}

func (s *Scene) Input() *IOBlock      { return s.input }
func (s *Scene) Output() *IOBlock     { return s.output }
func (s *Scene) Pre() *PropertyBlock  { return s.pre }
func (s *Scene) Post() *PropertyBlock { return s.post }
func (s *Scene) Focus() Point         { return s.focus }

// tail returns the block right before the output block.
func (s *Scene) tail() Block {
	return s.blocks[s.sequence[len(s.sequence)-2]]
}

func (s *Scene) layerBlock(id string) (*LayerBlock, error) {
	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, id)
	}
	lb, ok := b.(*LayerBlock)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPermanentBlock, id)
	}
	return lb, nil
}

// ---------------------------------------------------------------------------
// Chain editing
// ---------------------------------------------------------------------------

// AppendLayerBlock adds a block built from spec right before the output block
// and creates the matching node in the network. values overrides the default
// parameter text by name. With a non-nil load the node already exists and
// its parameters are replayed instead.
//
// If the output carries a property the user is asked first, and the property
// is dropped once the node is built. If the network rejects the parameters
// the new block is removed again, the property stays and a *ValidationError
// is returned.
func (s *Scene) AppendLayerBlock(spec *catalog.BlockSpec, values map[string]string, load *Load) (*LayerBlock, error) {
	const op = "append block"

	id := uuid.NewString()
	if load != nil {
		id = load.ID
	}
	if _, dup := s.blocks[id]; dup {
		return nil, invalid(op, "block %q already exists", id)
	}
	b := newLayerBlock(id, spec)
	for name, text := range values {
		p, ok := b.params[name]
		if !ok {
			return nil, invalid(op, "%s has no parameter %q", spec.Signature(), name)
		}
		if p.Type == params.TypeReadOnly {
			return nil, invalid(op, "parameter %q is read-only", name)
		}
		p.Text = text
		b.params[name] = p
	}

	if load == nil && s.post != nil {
		if !s.confirm.Confirm("Output property", "Adding a layer removes the output property. Continue?") {
			return nil, ErrDeclined
		}
	}

	prev := s.tail()
	s.blocks[id] = b
	s.sequence = slices.Insert(s.sequence, len(s.sequence)-1, id)
	s.connect(prev, b)
	s.connect(b, s.output)

	if load != nil {
		b.syncFromNode(load.Node)
	} else {
		node, err := s.buildNode(b)
		if err != nil {
			s.rollback(b, prev)
			s.log.Warn("append rolled back", "signature", spec.Signature(), "error", err)
			return nil, &ValidationError{Op: op, Err: err}
		}
		b.syncFromNode(node)
		if s.post != nil {
			s.detachProperty(s.post)
		}
	}

	if pl, ok := prev.(*LayerBlock); ok {
		pl.editable = false
	}
	s.updateEdgeDim(b)
	s.updateOutDim()
	s.layout()
	s.focus = b.pos

	metrics.BlocksAppended.WithLabelValues(spec.Layer).Inc()
	metrics.SceneBlocks.Set(float64(len(s.blocks)))
	s.log.Debug("block appended", "id", id, "signature", spec.Signature(), "out_dim", b.outDim.String())
	return b, nil
}

func (s *Scene) buildNode(b *LayerBlock) (*network.Node, error) {
	data, err := params.FormatData(b.params)
	if err != nil {
		return nil, err
	}
	return s.adapter.AddToNN(b.spec.Layer, b.id, data)
}

// rollback undoes the scene half of a failed append.
func (s *Scene) rollback(b *LayerBlock, prev Block) {
	s.disconnectAll(b)
	delete(s.blocks, b.id)
	s.sequence = slices.DeleteFunc(s.sequence, func(id string) bool { return id == b.id })
	s.connect(prev, s.output)
	metrics.AppendRollbacks.Inc()
}

// RemoveBlock removes the block with the given id. Removing a property block
// detaches it from its parent. Removing a layer block drops the output
// property after confirmation and, when logic is set, removes the node from
// the network as well: the tail node directly, any other node by splicing
// it out of the chain.
func (s *Scene) RemoveBlock(id string, logic bool) error {
	if s.pre != nil && s.pre.id == id {
		s.RemoveInProp()
		return nil
	}
	if s.post != nil && s.post.id == id {
		s.RemoveOutProp()
		return nil
	}

	b, err := s.layerBlock(id)
	if err != nil {
		return err
	}
	if s.post != nil && !s.confirm.Confirm("Output property", "Removing a layer removes the output property. Continue?") {
		return ErrDeclined
	}

	idx := slices.Index(s.sequence, id)
	isTail := idx == len(s.sequence)-2
	if logic {
		if isTail {
			_, err = s.adapter.DeleteLastNode()
		} else {
			err = s.adapter.SpliceOut(id)
		}
		if err != nil {
			return fmt.Errorf("remove block %s: %w", id, err)
		}
	}

	if s.post != nil {
		s.detachProperty(s.post)
	}
	s.disconnectAll(b)
	delete(s.blocks, id)
	s.sequence = slices.Delete(s.sequence, idx, idx+1)

	if isTail {
		if pl, ok := s.blocks[s.sequence[idx-1]].(*LayerBlock); ok {
			pl.editable = true
		}
	} else if logic {
		s.resync()
	}
	s.UpdateEdges()
	s.updateOutDim()
	s.layout()

	metrics.BlocksRemoved.Inc()
	metrics.SceneBlocks.Set(float64(len(s.blocks)))
	s.log.Debug("block removed", "id", id, "logic", logic)
	return nil
}

// UpdateEdges repairs the chain after a removal: every pair of adjacent
// blocks ends up joined by exactly one edge and edges between blocks that are
// no longer adjacent are dropped.
func (s *Scene) UpdateEdges() {
	keep := make(map[string]bool, len(s.sequence))
	for i := 0; i+1 < len(s.sequence); i++ {
		from, to := s.blocks[s.sequence[i]], s.blocks[s.sequence[i+1]]
		if out := outputSocket(from); out.Edge != "" && s.edges[out.Edge].To == to.ID() {
			keep[out.Edge] = true
			continue
		}
		e := s.connect(from, to)
		keep[e.ID] = true
		if lb, ok := to.(*LayerBlock); ok {
			s.updateEdgeDim(lb)
		}
	}
	for id := range s.edges {
		if !keep[id] {
			s.disconnect(id)
		}
	}
}

// UpdateLayerParams edits the parameters of a layer block and rebuilds its
// node. Only the last layer is editable. Nothing changes when the new
// parameters are rejected.
func (s *Scene) UpdateLayerParams(id string, values map[string]string) error {
	const op = "update block"

	b, err := s.layerBlock(id)
	if err != nil {
		return err
	}
	if !b.editable {
		return fmt.Errorf("%w: %s is followed by other layers", ErrNotEditable, id)
	}
	next := copyParams(b.params)
	for name, text := range values {
		p, ok := next[name]
		if !ok {
			return invalid(op, "%s has no parameter %q", b.Signature(), name)
		}
		if p.Type == params.TypeReadOnly {
			return invalid(op, "parameter %q is read-only", name)
		}
		p.Text = text
		next[name] = p
	}
	data, err := params.FormatData(next)
	if err != nil {
		return &ValidationError{Op: op, Err: err}
	}
	if s.post != nil && !s.confirm.Confirm("Output property", "Editing the last layer removes the output property. Continue?") {
		return ErrDeclined
	}
	node, err := s.adapter.RefreshNode(id, data)
	if err != nil {
		return &ValidationError{Op: op, Err: err}
	}
	if s.post != nil {
		s.detachProperty(s.post)
	}
	b.params = next
	b.syncFromNode(node)
	s.updateOutDim()
	return nil
}

// SetInput renames the input tensor and changes its shape. It is only
// allowed while the network has no layers.
func (s *Scene) SetInput(identifier string, dim network.Shape) error {
	const op = "set input"
	if len(s.sequence) > 2 {
		return fmt.Errorf("%w: the input is fixed once layers are added", ErrNotEditable)
	}
	if identifier == "" {
		return invalid(op, "identifier must not be empty")
	}
	if len(dim) == 0 || dim.Size() <= 0 {
		return invalid(op, "dimension %v must be non-empty and positive", dim)
	}
	if err := s.adapter.SetInput(identifier, dim); err != nil {
		return &ValidationError{Op: op, Err: err}
	}
	s.input.identifier = identifier
	s.input.dim = dim.Clone()
	return nil
}

// SetOutputIdentifier renames the output tensor. It is refused while an
// output property refers to the current name.
func (s *Scene) SetOutputIdentifier(identifier string) error {
	if identifier == "" {
		return invalid("set output", "identifier must not be empty")
	}
	if s.post != nil {
		return fmt.Errorf("%w: remove the output property first", ErrNotEditable)
	}
	s.output.identifier = identifier
	return nil
}

// ClearScene removes every block, edge and property and recreates the input
// and output blocks. The network is left alone.
func (s *Scene) ClearScene() {
	s.reset()
}

// DrawNetwork rebuilds the scene from the network currently held by the
// adapter, one layer block per node.
func (s *Scene) DrawNetwork() error {
	nn := s.adapter.Network()
	nodes := nn.Nodes()
	specs, err := s.specsFor(nodes)
	if err != nil {
		return err
	}

	s.reset()
	s.input.identifier = nn.InputID()
	s.input.dim = s.adapter.InputDim()
	for i, n := range nodes {
		if _, err := s.AppendLayerBlock(specs[i], nil, &Load{ID: n.ID, Node: n}); err != nil {
			return fmt.Errorf("draw network: %w", err)
		}
	}
	s.focus = s.input.pos
	s.log.Info("network drawn", "nodes", len(nodes), "input", s.input.identifier)
	return nil
}

// CheckNetwork reports whether nn can be drawn: every node needs a block in
// the catalog and an id distinct from the input and output blocks. The scene
// is not touched.
func (s *Scene) CheckNetwork(nn *network.Sequential) error {
	_, err := s.specsFor(nn.Nodes())
	return err
}

func (s *Scene) specsFor(nodes []*network.Node) ([]*catalog.BlockSpec, error) {
	const op = "draw network"
	specs := make([]*catalog.BlockSpec, len(nodes))
	for i, n := range nodes {
		if n.ID == InputBlockID || n.ID == OutputBlockID {
			return nil, invalid(op, "node id %q is reserved", n.ID)
		}
		spec, err := s.catalog.ForLayer(n.Layer)
		if err != nil {
			return nil, &ValidationError{Op: op, Err: err}
		}
		specs[i] = spec
	}
	return specs, nil
}

// ---------------------------------------------------------------------------
// Derived state
// ---------------------------------------------------------------------------

// updateOutDim copies the output shape of the last layer onto the output block.
func (s *Scene) updateOutDim() {
	if lb, ok := s.tail().(*LayerBlock); ok {
		s.output.dim = lb.outDim.Clone()
		return
	}
	s.output.dim = nil
}

// updateEdgeDim labels the edge entering b with the shape flowing through it.
// Edges leaving the input block are not labelled.
func (s *Scene) updateEdgeDim(b *LayerBlock) {
	e := s.edgeInto(b)
	if e == nil || e.From == InputBlockID {
		return
	}
	if prev, ok := s.blocks[e.From].(*LayerBlock); ok {
		e.Label = params.ShapeToText(prev.outDim, true)
	}
}

// Refresh reloads the parameters and shapes of every layer block from the
// network, after the adapter replaced it with an updated copy.
func (s *Scene) Refresh() {
	s.resync()
	s.updateOutDim()
}

// resync refreshes every layer block and edge label from the network, after
// a splice changed the shapes downstream of the removed node.
func (s *Scene) resync() {
	nn := s.adapter.Network()
	for _, id := range s.sequence {
		lb, ok := s.blocks[id].(*LayerBlock)
		if !ok {
			continue
		}
		if n, ok := nn.Node(id); ok {
			lb.syncFromNode(n)
		}
		s.updateEdgeDim(lb)
	}
}

// layout places the chain left to right and the property blocks above their parents.
func (s *Scene) layout() {
	step := BlockWidth + s.conf.Canvas.Gap
	if len(s.sequence) == 2 {
		s.output.setPos(s.conf.Canvas.Output)
	} else {
		for i := 1; i < len(s.sequence); i++ {
			p := s.blocks[s.sequence[i-1]].Pos()
			s.blocks[s.sequence[i]].setPos(Point{X: p.X + step, Y: p.Y})
		}
	}
	for _, e := range s.edges {
		s.placeEdge(e)
	}
	s.placeProperties()
}

func (s *Scene) placeProperties() {
	above := BlockHeight + s.conf.Canvas.Gap
	if s.pre != nil {
		s.pre.setPos(Point{X: s.input.pos.X, Y: s.input.pos.Y - above})
	}
	if s.post != nil {
		s.post.setPos(Point{X: s.output.pos.X, Y: s.output.pos.Y - above})
	}
}
