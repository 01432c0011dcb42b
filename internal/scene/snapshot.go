package scene

import (
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/params"
)

// BlockView is the serializable form of a block.
type BlockView struct {
	ID         string                  `json:"id"`
	Type       BlockType               `json:"type"`
	Title      string                  `json:"title"`
	Signature  string                  `json:"signature,omitempty"`
	Identifier string                  `json:"identifier"`
	Dimension  network.Shape           `json:"dimension,omitempty"`
	Params     map[string]params.Param `json:"params,omitempty"`
	Editable   bool                    `json:"editable"`
	Property   string                  `json:"property,omitempty"`
	Pos        Point                   `json:"pos"`
}

// PropertyView is the serializable form of a property block.
type PropertyView struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Parent    string   `json:"parent"`
	SMT       string   `json:"smt"`
	Variables []string `json:"variables"`
	Label     string   `json:"label,omitempty"`
	Pos       Point    `json:"pos"`
}

// Snapshot is a point-in-time copy of the whole scene.
type Snapshot struct {
	Blocks []BlockView   `json:"blocks"`
	Edges  []Edge        `json:"edges"`
	Pre    *PropertyView `json:"pre,omitempty"`
	Post   *PropertyView `json:"post,omitempty"`
	Focus  Point         `json:"focus"`
}

// Snapshot copies the scene state. The result shares nothing with the scene.
func (s *Scene) Snapshot() Snapshot {
	snap := Snapshot{Focus: s.focus}
	for _, b := range s.Blocks() {
		v := BlockView{
			ID:         b.ID(),
			Type:       b.Type(),
			Title:      b.Title(),
			Identifier: b.Identifier(),
			Dimension:  b.Dimension(),
			Pos:        b.Pos(),
		}
		switch blk := b.(type) {
		case *LayerBlock:
			v.Signature = blk.Signature()
			v.Params = blk.Params()
			v.Editable = blk.editable
		case *IOBlock:
			v.Editable = blk.IsInput() && len(s.sequence) == 2
			v.Property = blk.property
		}
		snap.Blocks = append(snap.Blocks, v)
	}
	for _, e := range s.Edges() {
		snap.Edges = append(snap.Edges, *e)
	}
	snap.Pre = propertyView(s.pre)
	snap.Post = propertyView(s.post)
	return snap
}

func propertyView(pb *PropertyBlock) *PropertyView {
	if pb == nil {
		return nil
	}
	return &PropertyView{
		ID:        pb.id,
		Kind:      string(pb.kind),
		Parent:    pb.parent,
		SMT:       pb.smt,
		Variables: pb.Variables(),
		Label:     pb.label,
		Pos:       pb.pos,
	}
}
