package scene

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/never2/internal/metrics"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

func (s *Scene) ioBlock(id string) (*IOBlock, error) {
	switch id {
	case InputBlockID:
		return s.input, nil
	case OutputBlockID:
		return s.output, nil
	}
	if _, ok := s.blocks[id]; ok {
		return nil, fmt.Errorf("%w: properties attach to %s or %s only", ErrUnknownBlock, InputBlockID, OutputBlockID)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, id)
}

func (s *Scene) propertyOf(parent *IOBlock) *PropertyBlock {
	if parent.IsInput() {
		return s.pre
	}
	return s.post
}

// AddPropertyBlock attaches a property of the given kind to the input or
// output block. With a nil container the property editor authors it; a
// cancelled edit leaves the scene unchanged. An existing property on the same
// block is replaced only after confirmation.
func (s *Scene) AddPropertyBlock(kind property.Kind, parentID string, c *property.Container) error {
	parent, err := s.ioBlock(parentID)
	if err != nil {
		return err
	}
	if len(s.sequence) <= 2 {
		return ErrNoNetwork
	}
	if err := s.confirmReplace(parent); err != nil {
		return err
	}

	pb := newPropertyBlock(uuid.NewString(), kind, parent)
	if c == nil {
		def, err := s.editor.EditProperty(kind, pb.symbol, pb.Variables())
		if err != nil {
			return &ValidationError{Op: "add property", Err: err}
		}
		if def == nil {
			return nil
		}
		if c, err = s.compile(pb, def); err != nil {
			return err
		}
	}
	s.attach(pb, parent, c)
	return nil
}

// DefineProperty compiles def against the variables of the input or output
// block and attaches the result, replacing any property already there after
// confirmation.
func (s *Scene) DefineProperty(parentID string, def property.Definition) error {
	parent, err := s.ioBlock(parentID)
	if err != nil {
		return err
	}
	if len(s.sequence) <= 2 {
		return ErrNoNetwork
	}
	pb := newPropertyBlock(uuid.NewString(), def.Kind(), parent)
	c, err := s.compile(pb, def)
	if err != nil {
		return err
	}
	if err := s.confirmReplace(parent); err != nil {
		return err
	}
	s.attach(pb, parent, c)
	return nil
}

func (s *Scene) compile(pb *PropertyBlock, def property.Definition) (*property.Container, error) {
	c, err := property.Build(def, pb.symbol, pb.variables)
	if err != nil {
		return nil, &ValidationError{Op: "add property", Err: err}
	}
	pb.label = def.Label()
	return c, nil
}

func (s *Scene) confirmReplace(parent *IOBlock) error {
	existing := s.propertyOf(parent)
	if existing == nil {
		return nil
	}
	msg := fmt.Sprintf("Replace the %s property of %s?", existing.kind, parent.title)
	if !s.confirm.Confirm("Replace property", msg) {
		return ErrDeclined
	}
	return nil
}

func (s *Scene) attach(pb *PropertyBlock, parent *IOBlock, c *property.Container) {
	if existing := s.propertyOf(parent); existing != nil {
		s.detachProperty(existing)
	}
	pb.smt = c.SMT
	pb.variables = append([]string(nil), c.Variables...)
	if c.Title != "" {
		pb.title = c.Title
	}
	parent.property = pb.id

	side := "post"
	if parent.IsInput() {
		s.pre, side = pb, "pre"
	} else {
		s.post = pb
	}
	s.placeProperties()
	metrics.PropertiesAttached.WithLabelValues(side, string(pb.kind)).Inc()
	s.log.Debug("property attached", "side", side, "kind", pb.kind, "variables", len(pb.variables))
}

func (s *Scene) detachProperty(pb *PropertyBlock) {
	switch pb {
	case s.pre:
		s.pre = nil
		s.input.property = ""
	case s.post:
		s.post = nil
		s.output.property = ""
	}
}

// RemoveInProp removes the precondition, if any.
func (s *Scene) RemoveInProp() {
	if s.pre != nil {
		s.detachProperty(s.pre)
	}
}

// RemoveOutProp removes the postcondition, if any.
func (s *Scene) RemoveOutProp() {
	if s.post != nil {
		s.detachProperty(s.post)
	}
}

// Properties packs the attached properties keyed by the identifier of the
// block each one decorates.
func (s *Scene) Properties() map[string]*property.Container {
	out := make(map[string]*property.Container, 2)
	if s.pre != nil {
		out[s.input.identifier] = s.pre.Container()
	}
	if s.post != nil {
		out[s.output.identifier] = s.post.Container()
	}
	return out
}

// LoadProperties attaches properties read from a file, keyed by tensor
// identifier. The input may be addressed by its identifier or by "X"; the
// output by its identifier or by the id of the last network node, in which
// case the node id is rewritten to the output identifier.
func (s *Scene) LoadProperties(props map[string]*property.Container) error {
	const op = "load properties"
	if len(props) > 2 {
		return invalid(op, "at most one precondition and one postcondition, got %d properties", len(props))
	}
	nn := s.adapter.Network()
	if nn.IsEmpty() {
		return ErrNoNetwork
	}

	inID, outID, lastID := s.input.identifier, s.output.identifier, nn.LastNode().ID
	var in, out *property.Container
	var inKey, outKey string
	for key, c := range props {
		switch key {
		case inID, "X":
			if in != nil {
				return invalid(op, "two preconditions: %q and %q", inKey, key)
			}
			if !c.CheckVariablesSize(s.input.dim) {
				return invalid(op, "the number of input variables (%d) is not consistent with the network input %v",
					len(c.Variables), s.input.dim)
			}
			in, inKey = c, key
		case outID, lastID:
			if out != nil {
				return invalid(op, "two postconditions: %q and %q", outKey, key)
			}
			if !c.CheckVariablesSize(s.output.dim) {
				return invalid(op, "the number of output variables (%d) is not consistent with the network output %v",
					len(c.Variables), s.output.dim)
			}
			out, outKey = c, key
		default:
			return invalid(op, "unknown variable %q: the property appears to be defined on another network", key)
		}
	}
	if out != nil && outKey == lastID && lastID != outID {
		out = out.Rename(lastID, outID)
	}

	if in != nil {
		if err := s.confirmReplace(s.input); err != nil {
			return err
		}
	}
	if out != nil {
		if err := s.confirmReplace(s.output); err != nil {
			return err
		}
	}
	if in != nil {
		s.attach(newPropertyBlock(uuid.NewString(), property.KindSMT, s.input), s.input, in)
	}
	if out != nil {
		s.attach(newPropertyBlock(uuid.NewString(), property.KindSMT, s.output), s.output, out)
	}
	s.log.Info("properties loaded", "keys", strings.Join(property.Groups(props), ","))
	return nil
}
