package network

import "fmt"

// Sequential is an ordered chain of layer nodes. Nodes can only be appended to
// or removed from the tail; every node consumes the output of its predecessor.
type Sequential struct {
	ID string

	inputID string
	order   []string
	nodes   map[string]*Node
}

// NewSequential allocates an empty network whose input tensor is named inputID.
func NewSequential(id, inputID string) *Sequential {
	return &Sequential{
		ID:      id,
		inputID: inputID,
		nodes:   make(map[string]*Node),
	}
}

// InputID returns the identifier of the network input tensor.
func (s *Sequential) InputID() string { return s.inputID }

// SetInputID renames the network input tensor.
func (s *Sequential) SetInputID(id string) { s.inputID = id }

// Len returns the number of nodes.
func (s *Sequential) Len() int { return len(s.order) }

// IsEmpty reports whether the network has no nodes.
func (s *Sequential) IsEmpty() bool { return len(s.order) == 0 }

// AppendNode adds n at the tail. Its input shape must equal the output shape of
// the current last node.
func (s *Sequential) AppendNode(n *Node) error {
	if _, dup := s.nodes[n.ID]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
	}
	if last := s.LastNode(); last != nil && !last.OutDim.Equal(n.InDim) {
		return fmt.Errorf("%w: node %s expects %v but %s produces %v",
			ErrShapeMismatch, n.ID, n.InDim, last.ID, last.OutDim)
	}
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	return nil
}

// DeleteLastNode removes and returns the tail node.
func (s *Sequential) DeleteLastNode() (*Node, error) {
	if len(s.order) == 0 {
		return nil, ErrEmptyNetwork
	}
	id := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	n := s.nodes[id]
	delete(s.nodes, id)
	return n, nil
}

// Node looks a node up by id.
func (s *Sequential) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// FirstNode returns the head node, or nil when empty.
func (s *Sequential) FirstNode() *Node {
	if len(s.order) == 0 {
		return nil
	}
	return s.nodes[s.order[0]]
}

// LastNode returns the tail node, or nil when empty.
func (s *Sequential) LastNode() *Node {
	if len(s.order) == 0 {
		return nil
	}
	return s.nodes[s.order[len(s.order)-1]]
}

// NextNode returns the successor of n, or nil when n is the tail or unknown.
func (s *Sequential) NextNode(n *Node) *Node {
	for i, id := range s.order {
		if id == n.ID && i+1 < len(s.order) {
			return s.nodes[s.order[i+1]]
		}
	}
	return nil
}

// InputDim returns the input shape of the head node, or nil when empty.
func (s *Sequential) InputDim() Shape {
	if first := s.FirstNode(); first != nil {
		return first.InDim.Clone()
	}
	return nil
}

// Nodes returns the nodes in chain order. The slice is a copy.
func (s *Sequential) Nodes() []*Node {
	out := make([]*Node, len(s.order))
	for i, id := range s.order {
		out[i] = s.nodes[id]
	}
	return out
}

// IDs returns the node ids in chain order.
func (s *Sequential) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// CountReLU returns the number of ReLU layers, used to size refinement schedules.
func (s *Sequential) CountReLU() int {
	n := 0
	for _, id := range s.order {
		if s.nodes[id].Layer == LayerReLU {
			n++
		}
	}
	return n
}

// Clone returns a deep copy, safe to hand to a background job.
func (s *Sequential) Clone() *Sequential {
	c := NewSequential(s.ID, s.inputID)
	for _, id := range s.order {
		n := s.nodes[id].Clone()
		c.nodes[id] = n
		c.order = append(c.order, id)
	}
	return c
}
