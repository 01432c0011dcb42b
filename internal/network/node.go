package network

// Node is one concrete layer of a sequential network.
type Node struct {
	ID     string
	Layer  string
	Params map[string]any
	InDim  Shape
	OutDim Shape
}

// Clone deep-copies the node. Shape and []int parameters are copied, scalars are shared by value.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	params := make(map[string]any, len(n.Params))
	for k, v := range n.Params {
		switch t := v.(type) {
		case Shape:
			params[k] = t.Clone()
		case []int:
			c := make([]int, len(t))
			copy(c, t)
			params[k] = c
		default:
			params[k] = v
		}
	}
	return &Node{
		ID:     n.ID,
		Layer:  n.Layer,
		Params: params,
		InDim:  n.InDim.Clone(),
		OutDim: n.OutDim.Clone(),
	}
}
