package scene

import "github.com/google/uuid"

// Edge connects the output socket of one block to the input socket of the
// next. Endpoints are block ids; positions are cached for drawing.
type Edge struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
	Src   Point  `json:"src"`
	Dst   Point  `json:"dst"`
}

func outputSocket(b Block) *Socket {
	_, out := b.sockets()
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

func inputSocket(b Block) *Socket {
	in, _ := b.sockets()
	if len(in) == 0 {
		return nil
	}
	return in[0]
}

// connect plugs a new edge between from's output and to's input. Whatever
// occupied either socket is disconnected first.
func (s *Scene) connect(from, to Block) *Edge {
	out, in := outputSocket(from), inputSocket(to)
	if out.Edge != "" {
		s.disconnect(out.Edge)
	}
	if in.Edge != "" {
		s.disconnect(in.Edge)
	}
	e := &Edge{ID: uuid.NewString(), From: from.ID(), To: to.ID()}
	out.Edge, in.Edge = e.ID, e.ID
	s.edges[e.ID] = e
	s.placeEdge(e)
	return e
}

// disconnect removes an edge and clears both sockets that referenced it.
func (s *Scene) disconnect(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	if b, ok := s.blocks[e.From]; ok {
		if out := outputSocket(b); out != nil && out.Edge == id {
			out.Edge = ""
		}
	}
	if b, ok := s.blocks[e.To]; ok {
		if in := inputSocket(b); in != nil && in.Edge == id {
			in.Edge = ""
		}
	}
	delete(s.edges, id)
}

// disconnectAll drops every edge attached to b.
func (s *Scene) disconnectAll(b Block) {
	in, out := b.sockets()
	for _, sk := range append(append([]*Socket{}, in...), out...) {
		if sk.Edge != "" {
			s.disconnect(sk.Edge)
		}
	}
}

func (s *Scene) placeEdge(e *Edge) {
	if from, ok := s.blocks[e.From]; ok {
		e.Src = anchorOut(from)
	}
	if to, ok := s.blocks[e.To]; ok {
		e.Dst = anchorIn(to)
	}
}

func anchorOut(b Block) Point {
	p := b.Pos()
	return Point{p.X + BlockWidth, p.Y + BlockHeight/2}
}

func anchorIn(b Block) Point {
	p := b.Pos()
	return Point{p.X, p.Y + BlockHeight/2}
}

// edgeInto returns the edge plugged into b's input socket, or nil.
func (s *Scene) edgeInto(b Block) *Edge {
	if in := inputSocket(b); in != nil && in.Edge != "" {
		return s.edges[in.Edge]
	}
	return nil
}
