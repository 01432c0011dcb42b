// Package project owns the sequential network behind an editing session: it
// builds nodes for the scene, tracks unsaved changes and reads and writes the
// network and its properties on disk.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/never2/internal/metrics"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no format handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoPath is returned by Save when the project has never been given a file name.
	ErrNoPath = errors.New("project has no file name")
	// ErrStale is returned when a network computed in the background no longer
	// matches the one being edited.
	ErrStale = errors.New("network changed while the job was running")
)

// Project holds the network edited by a scene. It is not safe for concurrent
// use; background jobs work on a Clone of the network.
type Project struct {
	nn       *network.Sequential
	inputDim network.Shape
	path     string
	modified bool
	formats  *Registry
	log      *slog.Logger
}

// New creates an empty project whose network input is named inputID.
func New(inputID string, inputDim network.Shape, formats *Registry) *Project {
	if formats == nil {
		formats = DefaultRegistry()
	}
	return &Project{
		nn:       network.NewSequential("net", inputID),
		inputDim: inputDim.Clone(),
		formats:  formats,
		log:      slog.Default(),
	}
}

// SetLogger replaces the logger.
func (p *Project) SetLogger(l *slog.Logger) { p.log = l }

// Network returns the live network.
func (p *Project) Network() *network.Sequential { return p.nn }

// InputDim returns the shape of the network input.
func (p *Project) InputDim() network.Shape { return p.inputDim.Clone() }

// Path returns the file the project was opened from or last saved to.
func (p *Project) Path() string { return p.path }

// Modified reports whether the network has unsaved changes.
func (p *Project) Modified() bool { return p.modified && !p.nn.IsEmpty() }

// Reset discards the network and starts over with an empty one.
func (p *Project) Reset(inputID string, inputDim network.Shape) {
	p.nn = network.NewSequential("net", inputID)
	p.inputDim = inputDim.Clone()
	p.path = ""
	p.modified = false
}

// SetInput renames the input tensor and changes its shape. The network must
// be empty.
func (p *Project) SetInput(identifier string, dim network.Shape) error {
	if !p.nn.IsEmpty() {
		return fmt.Errorf("cannot change the input of a network with %d nodes", p.nn.Len())
	}
	if identifier != p.nn.InputID() {
		p.nn = network.NewSequential(p.nn.ID, identifier)
	}
	p.inputDim = dim.Clone()
	return nil
}

// lastOutDim is the shape the next appended node consumes.
func (p *Project) lastOutDim() network.Shape {
	if last := p.nn.LastNode(); last != nil {
		return last.OutDim.Clone()
	}
	return p.inputDim.Clone()
}

// AddToNN builds a node of the given layer type fed by the current last
// output and appends it to the network.
func (p *Project) AddToNN(layer, id string, data map[string]any) (*network.Node, error) {
	in := p.lastOutDim()
	n, err := network.NewLayerNode(layer, id, replicateWindow(layer, data, len(in)-1), in)
	if err != nil {
		return nil, err
	}
	if err := p.nn.AppendNode(n); err != nil {
		return nil, err
	}
	p.modified = true
	return n, nil
}

// LinkToNN appends an already built node.
func (p *Project) LinkToNN(n *network.Node) error {
	if err := p.nn.AppendNode(n); err != nil {
		return err
	}
	p.modified = true
	return nil
}

// DeleteLastNode removes the tail node.
func (p *Project) DeleteLastNode() (*network.Node, error) {
	n, err := p.nn.DeleteLastNode()
	if err != nil {
		return nil, err
	}
	p.modified = true
	return n, nil
}

// RefreshNode rebuilds the tail node id with new parameters. On failure the
// previous node is put back.
func (p *Project) RefreshNode(id string, data map[string]any) (*network.Node, error) {
	last := p.nn.LastNode()
	if last == nil || last.ID != id {
		return nil, fmt.Errorf("node %q is not the last node of the network", id)
	}
	old, err := p.nn.DeleteLastNode()
	if err != nil {
		return nil, err
	}
	n, err := p.AddToNN(old.Layer, id, data)
	if err != nil {
		if rerr := p.nn.AppendNode(old); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return n, nil
}

// SpliceOut removes node id from the middle of the chain. Its successors are
// rebuilt from their stored parameters against the new shapes; if any of
// them no longer fits, the network is restored and the error returned.
func (p *Project) SpliceOut(id string) error {
	ids := p.nn.IDs()
	idx := slices.Index(ids, id)
	if idx < 0 {
		return fmt.Errorf("unknown node %q", id)
	}
	var popped []*network.Node
	for p.nn.Len() > idx {
		n, _ := p.nn.DeleteLastNode()
		popped = append(popped, n)
	}
	slices.Reverse(popped) // popped[0] is the removed node

	var rebuilt int
	for _, n := range popped[1:] {
		rn, err := network.NewLayerNode(n.Layer, n.ID, n.Params, p.lastOutDim())
		if err == nil {
			err = p.nn.AppendNode(rn)
		}
		if err != nil {
			for ; rebuilt > 0; rebuilt-- {
				p.nn.DeleteLastNode()
			}
			for _, o := range popped {
				p.nn.AppendNode(o)
			}
			return fmt.Errorf("splice out %s: %s no longer fits: %w", id, n.ID, err)
		}
		rebuilt++
	}
	p.modified = true
	return nil
}

// ReplaceNetwork swaps in a network produced by a background job, such as
// a trained copy. It is refused when the node ids differ from the live ones.
func (p *Project) ReplaceNetwork(nn *network.Sequential) error {
	if !slices.Equal(nn.IDs(), p.nn.IDs()) || nn.InputID() != p.nn.InputID() {
		return ErrStale
	}
	p.nn = nn
	p.modified = true
	return nil
}

// replicateWindow expands single-valued kernel, stride, dilation and padding
// arguments to the rank of the input: k values each, 2k for padding.
func replicateWindow(layer string, data map[string]any, k int) map[string]any {
	switch layer {
	case network.LayerConv, network.LayerMaxPool, network.LayerAveragePool:
	default:
		return data
	}
	if k < 1 {
		return data
	}
	out := make(map[string]any, len(data))
	for name, v := range data {
		n := 0
		switch name {
		case "kernel_size", "stride", "dilation":
			n = k
		case "padding":
			n = 2 * k
		}
		if s, err := network.ToShape(v); n > 0 && err == nil && len(s) == 1 && n > 1 {
			r := make(network.Shape, n)
			for i := range r {
				r[i] = s[0]
			}
			v = r
		}
		out[name] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Open replaces the network with the one stored at path.
func (p *Project) Open(path string) error {
	nn, in, err := p.Read(path)
	if err != nil {
		return err
	}
	p.Adopt(path, nn, in)
	return nil
}

// Read decodes the network stored at path without touching the project.
func (p *Project) Read(path string) (*network.Sequential, network.Shape, error) {
	f, err := p.formats.ForPath(path)
	if err != nil {
		return nil, nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		metrics.ProjectIO.WithLabelValues("open", "error").Inc()
		return nil, nil, err
	}
	defer fh.Close()

	nn, in, err := f.Read(fh)
	if err != nil {
		metrics.ProjectIO.WithLabelValues("open", "error").Inc()
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	if nn.InputID() == "" {
		nn.SetInputID("X")
	}
	return nn, in, nil
}

// Adopt makes nn, read from path, the network being edited.
func (p *Project) Adopt(path string, nn *network.Sequential, inputDim network.Shape) {
	p.nn, p.inputDim, p.path, p.modified = nn, inputDim.Clone(), path, false
	metrics.ProjectIO.WithLabelValues("open", "ok").Inc()
	p.log.Info("network opened", "path", path, "nodes", nn.Len())
}

// Save writes the network to path, or to the current path when path is
// empty. The network is renamed after the file. When a precondition or a
// postcondition is given, both are written next to it as an SMT-LIB file
// sharing the base name.
func (p *Project) Save(path string, pre, post *property.Container) error {
	if p.nn.IsEmpty() {
		return network.ErrEmptyNetwork
	}
	if path == "" {
		path = p.path
	}
	if path == "" {
		return ErrNoPath
	}
	f, err := p.formats.ForPath(path)
	if err != nil {
		return err
	}

	base := filepath.Base(path)
	p.nn.ID = strings.TrimSuffix(base, filepath.Ext(base))
	if err := writeFile(path, func(fh *os.File) error { return f.Write(fh, p.nn, p.inputDim) }); err != nil {
		metrics.ProjectIO.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save %s: %w", path, err)
	}
	if pre != nil || post != nil {
		if err := SaveProperties(PropertiesPath(path), pre, post); err != nil {
			metrics.ProjectIO.WithLabelValues("save", "error").Inc()
			return err
		}
	}
	p.path, p.modified = path, false
	metrics.ProjectIO.WithLabelValues("save", "ok").Inc()
	p.log.Info("network saved", "path", path, "format", f.Name(), "pre", pre != nil, "post", post != nil)
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(fh); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
