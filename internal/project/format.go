package project

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/never2/internal/network"
)

// Format reads and writes networks in one on-disk representation.
type Format interface {
	// Name is the key the format is registered under.
	Name() string
	// Extensions lists the file extensions handled, without the dot.
	Extensions() []string
	Read(r io.Reader) (*network.Sequential, network.Shape, error)
	Write(w io.Writer, nn *network.Sequential, inputDim network.Shape) error
}

// Registry maps file extensions to formats.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Format
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Format)}
}

// DefaultRegistry returns a registry holding the native YAML format.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(YAMLFormat{})
	return r
}

// Register adds a format. Panics on a duplicate extension to surface misconfiguration early.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range f.Extensions() {
		ext = strings.ToLower(ext)
		if prev, exists := r.byExt[ext]; exists {
			panic(fmt.Sprintf("format registry: extension %q claimed by %s and %s", ext, prev.Name(), f.Name()))
		}
		r.byExt[ext] = f
	}
}

// ForPath returns the format handling the extension of path.
func (r *Registry) ForPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Extensions returns every registered extension in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for k := range r.byExt {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
