package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

func newProject(t *testing.T, dim network.Shape) *project.Project {
	t.Helper()
	return project.New("X", dim, nil)
}

func TestAddToNN_ChainsShapes(t *testing.T) {
	p := newProject(t, network.Shape{4})
	assert.False(t, p.Modified())

	fc, err := p.AddToNN(network.LayerFullyConnected, "fc1", map[string]any{"out_features": 3})
	require.NoError(t, err)
	assert.Equal(t, network.Shape{4}, fc.InDim)

	relu, err := p.AddToNN(network.LayerReLU, "relu1", nil)
	require.NoError(t, err)
	assert.Equal(t, network.Shape{3}, relu.InDim)
	assert.True(t, p.Modified())
	assert.Equal(t, []string{"fc1", "relu1"}, p.Network().IDs())
}

func TestAddToNN_ReplicatesWindow(t *testing.T) {
	p := newProject(t, network.Shape{1, 8, 8})
	n, err := p.AddToNN(network.LayerConv, "c", map[string]any{
		"out_channels": 2,
		"kernel_size":  network.Shape{3},
		"stride":       network.Shape{1},
		"padding":      network.Shape{1},
		"dilation":     network.Shape{1},
	})
	require.NoError(t, err)
	assert.Equal(t, network.Shape{3, 3}, n.Params["kernel_size"])
	assert.Equal(t, network.Shape{1, 1, 1, 1}, n.Params["padding"])
	assert.Equal(t, network.Shape{2, 8, 8}, n.OutDim)
}

func TestRefreshNode(t *testing.T) {
	p := newProject(t, network.Shape{4})
	_, err := p.AddToNN(network.LayerFullyConnected, "fc1", map[string]any{"out_features": 3})
	require.NoError(t, err)

	n, err := p.RefreshNode("fc1", map[string]any{"out_features": 5})
	require.NoError(t, err)
	assert.Equal(t, network.Shape{5}, n.OutDim)

	_, err = p.RefreshNode("fc1", map[string]any{"out_features": 0})
	assert.ErrorIs(t, err, network.ErrInvalidParameter)
	last := p.Network().LastNode()
	assert.Equal(t, network.Shape{5}, last.OutDim, "failed refresh keeps the previous node")

	_, err = p.RefreshNode("nope", nil)
	assert.Error(t, err)
}

func TestSpliceOut(t *testing.T) {
	p := newProject(t, network.Shape{4})
	_, err := p.AddToNN(network.LayerFullyConnected, "fc1", map[string]any{"out_features": 3})
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerReLU, "relu1", nil)
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerFullyConnected, "fc2", map[string]any{"out_features": 2})
	require.NoError(t, err)

	require.NoError(t, p.SpliceOut("relu1"))
	assert.Equal(t, []string{"fc1", "fc2"}, p.Network().IDs())

	require.NoError(t, p.SpliceOut("fc1"))
	assert.Equal(t, []string{"fc2"}, p.Network().IDs())
	fc2, _ := p.Network().Node("fc2")
	assert.Equal(t, network.Shape{4}, fc2.InDim)
	assert.Equal(t, 4, fc2.Params["in_features"])
}

func TestSpliceOut_RestoresOnMismatch(t *testing.T) {
	p := newProject(t, network.Shape{4})
	_, err := p.AddToNN(network.LayerFullyConnected, "fc1", map[string]any{"out_features": 3})
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerReshape, "rs", map[string]any{"shape": []int{3, 1}})
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerReLU, "relu", nil)
	require.NoError(t, err)

	// Without fc1 the reshape would receive 4 values.
	err = p.SpliceOut("fc1")
	assert.ErrorIs(t, err, network.ErrInvalidParameter)
	assert.Equal(t, []string{"fc1", "rs", "relu"}, p.Network().IDs())
	assert.Equal(t, network.Shape{3, 1}, p.Network().LastNode().OutDim)

	assert.Error(t, p.SpliceOut("missing"))
}

func TestReplaceNetwork(t *testing.T) {
	p := newProject(t, network.Shape{2})
	_, err := p.AddToNN(network.LayerFullyConnected, "fc1", map[string]any{"out_features": 2})
	require.NoError(t, err)

	trained := p.Network().Clone()
	require.NoError(t, p.ReplaceNetwork(trained))

	stale := p.Network().Clone()
	_, err = p.AddToNN(network.LayerReLU, "relu", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.ReplaceNetwork(stale), project.ErrStale)
}

func TestSaveOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnist.yaml")

	p := newProject(t, network.Shape{1, 4, 4})
	_, err := p.AddToNN(network.LayerConv, "c1", map[string]any{
		"out_channels": 2, "kernel_size": network.Shape{3}, "padding": network.Shape{1},
	})
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerFlatten, "flat", nil)
	require.NoError(t, err)
	_, err = p.AddToNN(network.LayerFullyConnected, "fc", map[string]any{"out_features": 3, "bias": false})
	require.NoError(t, err)

	pre := &property.Container{SMT: "(assert (<= X_0-0-0 1))\n", Variables: []string{"X_0-0-0"}}
	post := &property.Container{SMT: "(assert (<= fc_0 fc_1))\n", Variables: []string{"fc_0", "fc_1", "fc_2"}}
	require.NoError(t, p.Save(path, pre, post))
	assert.False(t, p.Modified())
	assert.Equal(t, "mnist", p.Network().ID)

	q := newProject(t, network.Shape{1})
	require.NoError(t, q.Open(path))
	assert.Equal(t, path, q.Path())
	assert.Equal(t, network.Shape{1, 4, 4}, q.InputDim())
	assert.Equal(t, []string{"c1", "flat", "fc"}, q.Network().IDs())
	fc, _ := q.Network().Node("fc")
	assert.Equal(t, network.Shape{3}, fc.OutDim)
	assert.Equal(t, false, fc.Params["bias"])

	props, err := project.LoadProperties(project.PropertiesPath(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "fc"}, property.Groups(props))
}

func TestSave_Errors(t *testing.T) {
	p := newProject(t, network.Shape{2})
	assert.ErrorIs(t, p.Save(filepath.Join(t.TempDir(), "n.yaml"), nil, nil), network.ErrEmptyNetwork)

	_, err := p.AddToNN(network.LayerReLU, "r", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Save("", nil, nil), project.ErrNoPath)
	assert.ErrorIs(t, p.Save(filepath.Join(t.TempDir(), "n.onnx"), nil, nil), project.ErrUnsupportedFormat)
}

func TestOpen_BadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v1\ninput: {id: X, dim: [2]}\nnodes:\n  - {id: a, layer: NopeNode}\n"), 0o644))

	p := newProject(t, network.Shape{2})
	err := p.Open(path)
	assert.ErrorIs(t, err, network.ErrUnknownLayer)
	assert.True(t, p.Network().IsEmpty())
}

func TestPropertiesPath(t *testing.T) {
	assert.Equal(t, "/tmp/net.smt2", project.PropertiesPath("/tmp/net.yaml"))
	assert.Equal(t, "net.smt2", project.PropertiesPath("net"))
}

func TestSetInput(t *testing.T) {
	p := newProject(t, network.Shape{2})
	require.NoError(t, p.SetInput("img", network.Shape{1, 28, 28}))
	assert.Equal(t, "img", p.Network().InputID())

	_, err := p.AddToNN(network.LayerFlatten, "f", nil)
	require.NoError(t, err)
	assert.Error(t, p.SetInput("Z", network.Shape{3}))
}
