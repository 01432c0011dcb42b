package network_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/never2/internal/network"
)

func TestNewLayerNode(t *testing.T) {
	t.Run("fully connected replaces last axis", func(t *testing.T) {
		n, err := network.NewLayerNode(network.LayerFullyConnected, "fc", map[string]any{"out_features": 10}, network.Shape{784})
		require.NoError(t, err)
		assert.Equal(t, network.Shape{10}, n.OutDim)
		assert.Equal(t, 784, n.Params["in_features"])
		assert.Equal(t, true, n.Params["bias"])
	})

	t.Run("fully connected rejects zero outputs", func(t *testing.T) {
		_, err := network.NewLayerNode(network.LayerFullyConnected, "fc", map[string]any{"out_features": 0}, network.Shape{4})
		assert.ErrorIs(t, err, network.ErrInvalidParameter)
	})

	t.Run("conv output shape", func(t *testing.T) {
		n, err := network.NewLayerNode(network.LayerConv, "c1", map[string]any{
			"out_channels": 8,
			"kernel_size":  network.Shape{3, 3},
			"stride":       network.Shape{1, 1},
			"padding":      network.Shape{1, 1, 1, 1},
			"dilation":     network.Shape{1, 1},
		}, network.Shape{3, 32, 32})
		require.NoError(t, err)
		assert.Equal(t, network.Shape{8, 32, 32}, n.OutDim)
		assert.Equal(t, 3, n.Params["in_channels"])
	})

	t.Run("max pool halves spatial dims", func(t *testing.T) {
		n, err := network.NewLayerNode(network.LayerMaxPool, "p", map[string]any{
			"kernel_size": network.Shape{2, 2},
			"stride":      network.Shape{2, 2},
		}, network.Shape{8, 32, 32})
		require.NoError(t, err)
		assert.Equal(t, network.Shape{8, 16, 16}, n.OutDim)
	})

	t.Run("kernel rank must match input", func(t *testing.T) {
		_, err := network.NewLayerNode(network.LayerAveragePool, "p", map[string]any{
			"kernel_size": network.Shape{2},
		}, network.Shape{8, 32, 32})
		assert.ErrorIs(t, err, network.ErrInvalidParameter)
	})

	t.Run("reshape infers one extent", func(t *testing.T) {
		n, err := network.NewLayerNode(network.LayerReshape, "r", map[string]any{
			"shape": []any{2, -1},
		}, network.Shape{3, 4})
		require.NoError(t, err)
		assert.Equal(t, network.Shape{2, 6}, n.OutDim)
	})

	t.Run("flatten", func(t *testing.T) {
		n, err := network.NewLayerNode(network.LayerFlatten, "f", nil, network.Shape{3, 4, 5})
		require.NoError(t, err)
		assert.Equal(t, network.Shape{60}, n.OutDim)
	})

	t.Run("unknown layer", func(t *testing.T) {
		_, err := network.NewLayerNode("LSTMNode", "x", nil, network.Shape{1})
		assert.ErrorIs(t, err, network.ErrUnknownLayer)
	})
}

func TestSequential(t *testing.T) {
	nn := network.NewSequential("net", "X")
	assert.True(t, nn.IsEmpty())

	_, err := nn.DeleteLastNode()
	assert.ErrorIs(t, err, network.ErrEmptyNetwork)

	fc, err := network.NewLayerNode(network.LayerFullyConnected, "fc", map[string]any{"out_features": 4}, network.Shape{2})
	require.NoError(t, err)
	require.NoError(t, nn.AppendNode(fc))

	relu, err := network.NewLayerNode(network.LayerReLU, "relu", nil, fc.OutDim)
	require.NoError(t, err)
	require.NoError(t, nn.AppendNode(relu))

	bad, err := network.NewLayerNode(network.LayerReLU, "bad", nil, network.Shape{7})
	require.NoError(t, err)
	assert.ErrorIs(t, nn.AppendNode(bad), network.ErrShapeMismatch)
	assert.ErrorIs(t, nn.AppendNode(relu), network.ErrDuplicateNode)

	assert.Equal(t, 2, nn.Len())
	assert.Equal(t, "fc", nn.FirstNode().ID)
	assert.Equal(t, "relu", nn.NextNode(fc).ID)
	assert.Nil(t, nn.NextNode(relu))
	assert.Equal(t, network.Shape{2}, nn.InputDim())
	assert.Equal(t, 1, nn.CountReLU())

	c := nn.Clone()
	last, err := c.DeleteLastNode()
	require.NoError(t, err)
	assert.Equal(t, "relu", last.ID)
	assert.Equal(t, 2, nn.Len(), "clone must not share the node order")
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "(3,)", network.Shape{3}.String())
	assert.Equal(t, "(1, 28, 28)", network.Shape{1, 28, 28}.String())
	assert.Equal(t, 784, network.Shape{1, 28, 28}.Size())
}
