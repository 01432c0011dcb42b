package network

import (
	"fmt"
	"sort"
)

// Layer type names. They match the class names used by network files so that a
// node read from disk maps back onto the same builder.
const (
	LayerFullyConnected = "FullyConnectedNode"
	LayerReLU           = "ReLUNode"
	LayerELU            = "ELUNode"
	LayerLeakyReLU      = "LeakyReLUNode"
	LayerSigmoid        = "SigmoidNode"
	LayerTanh           = "TanhNode"
	LayerSoftMax        = "SoftMaxNode"
	LayerBatchNorm      = "BatchNormNode"
	LayerDropout        = "DropoutNode"
	LayerFlatten        = "FlattenNode"
	LayerReshape        = "ReshapeNode"
	LayerConv           = "ConvNode"
	LayerMaxPool        = "MaxPoolNode"
	LayerAveragePool    = "AveragePoolNode"
)

// builder validates params against the input shape, fills in derived
// parameters and returns the output shape.
type builder func(p map[string]any, in Shape) (Shape, error)

var builders = map[string]builder{
	LayerFullyConnected: buildFullyConnected,
	LayerReLU:           identity,
	LayerSigmoid:        identity,
	LayerTanh:           identity,
	LayerELU:            buildELU,
	LayerLeakyReLU:      buildLeakyReLU,
	LayerSoftMax:        buildSoftMax,
	LayerBatchNorm:      buildBatchNorm,
	LayerDropout:        buildDropout,
	LayerFlatten:        buildFlatten,
	LayerReshape:        buildReshape,
	LayerConv:           buildConv,
	LayerMaxPool:        buildMaxPool,
	LayerAveragePool:    buildAveragePool,
}

// Layers returns every supported layer type, sorted.
func Layers() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewLayerNode constructs a node of the given layer type fed by a tensor of shape in.
// params is copied; derived parameters (in_features, in_channels, ...) are added to the copy.
func NewLayerNode(layer, id string, params map[string]any, in Shape) (*Node, error) {
	b, ok := builders[layer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}
	if len(in) == 0 || in.Size() <= 0 {
		return nil, fmt.Errorf("%s %s: %w: input shape %v is empty", layer, id, ErrInvalidParameter, in)
	}
	p := make(map[string]any, len(params)+2)
	for k, v := range params {
		p[k] = v
	}
	out, err := b(p, in)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", layer, id, err)
	}
	return &Node{ID: id, Layer: layer, Params: p, InDim: in.Clone(), OutDim: out}, nil
}

func identity(_ map[string]any, in Shape) (Shape, error) {
	return in.Clone(), nil
}

func buildFullyConnected(p map[string]any, in Shape) (Shape, error) {
	outFeatures, err := intParam(p, "out_features", 0)
	if err != nil {
		return nil, err
	}
	if outFeatures <= 0 {
		return nil, invalid("out_features must be positive, got %d", outFeatures)
	}
	if _, err := boolParam(p, "bias", true); err != nil {
		return nil, err
	}
	p["in_features"] = in[len(in)-1]
	out := in.Clone()
	out[len(out)-1] = outFeatures
	return out, nil
}

func buildELU(p map[string]any, in Shape) (Shape, error) {
	if _, err := floatParam(p, "alpha", 1.0); err != nil {
		return nil, err
	}
	return in.Clone(), nil
}

func buildLeakyReLU(p map[string]any, in Shape) (Shape, error) {
	if _, err := floatParam(p, "negative_slope", 0.01); err != nil {
		return nil, err
	}
	return in.Clone(), nil
}

func buildSoftMax(p map[string]any, in Shape) (Shape, error) {
	axis, err := intParam(p, "axis", -1)
	if err != nil {
		return nil, err
	}
	if axis < -len(in) || axis >= len(in) {
		return nil, invalid("axis %d out of range for rank %d", axis, len(in))
	}
	return in.Clone(), nil
}

func buildBatchNorm(p map[string]any, in Shape) (Shape, error) {
	eps, err := floatParam(p, "eps", 1e-5)
	if err != nil {
		return nil, err
	}
	if eps <= 0 {
		return nil, invalid("eps must be positive, got %g", eps)
	}
	momentum, err := floatParam(p, "momentum", 0.1)
	if err != nil {
		return nil, err
	}
	if momentum < 0 || momentum > 1 {
		return nil, invalid("momentum must be in [0, 1], got %g", momentum)
	}
	p["num_features"] = in[0]
	return in.Clone(), nil
}

func buildDropout(p map[string]any, in Shape) (Shape, error) {
	prob, err := floatParam(p, "p", 0.5)
	if err != nil {
		return nil, err
	}
	if prob < 0 || prob >= 1 {
		return nil, invalid("p must be in [0, 1), got %g", prob)
	}
	return in.Clone(), nil
}

func buildFlatten(p map[string]any, in Shape) (Shape, error) {
	axis, err := intParam(p, "axis", 0)
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis > len(in) {
		return nil, invalid("axis %d out of range for rank %d", axis, len(in))
	}
	if axis == 0 {
		return Shape{in.Size()}, nil
	}
	return Shape{in[:axis].Size(), in[axis:].Size()}, nil
}

func buildReshape(p map[string]any, in Shape) (Shape, error) {
	target, err := shapeParam(p, "shape", nil)
	if err != nil {
		return nil, err
	}
	if len(target) == 0 {
		return nil, invalid("shape is required")
	}
	out := target.Clone()
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1 && infer >= 0:
			return nil, invalid("shape %v has more than one -1", target)
		case d == -1:
			infer = i
		case d <= 0:
			return nil, invalid("shape %v has a non-positive extent", target)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if in.Size()%known != 0 {
			return nil, invalid("cannot reshape %v into %v", in, target)
		}
		out[infer] = in.Size() / known
	}
	if out.Size() != in.Size() {
		return nil, invalid("cannot reshape %v into %v", in, target)
	}
	return out, nil
}

// window holds the shared spatial arguments of convolution and pooling layers.
type window struct {
	kernel, stride, padding, dilation Shape
	ceil                              bool
}

func readWindow(p map[string]any, in Shape, withDilation bool) (window, error) {
	var w window
	k := len(in) - 1
	if k < 1 {
		return w, invalid("input shape %v has no spatial dimensions", in)
	}
	var err error
	if w.kernel, err = shapeParam(p, "kernel_size", nil); err != nil {
		return w, err
	}
	if w.stride, err = shapeParam(p, "stride", ones(k)); err != nil {
		return w, err
	}
	if w.padding, err = shapeParam(p, "padding", make(Shape, 2*k)); err != nil {
		return w, err
	}
	w.dilation = ones(k)
	if withDilation {
		if w.dilation, err = shapeParam(p, "dilation", ones(k)); err != nil {
			return w, err
		}
	}
	if w.ceil, err = boolParam(p, "ceil_mode", false); err != nil {
		return w, err
	}
	if len(w.kernel) != k || len(w.stride) != k || len(w.dilation) != k {
		return w, invalid("kernel_size, stride and dilation need %d values for input %v", k, in)
	}
	if len(w.padding) != 2*k {
		return w, invalid("padding needs %d values for input %v", 2*k, in)
	}
	return w, nil
}

func (w window) apply(in Shape) (Shape, error) {
	k := len(in) - 1
	out := make(Shape, len(in))
	out[0] = in[0]
	for i := 0; i < k; i++ {
		if w.kernel[i] <= 0 || w.stride[i] <= 0 || w.dilation[i] <= 0 {
			return nil, invalid("kernel_size, stride and dilation must be positive")
		}
		if w.padding[i] < 0 || w.padding[i+k] < 0 {
			return nil, invalid("padding must be non-negative")
		}
		span := in[i+1] + w.padding[i] + w.padding[i+k] - w.dilation[i]*(w.kernel[i]-1) - 1
		if span < 0 {
			return nil, invalid("kernel larger than padded input along axis %d", i+1)
		}
		d := span/w.stride[i] + 1
		if w.ceil && span%w.stride[i] != 0 {
			d++
		}
		out[i+1] = d
	}
	return out, nil
}

func (w window) store(p map[string]any, withDilation bool) {
	p["kernel_size"] = w.kernel
	p["stride"] = w.stride
	p["padding"] = w.padding
	if withDilation {
		p["dilation"] = w.dilation
	}
}

func buildConv(p map[string]any, in Shape) (Shape, error) {
	outChannels, err := intParam(p, "out_channels", 0)
	if err != nil {
		return nil, err
	}
	if outChannels <= 0 {
		return nil, invalid("out_channels must be positive, got %d", outChannels)
	}
	groups, err := intParam(p, "groups", 1)
	if err != nil {
		return nil, err
	}
	if groups <= 0 || in[0]%groups != 0 || outChannels%groups != 0 {
		return nil, invalid("groups %d must divide in_channels %d and out_channels %d", groups, in[0], outChannels)
	}
	if _, err := boolParam(p, "has_bias", false); err != nil {
		return nil, err
	}
	w, err := readWindow(p, in, true)
	if err != nil {
		return nil, err
	}
	out, err := w.apply(in)
	if err != nil {
		return nil, err
	}
	w.store(p, true)
	p["in_channels"] = in[0]
	out[0] = outChannels
	return out, nil
}

func buildMaxPool(p map[string]any, in Shape) (Shape, error) {
	if _, err := boolParam(p, "return_indices", false); err != nil {
		return nil, err
	}
	w, err := readWindow(p, in, true)
	if err != nil {
		return nil, err
	}
	out, err := w.apply(in)
	if err != nil {
		return nil, err
	}
	w.store(p, true)
	return out, nil
}

func buildAveragePool(p map[string]any, in Shape) (Shape, error) {
	if _, err := boolParam(p, "count_include_pad", false); err != nil {
		return nil, err
	}
	w, err := readWindow(p, in, false)
	if err != nil {
		return nil, err
	}
	out, err := w.apply(in)
	if err != nil {
		return nil, err
	}
	w.store(p, false)
	return out, nil
}

func ones(n int) Shape {
	s := make(Shape, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}

// intParam reads an integer argument, storing def when absent.
func intParam(p map[string]any, name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		p[name] = def
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		p[name] = int(n)
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, invalid("%s must be an integer, got %g", name, n)
		}
		p[name] = int(n)
		return int(n), nil
	}
	return 0, invalid("%s must be an integer, got %T", name, v)
}

func floatParam(p map[string]any, name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		p[name] = def
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		p[name] = float64(n)
		return float64(n), nil
	case int:
		p[name] = float64(n)
		return float64(n), nil
	}
	return 0, invalid("%s must be a number, got %T", name, v)
}

func boolParam(p map[string]any, name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		p[name] = def
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalid("%s must be a boolean, got %T", name, v)
	}
	return b, nil
}

// shapeParam reads a tuple argument. A bare integer is accepted as a 1-tuple.
func shapeParam(p map[string]any, name string, def Shape) (Shape, error) {
	v, ok := p[name]
	if !ok || v == nil {
		if def == nil {
			return nil, invalid("%s is required", name)
		}
		p[name] = def
		return def, nil
	}
	s, err := ToShape(v)
	if err != nil {
		return nil, invalid("%s: %v", name, err)
	}
	p[name] = s
	return s, nil
}

// ToShape converts the tuple-like values produced by parameter parsing or
// YAML decoding into a Shape.
func ToShape(v any) (Shape, error) {
	switch t := v.(type) {
	case Shape:
		return t.Clone(), nil
	case []int:
		return Shape(t).Clone(), nil
	case int:
		return Shape{t}, nil
	case []any:
		out := make(Shape, len(t))
		for i, e := range t {
			switch n := e.(type) {
			case int:
				out[i] = n
			case float64:
				if n != float64(int(n)) {
					return nil, fmt.Errorf("element %d is not an integer", i)
				}
				out[i] = int(n)
			default:
				return nil, fmt.Errorf("element %d has type %T", i, e)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a tuple, got %T", v)
}
