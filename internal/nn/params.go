package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LayerParams is a copy of one weight layer's parameters. Weights are
// row-major with Out rows of In columns.
type LayerParams struct {
	In         int
	Out        int
	Weights    []float64
	Biases     []float64
	Activation string
}

// Params copies every layer's parameters, input layer first.
func (n *Network) Params() []LayerParams {
	out := make([]LayerParams, len(n.layers))
	for i, l := range n.layers {
		rows, cols := l.weights.Dims()
		weights := make([]float64, 0, rows*cols)
		for r := 0; r < rows; r++ {
			weights = append(weights, l.weights.RawRowView(r)...)
		}
		out[i] = LayerParams{
			In:         cols,
			Out:        rows,
			Weights:    weights,
			Biases:     append([]float64(nil), l.biases.RawVector().Data...),
			Activation: l.activation.Name,
		}
	}
	return out
}

// FromParams rebuilds a network from layer parameters. Consecutive layers
// must chain: layer i's Out equals layer i+1's In.
func FromParams(layers []LayerParams) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrInvalidTopology)
	}

	sizes := make([]int, 0, len(layers)+1)
	sizes = append(sizes, layers[0].In)
	for i, p := range layers {
		if i > 0 && p.In != layers[i-1].Out {
			return nil, fmt.Errorf("%w: layer %d input %d does not match previous output %d", ErrInvalidTopology, i, p.In, layers[i-1].Out)
		}
		sizes = append(sizes, p.Out)
	}
	if err := validateSizes(sizes); err != nil {
		return nil, err
	}

	n := &Network{sizes: sizes, layers: make([]layer, len(layers))}
	for i, p := range layers {
		if len(p.Weights) != p.In*p.Out {
			return nil, fmt.Errorf("%w: layer %d has %d weights, want %d", ErrDimensionMismatch, i, len(p.Weights), p.In*p.Out)
		}
		if len(p.Biases) != p.Out {
			return nil, fmt.Errorf("%w: layer %d has %d biases, want %d", ErrDimensionMismatch, i, len(p.Biases), p.Out)
		}
		activation, err := GetActivation(p.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		n.layers[i] = layer{
			weights:    mat.NewDense(p.Out, p.In, append([]float64(nil), p.Weights...)),
			biases:     mat.NewVecDense(p.Out, append([]float64(nil), p.Biases...)),
			activation: activation,
		}
	}
	return n, nil
}
