package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const DefaultActivation = "sigmoid"

var (
	ErrInvalidTopology   = errors.New("invalid network topology")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Initializer yields one weight or bias value per call.
type Initializer func() float64

// Uniform draws from [0, 1).
func Uniform(rng *rand.Rand) Initializer {
	return rng.Float64
}

// ZeroCentered draws from [-scale, scale).
func ZeroCentered(rng *rand.Rand, scale float64) Initializer {
	return func() float64 {
		return (rng.Float64()*2 - 1) * scale
	}
}

type layer struct {
	weights    *mat.Dense    // out x in
	biases     *mat.VecDense // out
	activation Activation
}

// Network is a fully connected feed-forward network. Weights and biases are
// mutated only by a Trainer.
type Network struct {
	sizes  []int
	layers []layer
}

type options struct {
	activation       string
	outputActivation string
}

type Option func(*options)

// WithActivation sets the activation family of every layer.
func WithActivation(name string) Option {
	return func(o *options) { o.activation = name }
}

// WithOutputActivation overrides the activation of the last layer only.
func WithOutputActivation(name string) Option {
	return func(o *options) { o.outputActivation = name }
}

// New builds a network with the given layer widths. Every weight, then every
// bias, of each layer in order is drawn from init.
func New(sizes []int, init Initializer, opts ...Option) (*Network, error) {
	if err := validateSizes(sizes); err != nil {
		return nil, err
	}
	if init == nil {
		return nil, errors.New("initializer is required")
	}

	o := options{activation: DefaultActivation}
	for _, opt := range opts {
		opt(&o)
	}
	if o.outputActivation == "" {
		o.outputActivation = o.activation
	}
	hidden, err := GetActivation(o.activation)
	if err != nil {
		return nil, err
	}
	output, err := GetActivation(o.outputActivation)
	if err != nil {
		return nil, err
	}

	n := &Network{
		sizes:  append([]int(nil), sizes...),
		layers: make([]layer, len(sizes)-1),
	}
	for i := range n.layers {
		in, out := sizes[i], sizes[i+1]
		weights := make([]float64, out*in)
		for j := range weights {
			weights[j] = init()
		}
		biases := make([]float64, out)
		for j := range biases {
			biases[j] = init()
		}
		activation := hidden
		if i == len(n.layers)-1 {
			activation = output
		}
		n.layers[i] = layer{
			weights:    mat.NewDense(out, in, weights),
			biases:     mat.NewVecDense(out, biases),
			activation: activation,
		}
	}
	return n, nil
}

func validateSizes(sizes []int) error {
	if len(sizes) < 2 {
		return fmt.Errorf("%w: need at least 2 layer sizes, got %d", ErrInvalidTopology, len(sizes))
	}
	for i, size := range sizes {
		if size <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", ErrInvalidTopology, i, size)
		}
	}
	return nil
}

func (n *Network) InputWidth() int {
	return n.sizes[0]
}

func (n *Network) OutputWidth() int {
	return n.sizes[len(n.sizes)-1]
}

// Sizes returns the layer widths, input first.
func (n *Network) Sizes() []int {
	return append([]int(nil), n.sizes...)
}

// Activations returns the activation name of each weight layer.
func (n *Network) Activations() []string {
	names := make([]string, len(n.layers))
	for i, l := range n.layers {
		names[i] = l.activation.Name
	}
	return names
}

// ParamCount is the total number of weights and biases.
func (n *Network) ParamCount() int {
	total := 0
	for i := 0; i+1 < len(n.sizes); i++ {
		total += n.sizes[i]*n.sizes[i+1] + n.sizes[i+1]
	}
	return total
}

// Calc runs a forward pass. The network is not modified.
func (n *Network) Calc(input []float64) ([]float64, error) {
	if len(input) != n.InputWidth() {
		return nil, fmt.Errorf("%w: input has %d values, network expects %d", ErrDimensionMismatch, len(input), n.InputWidth())
	}
	a := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for _, l := range n.layers {
		_, a = l.forward(a)
	}
	return append([]float64(nil), a.RawVector().Data...), nil
}

// forward returns the pre-activation and activation of the layer.
func (l layer) forward(prev mat.Vector) (*mat.VecDense, *mat.VecDense) {
	out, _ := l.weights.Dims()
	z := mat.NewVecDense(out, nil)
	z.MulVec(l.weights, prev)
	z.AddVec(z, l.biases)
	a := mat.NewVecDense(out, nil)
	for i := 0; i < out; i++ {
		a.SetVec(i, l.activation.Func(z.AtVec(i)))
	}
	return z, a
}

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	out := &Network{
		sizes:  append([]int(nil), n.sizes...),
		layers: make([]layer, len(n.layers)),
	}
	for i, l := range n.layers {
		out.layers[i] = layer{
			weights:    mat.DenseCopyOf(l.weights),
			biases:     mat.VecDenseCopyOf(l.biases),
			activation: l.activation,
		}
	}
	return out
}

// Equal reports whether both networks have the same topology, activations
// and bit-identical parameters.
func (n *Network) Equal(other *Network) bool {
	if n == nil || other == nil {
		return n == other
	}
	if len(n.sizes) != len(other.sizes) {
		return false
	}
	for i := range n.sizes {
		if n.sizes[i] != other.sizes[i] {
			return false
		}
	}
	a, b := n.Params(), other.Params()
	for i := range a {
		if a[i].Activation != b[i].Activation ||
			!sameBits(a[i].Weights, b[i].Weights) ||
			!sameBits(a[i].Biases, b[i].Biases) {
			return false
		}
	}
	return true
}

func sameBits(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
