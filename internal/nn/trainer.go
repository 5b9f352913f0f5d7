package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrDiverged = errors.New("network parameters diverged")

// Trainer applies online stochastic gradient descent, one example per Fit.
type Trainer struct {
	LearningRate float64
}

// Fit runs one backpropagation step on a single example and updates the
// network in place. Deltas for every layer are computed from the weights as
// they were before the step. ErrDiverged is returned, after the update, if
// any parameter became NaN or infinite.
func (t Trainer) Fit(n *Network, input, expected []float64) error {
	if len(input) != n.InputWidth() {
		return fmt.Errorf("%w: input has %d values, network expects %d", ErrDimensionMismatch, len(input), n.InputWidth())
	}
	if len(expected) != n.OutputWidth() {
		return fmt.Errorf("%w: expected output has %d values, network produces %d", ErrDimensionMismatch, len(expected), n.OutputWidth())
	}

	depth := len(n.layers)
	// activations[0] is the input; activations[l+1] is layer l's output.
	activations := make([]*mat.VecDense, depth+1)
	preActivations := make([]*mat.VecDense, depth)
	activations[0] = mat.NewVecDense(len(input), append([]float64(nil), input...))
	for l, lay := range n.layers {
		preActivations[l], activations[l+1] = lay.forward(activations[l])
	}

	deltas := make([]*mat.VecDense, depth)
	last := depth - 1
	out := n.OutputWidth()
	deltas[last] = mat.NewVecDense(out, nil)
	for j := 0; j < out; j++ {
		err := expected[j] - activations[depth].AtVec(j)
		deltas[last].SetVec(j, err*n.layers[last].activation.Derivative(preActivations[last].AtVec(j)))
	}
	for l := last - 1; l >= 0; l-- {
		width := n.sizes[l+1]
		back := mat.NewVecDense(width, nil)
		back.MulVec(n.layers[l+1].weights.T(), deltas[l+1])
		for j := 0; j < width; j++ {
			back.SetVec(j, back.AtVec(j)*n.layers[l].activation.Derivative(preActivations[l].AtVec(j)))
		}
		deltas[l] = back
	}

	diverged := false
	for l, lay := range n.layers {
		lay.weights.RankOne(lay.weights, t.LearningRate, deltas[l], activations[l])
		lay.biases.AddScaledVec(lay.biases, t.LearningRate, deltas[l])
		if !finite(lay.weights.RawMatrix().Data) || !finite(lay.biases.RawVector().Data) {
			diverged = true
		}
	}
	if diverged {
		return ErrDiverged
	}
	return nil
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
