package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
)

// flatten returns every weight and bias in Params order.
func flatten(n *Network) []float64 {
	var out []float64
	for _, p := range n.Params() {
		out = append(out, p.Weights...)
		out = append(out, p.Biases...)
	}
	return out
}

func withFlat(template *Network, flat []float64) *Network {
	params := template.Params()
	offset := 0
	for i := range params {
		copy(params[i].Weights, flat[offset:])
		offset += len(params[i].Weights)
		copy(params[i].Biases, flat[offset:])
		offset += len(params[i].Biases)
	}
	n, err := FromParams(params)
	if err != nil {
		panic(err)
	}
	return n
}

func TestFitMatchesNumericGradient(t *testing.T) {
	for _, act := range []string{"sigmoid", "tanh"} {
		t.Run(act, func(t *testing.T) {
			net, err := New([]int{3, 4, 3, 2}, ZeroCentered(rand.New(rand.NewSource(21)), 1), WithActivation(act))
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			input := []float64{0.9, 0.7, 0.65}
			expected := []float64{0.4, 0.1}

			halfSquaredError := func(flat []float64) float64 {
				out, err := withFlat(net, flat).Calc(input)
				if err != nil {
					panic(err)
				}
				sum := 0.0
				for i := range out {
					d := expected[i] - out[i]
					sum += d * d
				}
				return sum / 2
			}
			before := flatten(net)
			grad := fd.Gradient(nil, halfSquaredError, before, &fd.Settings{Formula: fd.Central})

			const lr = 0.01
			trained := net.Clone()
			if err := (Trainer{LearningRate: lr}).Fit(trained, input, expected); err != nil {
				t.Fatalf("fit: %v", err)
			}
			after := flatten(trained)
			for i := range before {
				step := (after[i] - before[i]) / lr
				if math.Abs(step+grad[i]) > 1e-6 {
					t.Fatalf("param %d: update/lr=%v, -gradient=%v", i, step, -grad[i])
				}
			}
		})
	}
}

func TestFitSingleLayerDeltaRule(t *testing.T) {
	n, err := New([]int{2, 1}, constant(0), WithActivation("identity"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := (Trainer{LearningRate: 0.5}).Fit(n, []float64{1, 2}, []float64{1}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	// delta = (1 - 0) * 1; w += 0.5 * delta * input; b += 0.5 * delta
	p := n.Params()[0]
	if p.Weights[0] != 0.5 || p.Weights[1] != 1 || p.Biases[0] != 0.5 {
		t.Fatalf("unexpected params after one step: %+v", p)
	}
}

func TestFitReducesErrorOnRepeatedExample(t *testing.T) {
	n, err := New([]int{3, 3, 3, 1}, Uniform(rand.New(rand.NewSource(4))))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	input := []float64{0.8, 0.75, 0.7}
	expected := []float64{0.3}
	trainer := Trainer{LearningRate: 0.3}

	absErr := func() float64 {
		out, err := n.Calc(input)
		if err != nil {
			t.Fatalf("calc: %v", err)
		}
		return math.Abs(expected[0] - out[0])
	}

	initial := absErr()
	previous := initial
	for round := 0; round < 20; round++ {
		for i := 0; i < 100; i++ {
			if err := trainer.Fit(n, input, expected); err != nil {
				t.Fatalf("fit: %v", err)
			}
		}
		current := absErr()
		if current > previous {
			t.Fatalf("round %d: error grew from %v to %v", round, previous, current)
		}
		previous = current
	}
	if previous >= initial/10 {
		t.Fatalf("error did not shrink enough: initial=%v final=%v", initial, previous)
	}
}

func TestFitDimensionMismatch(t *testing.T) {
	n, err := New([]int{3, 2, 1}, constant(0.5))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := n.Clone()
	trainer := Trainer{LearningRate: 0.1}
	if err := trainer.Fit(n, []float64{1, 2}, []float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for input, got: %v", err)
	}
	if err := trainer.Fit(n, []float64{1, 2, 3}, []float64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for expected output, got: %v", err)
	}
	if !n.Equal(before) {
		t.Fatal("rejected fit must not modify the network")
	}
}

func TestFitReportsDivergence(t *testing.T) {
	n, err := New([]int{1, 1}, constant(1), WithActivation("identity"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = (Trainer{LearningRate: math.Inf(1)}).Fit(n, []float64{1}, []float64{0})
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got: %v", err)
	}
}
