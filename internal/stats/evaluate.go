package stats

import (
	"cmp"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"batsoc/internal/dataset"
)

var ErrEmptyEvaluation = errors.New("no examples to evaluate")

// Predictor is satisfied by *nn.Network.
type Predictor interface {
	Calc(input []float64) ([]float64, error)
}

// Row is one evaluated example.
type Row struct {
	Input     []float64 `json:"input"`
	Expected  float64   `json:"expected"`
	Predicted float64   `json:"predicted"`
}

func (r Row) AbsError() float64 {
	return math.Abs(r.Expected - r.Predicted)
}

// Report holds ordered evaluation rows and their aggregate error.
type Report struct {
	Rows []Row   `json:"rows"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// RowOrder compares two rows the way slices.SortFunc expects.
type RowOrder func(a, b Row) int

// ByExpectedDesc orders rows by descending expected label. NaN labels sort
// after every number; equal labels keep their evaluation order.
func ByExpectedDesc(a, b Row) int {
	if c, ok := nanLast(a.Expected, b.Expected); ok {
		return c
	}
	return cmp.Compare(b.Expected, a.Expected)
}

// ByExpectedAsc orders rows by ascending expected label with the same NaN and
// tie rules as ByExpectedDesc.
func ByExpectedAsc(a, b Row) int {
	if c, ok := nanLast(a.Expected, b.Expected); ok {
		return c
	}
	return cmp.Compare(a.Expected, b.Expected)
}

func nanLast(x, y float64) (int, bool) {
	xNaN, yNaN := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xNaN && yNaN:
		return 0, true
	case xNaN:
		return 1, true
	case yNaN:
		return -1, true
	}
	return 0, false
}

// Evaluate predicts every example, aggregates MAE and RMSE, and orders the
// rows with order. A nil order keeps the examples' order.
func Evaluate(p Predictor, examples []dataset.Feature, order RowOrder) (Report, error) {
	if len(examples) == 0 {
		return Report{}, ErrEmptyEvaluation
	}

	rows := make([]Row, 0, len(examples))
	expected := make([]float64, 0, len(examples))
	predicted := make([]float64, 0, len(examples))
	for i, example := range examples {
		out, err := p.Calc(example.Input())
		if err != nil {
			return Report{}, fmt.Errorf("evaluate example %d: %w", i, err)
		}
		if len(out) != dataset.LabelWidth {
			return Report{}, fmt.Errorf("evaluate example %d: predictor returned %d outputs, want %d", i, len(out), dataset.LabelWidth)
		}
		rows = append(rows, Row{Input: example.Input(), Expected: example.Label(), Predicted: out[0]})
		expected = append(expected, example.Label())
		predicted = append(predicted, out[0])
	}

	mae, rmse, err := ErrorMetrics(expected, predicted)
	if err != nil {
		return Report{}, err
	}
	if order != nil {
		slices.SortStableFunc(rows, order)
	}
	return Report{Rows: rows, MAE: mae, RMSE: rmse}, nil
}

// ErrorMetrics returns mean(|e|) and sqrt(mean(e²)) for e = expected - predicted.
func ErrorMetrics(expected, predicted []float64) (mae, rmse float64, err error) {
	if len(expected) != len(predicted) {
		return 0, 0, fmt.Errorf("length mismatch: %d expected, %d predicted", len(expected), len(predicted))
	}
	if len(expected) == 0 {
		return 0, 0, ErrEmptyEvaluation
	}
	var absSum, sqSum float64
	for i := range expected {
		d := expected[i] - predicted[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(expected))
	return absSum / n, math.Sqrt(sqSum / n), nil
}
