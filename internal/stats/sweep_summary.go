package stats

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const sweepSummaryFile = "sweep_summary.json"

// SeedResult is the outcome of one seed in a sweep.
type SeedResult struct {
	Seed int64   `json:"seed"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// MetricSummary describes the spread of one metric across seeds.
type MetricSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type SweepSummary struct {
	Runs     int           `json:"runs"`
	BestSeed int64         `json:"best_seed"`
	MAE      MetricSummary `json:"mae"`
	RMSE     MetricSummary `json:"rmse"`
	Results  []SeedResult  `json:"results"`
}

// SummarizeSweep aggregates per-seed metrics. The best seed has the lowest
// MAE; ties go to the earlier result.
func SummarizeSweep(results []SeedResult) (SweepSummary, error) {
	if len(results) == 0 {
		return SweepSummary{}, ErrEmptyEvaluation
	}
	mae := make([]float64, len(results))
	rmse := make([]float64, len(results))
	for i, r := range results {
		mae[i] = r.MAE
		rmse[i] = r.RMSE
	}

	best := floats.MinIdx(mae)
	if math.IsNaN(mae[best]) {
		return SweepSummary{}, fmt.Errorf("sweep seed %d produced NaN mae", results[best].Seed)
	}
	return SweepSummary{
		Runs:     len(results),
		BestSeed: results[best].Seed,
		MAE:      summarize(mae),
		RMSE:     summarize(rmse),
		Results:  append([]SeedResult(nil), results...),
	}, nil
}

func summarize(values []float64) MetricSummary {
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}
	return MetricSummary{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
}

func WriteSweepSummary(runDir string, summary SweepSummary) error {
	return writeJSON(filepath.Join(runDir, sweepSummaryFile), summary)
}

func ReadSweepSummary(baseDir, runID string) (SweepSummary, bool, error) {
	var summary SweepSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, sweepSummaryFile), &summary)
	return summary, ok, err
}
