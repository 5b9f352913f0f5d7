package training

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"batsoc/internal/stats"
	"batsoc/internal/telemetry"
)

type SweepResult struct {
	Seed   int64
	Result Result
}

// Sweep trains one independent network per seed with at most workers
// concurrent runs and returns results sorted by seed. Workers share only the
// read-only samples. The first failure cancels the remaining runs.
func Sweep(ctx context.Context, cfg Config, samples []telemetry.Sample, seeds []int64, workers int) ([]SweepResult, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed is required")
	}
	seen := make(map[int64]struct{}, len(seeds))
	for _, seed := range seeds {
		if _, ok := seen[seed]; ok {
			return nil, fmt.Errorf("duplicate seed %d", seed)
		}
		seen[seed] = struct{}{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := pool.NewWithResults[SweepResult]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(workers)
	for _, seed := range seeds {
		runCfg := cfg
		runCfg.Seed = seed
		runCfg.Sizes = append([]int(nil), cfg.Sizes...)
		runCfg.OnProgress = nil
		p.Go(func(ctx context.Context) (SweepResult, error) {
			result, err := Train(ctx, runCfg, samples)
			if err != nil {
				return SweepResult{}, fmt.Errorf("seed %d: %w", runCfg.Seed, err)
			}
			return SweepResult{Seed: runCfg.Seed, Result: result}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Seed < results[j].Seed })
	return results, nil
}

// Summarize aggregates sweep results across seeds.
func Summarize(results []SweepResult) (stats.SweepSummary, error) {
	seedResults := make([]stats.SeedResult, 0, len(results))
	for _, r := range results {
		seedResults = append(seedResults, stats.SeedResult{
			Seed: r.Seed,
			MAE:  r.Result.Report.MAE,
			RMSE: r.Result.Report.RMSE,
		})
	}
	return stats.SummarizeSweep(seedResults)
}
