package training

import (
	"context"
	"testing"
)

func TestSweepReproducibleAcrossWorkerCounts(t *testing.T) {
	cfg := endToEndConfig()
	cfg.Iterations = 200
	seeds := []int64{5, 1, 3, 2}

	serial, err := Sweep(context.Background(), cfg, dischargeLog(), seeds, 1)
	if err != nil {
		t.Fatalf("serial sweep: %v", err)
	}
	parallel, err := Sweep(context.Background(), cfg, dischargeLog(), seeds, 4)
	if err != nil {
		t.Fatalf("parallel sweep: %v", err)
	}
	if len(serial) != len(seeds) || len(parallel) != len(seeds) {
		t.Fatalf("unexpected result counts: serial=%d parallel=%d", len(serial), len(parallel))
	}

	wantSeeds := []int64{1, 2, 3, 5}
	for i := range serial {
		if serial[i].Seed != wantSeeds[i] || parallel[i].Seed != wantSeeds[i] {
			t.Fatalf("result %d: seeds serial=%d parallel=%d want=%d", i, serial[i].Seed, parallel[i].Seed, wantSeeds[i])
		}
		if !serial[i].Result.Network.Equal(parallel[i].Result.Network) {
			t.Fatalf("seed %d: network depends on worker count", serial[i].Seed)
		}
		if serial[i].Result.Report.MAE != parallel[i].Result.Report.MAE {
			t.Fatalf("seed %d: mae serial=%v parallel=%v", serial[i].Seed, serial[i].Result.Report.MAE, parallel[i].Result.Report.MAE)
		}
	}

	single, err := Train(context.Background(), withSeed(cfg, 3), dischargeLog())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !single.Network.Equal(serial[2].Result.Network) {
		t.Fatal("sweep run differs from a standalone run with the same seed")
	}

	summary, err := Summarize(parallel)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Runs != len(seeds) {
		t.Fatalf("unexpected summary runs: %d", summary.Runs)
	}
}

func withSeed(cfg Config, seed int64) Config {
	cfg.Seed = seed
	return cfg
}

func TestSweepValidation(t *testing.T) {
	cfg := endToEndConfig()
	if _, err := Sweep(context.Background(), cfg, dischargeLog(), nil, 2); err == nil {
		t.Fatal("expected error for no seeds")
	}
	if _, err := Sweep(context.Background(), cfg, dischargeLog(), []int64{1, 1}, 2); err == nil {
		t.Fatal("expected error for duplicate seeds")
	}
	cfg.LearningRate = -1
	if _, err := Sweep(context.Background(), cfg, dischargeLog(), []int64{1}, 2); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestSweepPropagatesRunFailure(t *testing.T) {
	cfg := endToEndConfig()
	if _, err := Sweep(context.Background(), cfg, dischargeLog()[:1], []int64{1, 2}, 2); err == nil {
		t.Fatal("expected error when a run cannot build features")
	}
}
