// Package training drives one network through the feature pipeline, online
// backpropagation and evaluation, and runs independent seeds in parallel.
package training

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"batsoc/internal/dataset"
	"batsoc/internal/nn"
	"batsoc/internal/stats"
	"batsoc/internal/telemetry"
)

type Result struct {
	Network *nn.Network
	Report  stats.Report
	// Baseline evaluates the freshly initialized network on the same examples.
	Baseline      stats.Report
	TrainExamples int
	TestExamples  int
	TrainDuration time.Duration
}

// Train builds features from samples, splits them with a generator seeded by
// cfg.Seed, trains a new network and evaluates it. The same generator drives
// shuffling, weight initialization and example sampling, in that order, so a
// seed fully determines the run.
func Train(ctx context.Context, cfg Config, samples []telemetry.Sample) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	policy, err := dataset.LabelPolicyByName(cfg.label())
	if err != nil {
		return Result{}, err
	}
	features, err := dataset.BuildFeatures(samples, policy)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	train, test, err := dataset.ShuffleAndSplit(features, cfg.TrainFraction, rng)
	if err != nil {
		return Result{}, err
	}
	evalSet := test
	if cfg.EvaluateAll {
		evalSet = features
	}
	if len(evalSet) == 0 {
		return Result{}, fmt.Errorf("%w: test split is empty, lower the train fraction or evaluate all", stats.ErrEmptyEvaluation)
	}

	net, err := nn.New(cfg.Sizes, cfg.newInitializer(rng), cfg.options()...)
	if err != nil {
		return Result{}, err
	}
	order, err := cfg.order()
	if err != nil {
		return Result{}, err
	}
	baseline, err := stats.Evaluate(net, evalSet, order)
	if err != nil {
		return Result{}, fmt.Errorf("baseline evaluation: %w", err)
	}

	session, err := NewSession(net, cfg.LearningRate, cfg.Iterations, rng)
	if err != nil {
		return Result{}, err
	}
	session.OnProgress = cfg.OnProgress

	start := time.Now()
	if err := session.Run(ctx, train); err != nil {
		return Result{}, err
	}
	elapsed := time.Since(start)

	report, err := stats.Evaluate(session.Network(), evalSet, order)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Network:       session.Network(),
		Report:        report,
		Baseline:      baseline,
		TrainExamples: len(train),
		TestExamples:  len(test),
		TrainDuration: elapsed,
	}, nil
}

// Evaluate scores an existing network against samples without training it.
func Evaluate(net *nn.Network, samples []telemetry.Sample, label, order string) (stats.Report, error) {
	if net == nil {
		return stats.Report{}, fmt.Errorf("network is required")
	}
	cfg := Config{Label: label, Order: order}
	policy, err := dataset.LabelPolicyByName(cfg.label())
	if err != nil {
		return stats.Report{}, err
	}
	features, err := dataset.BuildFeatures(samples, policy)
	if err != nil {
		return stats.Report{}, err
	}
	rowOrder, err := cfg.order()
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Evaluate(net, features, rowOrder)
}
