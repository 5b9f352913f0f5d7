package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"batsoc/internal/telemetry"
)

const (
	// NormOffsetMilliVolts maps to 0.0 and NormOffsetMilliVolts+NormSpanMilliVolts to 1.0.
	NormOffsetMilliVolts = 3300
	NormSpanMilliVolts   = 800

	// InputWidth is the number of network inputs per Feature.
	InputWidth = 3
	// LabelWidth is the number of network outputs per Feature.
	LabelWidth = 1
)

var (
	ErrInsufficientData = errors.New("at least two telemetry samples are required")
	ErrInvalidSplit     = errors.New("train fraction must be within [0, 1]")
	ErrUnknownLabel     = errors.New("unknown label policy")
)

// Feature is [previousBatteryNorm, currentBatteryNorm, currentLdoNorm, label].
type Feature [InputWidth + LabelWidth]float64

// Input returns a copy of the network input part of the feature.
func (f Feature) Input() []float64 {
	return []float64{f[0], f[1], f[2]}
}

func (f Feature) Label() float64 {
	return f[InputWidth]
}

// Norm maps millivolts onto the training scale. Values outside
// [3300, 4100] are not clamped.
func Norm(milliVolts uint16) float64 {
	return (float64(milliVolts) - NormOffsetMilliVolts) / NormSpanMilliVolts
}

// Denorm is the inverse of Norm.
func Denorm(value float64) float64 {
	return value*NormSpanMilliVolts + NormOffsetMilliVolts
}

// LabelPolicy returns the target SOC in [0, 1] for samples[index].
type LabelPolicy func(index int, samples []telemetry.Sample) float64

// TimeRemaining labels a sample with the fraction of session time left,
// measured against the last sample's timestamp.
func TimeRemaining(index int, samples []telemetry.Sample) float64 {
	last := float64(samples[len(samples)-1].TimestampSeconds)
	if last == 0 {
		return 0
	}
	return (last - float64(samples[index].TimestampSeconds)) / last
}

// SampleIndex labels a sample with the fraction of samples left after it.
func SampleIndex(index int, samples []telemetry.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	last := float64(len(samples) - 1)
	return (last - float64(index)) / last
}

var labelPolicies = map[string]LabelPolicy{
	"time_remaining": TimeRemaining,
	"sample_index":   SampleIndex,
}

// LabelPolicyByName resolves a policy registered under name.
func LabelPolicyByName(name string) (LabelPolicy, error) {
	policy, ok := labelPolicies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLabel, name)
	}
	return policy, nil
}

func ListLabelPolicies() []string {
	names := make([]string, 0, len(labelPolicies))
	for name := range labelPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildFeatures slides a window of two samples over the log. N samples
// produce N-1 features in their original order; a nil policy means
// TimeRemaining.
func BuildFeatures(samples []telemetry.Sample, policy LabelPolicy) ([]Feature, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(samples))
	}
	if policy == nil {
		policy = TimeRemaining
	}

	features := make([]Feature, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		features = append(features, Feature{
			Norm(prev.BatteryMilliVolts),
			Norm(cur.BatteryMilliVolts),
			Norm(cur.LDOInputMilliVolts),
			policy(i, samples),
		})
	}
	return features, nil
}

// ShuffleAndSplit permutes a copy of features with rng and cuts it at
// floor(len*trainFraction). The input slice is left untouched.
func ShuffleAndSplit(features []Feature, trainFraction float64, rng *rand.Rand) (train, test []Feature, err error) {
	if math.IsNaN(trainFraction) || trainFraction < 0 || trainFraction > 1 {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSplit, trainFraction)
	}
	if rng == nil {
		return nil, nil, errors.New("random source is required")
	}

	shuffled := append([]Feature(nil), features...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(math.Floor(float64(len(shuffled)) * trainFraction))
	return shuffled[:cut:cut], shuffled[cut:], nil
}
