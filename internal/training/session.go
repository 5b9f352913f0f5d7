package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"batsoc/internal/dataset"
	"batsoc/internal/nn"
)

var (
	ErrSessionFrozen = errors.New("training session is frozen")
	ErrEmptyTrainSet = errors.New("train split is empty")
)

// cancelCheckStride is how many fit steps run between context checks.
const cancelCheckStride = 256

// Session owns one network for the length of a training run. After Run
// returns the session is frozen and the network is only read.
type Session struct {
	net        *nn.Network
	trainer    nn.Trainer
	iterations int
	rng        *rand.Rand
	frozen     bool

	// OnProgress, when set, is called about a hundred times per run and once
	// after the final step.
	OnProgress func(step, total int)
}

func NewSession(net *nn.Network, learningRate float64, iterations int, rng *rand.Rand) (*Session, error) {
	if net == nil {
		return nil, fmt.Errorf("network is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if iterations < 0 {
		return nil, fmt.Errorf("iterations must be >= 0")
	}
	return &Session{
		net:        net,
		trainer:    nn.Trainer{LearningRate: learningRate},
		iterations: iterations,
		rng:        rng,
	}, nil
}

// Run draws one example uniformly with replacement from train per step and
// fits it, for exactly the session's iteration budget. Cancelling ctx stops
// the run early with ctx's error; the session is frozen either way.
func (s *Session) Run(ctx context.Context, train []dataset.Feature) error {
	if s.frozen {
		return ErrSessionFrozen
	}
	if len(train) == 0 && s.iterations > 0 {
		return ErrEmptyTrainSet
	}
	s.frozen = true

	stride := s.iterations / 100
	if stride == 0 {
		stride = 1
	}
	for step := 1; step <= s.iterations; step++ {
		if step%cancelCheckStride == 1 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("training stopped at step %d: %w", step-1, err)
			}
		}
		example := train[s.rng.Intn(len(train))]
		if err := s.trainer.Fit(s.net, example.Input(), []float64{example.Label()}); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if s.OnProgress != nil && (step%stride == 0 || step == s.iterations) {
			s.OnProgress(step, s.iterations)
		}
	}
	return nil
}

func (s *Session) Frozen() bool {
	return s.frozen
}

// Network returns the session's network. Callers must not train it further.
func (s *Session) Network() *nn.Network {
	return s.net
}
