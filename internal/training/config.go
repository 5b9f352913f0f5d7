package training

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"batsoc/internal/dataset"
	"batsoc/internal/nn"
	"batsoc/internal/stats"
)

const (
	InitUniform      = "uniform"
	InitZeroCentered = "zero_centered"

	OrderExpectedDesc = "expected_desc"
	OrderExpectedAsc  = "expected_asc"
	OrderNone         = "none"
)

// Config is the single parameter set for a training run.
type Config struct {
	Sizes            []int   `json:"sizes"`
	Activation       string  `json:"activation"`
	OutputActivation string  `json:"output_activation,omitempty"`
	LearningRate     float64 `json:"learning_rate"`
	Iterations       int     `json:"iterations"`
	TrainFraction    float64 `json:"train_fraction"`
	Label            string  `json:"label"`
	Initializer      string  `json:"initializer"`
	// InitScale bounds zero_centered weights to [-InitScale, InitScale).
	InitScale   float64 `json:"init_scale,omitempty"`
	Seed        int64   `json:"seed"`
	EvaluateAll bool    `json:"evaluate_all"`
	Order       string  `json:"order"`

	OnProgress func(step, total int) `json:"-"`
}

func DefaultConfig() Config {
	return Config{
		Sizes:         []int{dataset.InputWidth, 3, 3, dataset.LabelWidth},
		Activation:    nn.DefaultActivation,
		LearningRate:  0.5,
		Iterations:    100000,
		TrainFraction: 0.8,
		Label:         "time_remaining",
		Initializer:   InitUniform,
		InitScale:     1,
		Seed:          1,
		Order:         OrderExpectedDesc,
	}
}

func (c Config) Validate() error {
	if len(c.Sizes) < 2 {
		return fmt.Errorf("sizes must have at least 2 entries, got %v", c.Sizes)
	}
	if c.Sizes[0] != dataset.InputWidth {
		return fmt.Errorf("input width must be %d, got %d", dataset.InputWidth, c.Sizes[0])
	}
	if last := c.Sizes[len(c.Sizes)-1]; last != dataset.LabelWidth {
		return fmt.Errorf("output width must be %d, got %d", dataset.LabelWidth, last)
	}
	for i, size := range c.Sizes {
		if size <= 0 {
			return fmt.Errorf("size at index %d must be > 0", i)
		}
	}
	if _, err := nn.GetActivation(c.activation()); err != nil {
		return err
	}
	if c.OutputActivation != "" {
		if _, err := nn.GetActivation(c.OutputActivation); err != nil {
			return err
		}
	}
	if c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("learning rate must be a positive finite number, got %v", c.LearningRate)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0")
	}
	if math.IsNaN(c.TrainFraction) || c.TrainFraction < 0 || c.TrainFraction > 1 {
		return fmt.Errorf("%w: train fraction %v", dataset.ErrInvalidSplit, c.TrainFraction)
	}
	if _, err := dataset.LabelPolicyByName(c.label()); err != nil {
		return err
	}
	switch c.initializer() {
	case InitUniform:
	case InitZeroCentered:
		if c.InitScale < 0 || math.IsNaN(c.InitScale) {
			return fmt.Errorf("init scale must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported initializer: %s", c.Initializer)
	}
	if _, err := c.order(); err != nil {
		return err
	}
	return nil
}

func (c Config) activation() string {
	if c.Activation == "" {
		return nn.DefaultActivation
	}
	return c.Activation
}

func (c Config) label() string {
	if c.Label == "" {
		return "time_remaining"
	}
	return c.Label
}

func (c Config) initializer() string {
	name := strings.ToLower(strings.TrimSpace(c.Initializer))
	if name == "" {
		return InitUniform
	}
	return name
}

// newInitializer returns the weight source drawn from rng.
func (c Config) newInitializer(rng *rand.Rand) nn.Initializer {
	if c.initializer() == InitZeroCentered {
		scale := c.InitScale
		if scale == 0 {
			scale = 1
		}
		return nn.ZeroCentered(rng, scale)
	}
	return nn.Uniform(rng)
}

func (c Config) options() []nn.Option {
	opts := []nn.Option{nn.WithActivation(c.activation())}
	if c.OutputActivation != "" {
		opts = append(opts, nn.WithOutputActivation(c.OutputActivation))
	}
	return opts
}

func (c Config) order() (stats.RowOrder, error) {
	switch c.Order {
	case "", OrderExpectedDesc:
		return stats.ByExpectedDesc, nil
	case OrderExpectedAsc:
		return stats.ByExpectedAsc, nil
	case OrderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported row order: %s", c.Order)
	}
}
