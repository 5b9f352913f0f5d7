package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

// Activation pairs a nonlinearity with its derivative with respect to the
// pre-activation value.
type Activation struct {
	Name       string
	Func       ActivationFunc
	Derivative ActivationFunc
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]Activation
}{
	m: make(map[string]Activation),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation(Activation{Name: "identity", Func: identity, Derivative: identityDerivative})
	MustRegisterActivation(Activation{Name: "relu", Func: relu, Derivative: reluDerivative})
	MustRegisterActivation(Activation{Name: "tanh", Func: math.Tanh, Derivative: tanhDerivative})
	MustRegisterActivation(Activation{Name: "sigmoid", Func: sigmoid, Derivative: sigmoidDerivative})
}

func RegisterActivation(activation Activation) error {
	if activation.Name == "" {
		return errors.New("activation name is required")
	}
	if activation.Func == nil {
		return errors.New("activation function is required")
	}
	if activation.Derivative == nil {
		return errors.New("activation derivative is required")
	}
	if len(activation.Name) > 255 {
		return fmt.Errorf("activation name too long: %d bytes", len(activation.Name))
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[activation.Name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, activation.Name)
	}
	activationRegistry.m[activation.Name] = activation
	return nil
}

func MustRegisterActivation(activation Activation) {
	if err := RegisterActivation(activation); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (Activation, error) {
	activationRegistry.mu.RLock()
	entry, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return Activation{}, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return entry, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]Activation)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
