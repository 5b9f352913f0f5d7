package nn

import "math"

func identity(x float64) float64 { return x }

func identityDerivative(float64) float64 { return 1 }

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func reluDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func sigmoidDerivative(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}

func tanhDerivative(x float64) float64 {
	y := math.Tanh(x)
	return 1 - (y * y)
}

// derivativeOf evaluates the derivative of the named activation at x.
func derivativeOf(name string, x float64) (float64, error) {
	activation, err := GetActivation(name)
	if err != nil {
		return 0, err
	}
	return activation.Derivative(x), nil
}
