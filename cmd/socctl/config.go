package main

import (
	"encoding/json"
	"fmt"
	"os"

	"batsoc/pkg/batsoc"
)

func loadTrainRequestFromConfig(path string) (batsoc.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return batsoc.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return batsoc.TrainRequest{}, err
	}

	var req batsoc.TrainRequest
	if v, ok := asString(raw["data_path"]); ok {
		req.DataPath = v
	}
	if v, ok := asIntSlice(raw["sizes"]); ok {
		req.Sizes = v
	}
	if v, ok := asString(raw["activation"]); ok {
		req.Activation = v
	}
	if v, ok := asString(raw["output_activation"]); ok {
		req.OutputActivation = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asInt(raw["iterations"]); ok {
		req.Iterations = v
	}
	if v, ok := asFloat64(raw["train_fraction"]); ok {
		req.TrainFraction = v
	}
	if v, ok := asString(raw["label"]); ok {
		req.Label = v
	}
	if v, ok := asString(raw["initializer"]); ok {
		req.Initializer = v
	}
	if v, ok := asFloat64(raw["init_scale"]); ok {
		req.InitScale = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asBool(raw["evaluate_all"]); ok {
		req.EvaluateAll = v
	}
	if v, ok := asString(raw["order"]); ok {
		req.Order = v
	}
	if v, ok := asString(raw["model_out"]); ok {
		req.ModelOut = v
	}
	if v, ok := asInt(raw["snapshot_capacity"]); ok {
		req.SnapshotCapacity = v
	}
	return req, nil
}

func loadOrDefaultTrainRequest(configPath string) (batsoc.TrainRequest, error) {
	if configPath == "" {
		return batsoc.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return batsoc.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asIntSlice(v any) ([]int, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := asInt(item)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
