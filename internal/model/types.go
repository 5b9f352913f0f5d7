package model

import (
	"time"

	"github.com/google/uuid"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ModelRecord is a trained network kept as its binary snapshot.
type ModelRecord struct {
	VersionedRecord
	ID           string   `json:"id"`
	CreatedAtUTC string   `json:"created_at_utc"`
	Sizes        []int    `json:"sizes"`
	Activations  []string `json:"activations"`
	Snapshot     []byte   `json:"snapshot"`
	MAE          float64  `json:"mae"`
	RMSE         float64  `json:"rmse"`
}

// RunRecord describes one training run and the model it produced.
type RunRecord struct {
	VersionedRecord
	ID               string  `json:"id"`
	ModelID          string  `json:"model_id"`
	CreatedAtUTC     string  `json:"created_at_utc"`
	DataPath         string  `json:"data_path,omitempty"`
	Sizes            []int   `json:"sizes"`
	Activation       string  `json:"activation"`
	OutputActivation string  `json:"output_activation,omitempty"`
	LearningRate     float64 `json:"learning_rate"`
	Iterations       int     `json:"iterations"`
	TrainFraction    float64 `json:"train_fraction"`
	Label            string  `json:"label"`
	Initializer      string  `json:"initializer"`
	InitScale        float64 `json:"init_scale"`
	Seed             int64   `json:"seed"`
	EvaluateAll      bool    `json:"evaluate_all"`
	Order            string  `json:"order"`
	MAE              float64 `json:"mae"`
	RMSE             float64 `json:"rmse"`
	BaselineMAE      float64 `json:"baseline_mae"`
	BaselineRMSE     float64 `json:"baseline_rmse"`
	TrainExamples    int     `json:"train_examples"`
	TestExamples     int     `json:"test_examples"`
	TrainMillis      int64   `json:"train_millis"`
}

// NewID returns a random record identifier.
func NewID() string {
	return uuid.NewString()
}

// TimestampLayout has a fixed width so stored timestamps sort as strings.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp formats t the way records store creation times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
