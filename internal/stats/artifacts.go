package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"batsoc/internal/dataset"
)

const (
	runIndexFile  = "run_index.json"
	configFile    = "config.json"
	metricsFile   = "metrics.json"
	resultFile    = "result.csv"
	snapshotFile  = "model.bin"
	perMilleScale = 1000
)

// RunConfig records the parameters a training run was started with.
type RunConfig struct {
	RunID            string  `json:"run_id"`
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
}

// RunMetrics summarises the outcome of a training run.
type RunMetrics struct {
	MAE           float64 `json:"mae"`
	RMSE          float64 `json:"rmse"`
	BaselineMAE   float64 `json:"baseline_mae"`
	BaselineRMSE  float64 `json:"baseline_rmse"`
	TrainExamples int     `json:"train_examples"`
	TestExamples  int     `json:"test_examples"`
	TrainMillis   int64   `json:"train_millis"`
	SnapshotBytes int     `json:"snapshot_bytes"`
}

type RunArtifacts struct {
	Config   RunConfig
	Metrics  RunMetrics
	Report   Report
	Snapshot []byte
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	DataPath     string  `json:"data_path,omitempty"`
	Sizes        []int   `json:"sizes"`
	Seed         int64   `json:"seed"`
	Iterations   int     `json:"iterations"`
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes config, metrics, the result table and the model
// snapshot under baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, metricsFile), artifacts.Metrics); err != nil {
		return "", err
	}

	file, err := os.Create(filepath.Join(runDir, resultFile))
	if err != nil {
		return "", err
	}
	if err := WriteResultCSV(file, artifacts.Report); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	if len(artifacts.Snapshot) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, snapshotFile), artifacts.Snapshot, 0o644); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// WriteResultCSV writes one line per report row: the previous battery reading
// in millivolts, and expected and predicted SOC in per-mille. Values are
// truncated and saturated to uint16.
func WriteResultCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"battery_mv", "percentage", "prediction"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if len(row.Input) == 0 {
			return fmt.Errorf("report row has no input")
		}
		if err := writer.Write([]string{
			strconv.Itoa(int(row.BatteryMilliVolts())),
			perMille(row.Expected),
			perMille(row.Predicted),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ResultRecord is one parsed line of a result table.
type ResultRecord struct {
	BatteryMilliVolts int `json:"battery_mv"`
	ExpectedPerMille  int `json:"percentage"`
	PredictedPerMille int `json:"prediction"`
}

// ReadRunResults parses the result table stored with a run.
func ReadRunResults(baseDir, runID string) ([]ResultRecord, bool, error) {
	f, err := os.Open(filepath.Join(baseDir, runID, resultFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	records, err := ReadResultCSV(f)
	if err != nil {
		return nil, false, fmt.Errorf("read %s results: %w", runID, err)
	}
	return records, true, nil
}

func ReadResultCSV(r io.Reader) ([]ResultRecord, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []ResultRecord{}, nil
		}
		return nil, err
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("result header must have at least 3 columns")
	}

	records := make([]ResultRecord, 0, 128)
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		values := make([]int, 3)
		for i := range values {
			values[i], err = strconv.Atoi(strings.TrimSpace(line[i]))
			if err != nil {
				return nil, fmt.Errorf("parse result column %s: %w", header[i], err)
			}
		}
		records = append(records, ResultRecord{
			BatteryMilliVolts: values[0],
			ExpectedPerMille:  values[1],
			PredictedPerMille: values[2],
		})
	}
	return records, nil
}

// SaturateUint16 truncates v toward zero and saturates it to the uint16
// range; NaN maps to 0.
func SaturateUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

// BatteryMilliVolts recovers the previous battery reading of a row.
func (r Row) BatteryMilliVolts() uint16 {
	if len(r.Input) == 0 {
		return 0
	}
	return SaturateUint16(dataset.Denorm(r.Input[0]))
}

func perMille(v float64) string {
	return strconv.Itoa(int(SaturateUint16(v * perMilleScale)))
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadRunMetrics(baseDir, runID string) (RunMetrics, bool, error) {
	var metrics RunMetrics
	ok, err := readJSON(filepath.Join(baseDir, runID, metricsFile), &metrics)
	return metrics, ok, err
}

// ReadSnapshot returns the model snapshot stored with a run.
func ReadSnapshot(baseDir, runID string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// ExportRunArtifacts copies a run directory's artifacts to outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, metricsFile, resultFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{snapshotFile, sweepSummaryFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
