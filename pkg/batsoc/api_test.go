package batsoc

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"batsoc/internal/snapshot"
	"batsoc/internal/stats"
	"batsoc/internal/telemetry"
)

const fixtureLog = "../../testdata/fixtures/discharge_log.json"

type recordingSink struct {
	runIDs  []string
	reports []stats.Report
}

func (r *recordingSink) Write(_ context.Context, runID string, report stats.Report) error {
	r.runIDs = append(r.runIDs, runID)
	r.reports = append(r.reports, report)
	return nil
}

func newTestClient(t *testing.T, sinks ...*recordingSink) *Client {
	t.Helper()
	opts := Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(t.TempDir(), "runs"),
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
	}
	for _, s := range sinks {
		opts.Sinks = append(opts.Sinks, s)
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientTrainPersistsEverything(t *testing.T) {
	ctx := context.Background()
	rec := &recordingSink{}
	client := newTestClient(t, rec)
	modelOut := filepath.Join(t.TempDir(), "model.bin")

	summary, err := client.Train(ctx, TrainRequest{
		DataPath:         fixtureLog,
		OutputActivation: "sigmoid",
		Iterations:       2000,
		Initializer:      "zero_centered",
		InitScale:        0.5,
		Seed:             7,
		Order:            "expected_asc",
		ModelOut:         modelOut,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.TrainExamples != 8 || summary.TestExamples != 3 || len(summary.Report.Rows) != 3 {
		t.Fatalf("unexpected split: train=%d test=%d rows=%d", summary.TrainExamples, summary.TestExamples, len(summary.Report.Rows))
	}
	if summary.SnapshotBytes == 0 || summary.SnapshotBytes > snapshot.MaxSize {
		t.Fatalf("unexpected snapshot size: %d", summary.SnapshotBytes)
	}
	if summary.Params != 3*3+3+3*3+3+3*1+1 {
		t.Fatalf("unexpected param count: %d", summary.Params)
	}
	for _, file := range []string{"config.json", "metrics.json", "result.csv", "model.bin"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}
	if len(rec.runIDs) != 1 || rec.runIDs[0] != summary.RunID {
		t.Fatalf("sink did not receive the run: %v", rec.runIDs)
	}

	models, err := client.Models(ctx)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(models) != 1 || models[0].ID != summary.ModelID || models[0].SnapshotSize != summary.SnapshotBytes {
		t.Fatalf("unexpected models: %+v", models)
	}

	run, err := client.Run(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.ModelID != summary.ModelID || run.Iterations != 2000 || run.Seed != 7 {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.OutputActivation != "sigmoid" || run.Initializer != "zero_centered" || run.InitScale != 0.5 || run.Order != "expected_asc" || run.EvaluateAll {
		t.Fatalf("run record does not reproduce the request: %+v", run)
	}

	details, err := client.Details(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Record == nil || details.Record.ID != summary.RunID {
		t.Fatalf("details missing record: %+v", details.Record)
	}
	if details.Config == nil || details.Config.InitScale != 0.5 || details.Config.Order != "expected_asc" {
		t.Fatalf("details missing config: %+v", details.Config)
	}
	if details.Metrics == nil || details.Metrics.SnapshotBytes != summary.SnapshotBytes {
		t.Fatalf("details missing metrics: %+v", details.Metrics)
	}
	if len(details.Results) != len(summary.Report.Rows) || details.Sweep != nil {
		t.Fatalf("unexpected details results=%d sweep=%v", len(details.Results), details.Sweep)
	}
	if _, err := client.Details(ctx, "missing"); err == nil {
		t.Fatal("expected missing run error")
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil || len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("runs: %+v err=%v", runs, err)
	}

	fileData, err := os.ReadFile(modelOut)
	if err != nil {
		t.Fatalf("read model out: %v", err)
	}
	if len(fileData) != summary.SnapshotBytes {
		t.Fatalf("model file has %d bytes, want %d", len(fileData), summary.SnapshotBytes)
	}
}

func TestClientEvaluateStoredAndFileModels(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	modelOut := filepath.Join(t.TempDir(), "model.bin")
	trained, err := client.Train(ctx, TrainRequest{
		DataPath:      fixtureLog,
		Iterations:    500,
		TrainFraction: 1,
		EvaluateAll:   true,
		ModelOut:      modelOut,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	csvOut := filepath.Join(t.TempDir(), "result.csv")
	byID, err := client.Evaluate(ctx, EvalRequest{ModelID: trained.ModelID, DataPath: fixtureLog, CSVOut: csvOut})
	if err != nil {
		t.Fatalf("evaluate by id: %v", err)
	}
	if math.Abs(byID.Report.MAE-trained.Report.MAE) > 1e-12 || len(byID.Report.Rows) != 11 {
		t.Fatalf("stored model evaluation differs: got=%v want=%v rows=%d", byID.Report.MAE, trained.Report.MAE, len(byID.Report.Rows))
	}
	data, err := os.ReadFile(csvOut)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 12 {
		t.Fatalf("expected header plus 11 rows, got %d lines", lines)
	}

	byPath, err := client.Evaluate(ctx, EvalRequest{ModelPath: modelOut, DataPath: fixtureLog})
	if err != nil {
		t.Fatalf("evaluate by path: %v", err)
	}
	if byPath.Report.MAE != byID.Report.MAE {
		t.Fatalf("file model evaluation differs: got=%v want=%v", byPath.Report.MAE, byID.Report.MAE)
	}

	if _, err := client.Evaluate(ctx, EvalRequest{ModelID: "missing", DataPath: fixtureLog}); err == nil {
		t.Fatal("expected error for unknown model")
	}
	if _, err := client.Evaluate(ctx, EvalRequest{DataPath: fixtureLog}); err == nil {
		t.Fatal("expected error without a model")
	}
}

func TestClientTrainErrors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	if _, err := client.Train(ctx, TrainRequest{}); err == nil {
		t.Fatal("expected error without data")
	}
	_, err := client.Train(ctx, TrainRequest{
		DataPath:   fixtureLog,
		Sizes:      []int{3, 32, 32, 1},
		Iterations: 1,
	})
	if !errors.Is(err, snapshot.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got: %v", err)
	}
	models, err := client.Models(ctx)
	if err != nil || len(models) != 0 {
		t.Fatalf("failed train must not persist a model: %+v err=%v", models, err)
	}
}

func TestClientSweepAndExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	sweep, err := client.Sweep(ctx, SweepRequest{
		TrainRequest: TrainRequest{DataPath: fixtureLog, Iterations: 200},
		Seeds:        []int64{1, 2, 3},
		Workers:      2,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sweep.Summary.Runs != 3 || len(sweep.Summary.Results) != 3 {
		t.Fatalf("unexpected sweep summary: %+v", sweep.Summary)
	}
	if _, err := os.Stat(filepath.Join(sweep.ArtifactsDir, "sweep_summary.json")); err != nil {
		t.Fatalf("expected sweep summary file: %v", err)
	}
	details, err := client.Details(ctx, sweep.SweepID)
	if err != nil {
		t.Fatalf("sweep details: %v", err)
	}
	if details.Sweep == nil || details.Sweep.BestSeed != sweep.Summary.BestSeed || details.Record != nil {
		t.Fatalf("unexpected sweep details: %+v", details)
	}

	if _, err := client.Export(ctx, ExportRequest{Latest: true}); err == nil {
		t.Fatal("expected error exporting with no runs")
	}
	trained, err := client.Train(ctx, TrainRequest{DataPath: fixtureLog, Iterations: 100})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != trained.RunID {
		t.Fatalf("exported run %s, want %s", exported.RunID, trained.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "result.csv")); err != nil {
		t.Fatalf("expected exported result: %v", err)
	}
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type payloadMessage []byte

func (m payloadMessage) Duplicate() bool   { return false }
func (m payloadMessage) Qos() byte         { return 0 }
func (m payloadMessage) Retained() bool    { return false }
func (m payloadMessage) Topic() string     { return "device/1/state" }
func (m payloadMessage) MessageID() uint16 { return 0 }
func (m payloadMessage) Payload() []byte   { return m }
func (m payloadMessage) Ack()              {}

type scriptedSubscriber struct {
	payloads []string
}

func (s *scriptedSubscriber) Subscribe(_ string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	go func() {
		for _, p := range s.payloads {
			callback(nil, payloadMessage(p))
		}
	}()
	return doneToken{}
}

func (s *scriptedSubscriber) Unsubscribe(...string) mqtt.Token {
	return doneToken{}
}

func TestClientCaptureWritesLog(t *testing.T) {
	client := newTestClient(t)
	disconnected := false
	client.connect = func(cfg telemetry.ClientConfig) (telemetry.Subscriber, func(), error) {
		if cfg.Broker != "tcp://broker:1883" {
			t.Errorf("unexpected broker: %s", cfg.Broker)
		}
		return &scriptedSubscriber{payloads: []string{
			`{"adc_state": {"battery_mv": 4100, "ldo_inp_mv": 3980, "pressure_mv": 1}, "n_pulses": 0, "time_sec": 0}`,
			`{"adc_state": {"battery_mv": 4080, "ldo_inp_mv": 3960, "pressure_mv": 1}, "n_pulses": 1, "time_sec": 30}`,
		}}, func() { disconnected = true }, nil
	}

	out := filepath.Join(t.TempDir(), "capture.json")
	summary, err := client.Capture(context.Background(), CaptureRequest{
		Broker:  "tcp://broker:1883",
		Topic:   "device/+/state",
		Limit:   2,
		OutPath: out,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if summary.Samples != 2 || !disconnected {
		t.Fatalf("unexpected capture: %+v disconnected=%t", summary, disconnected)
	}
	samples, err := telemetry.LoadFile(out)
	if err != nil {
		t.Fatalf("load capture: %v", err)
	}
	if len(samples) != 2 || samples[1].TimestampSeconds != 30 {
		t.Fatalf("unexpected samples: %+v", samples)
	}

	if _, err := client.Capture(context.Background(), CaptureRequest{Topic: "t"}); err == nil {
		t.Fatal("expected error without output path")
	}
	if _, err := client.Capture(context.Background(), CaptureRequest{Topic: "t", OutPath: out, QoS: 3}); err == nil {
		t.Fatal("expected error for invalid qos")
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	if _, err := New(Options{StoreKind: "postgres"}); err == nil {
		t.Fatal("expected unsupported store error")
	}
}
