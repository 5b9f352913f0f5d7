package batsoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"batsoc/internal/model"
	"batsoc/internal/nn"
	"batsoc/internal/sink"
	"batsoc/internal/snapshot"
	"batsoc/internal/stats"
	"batsoc/internal/storage"
	"batsoc/internal/telemetry"
	"batsoc/internal/training"
)

const (
	defaultArtifactsDir = "socruns"
	defaultExportsDir   = "exports"
)

type Options struct {
	StoreKind    string
	DSN          string
	ArtifactsDir string
	ExportsDir   string
	// Sinks receive every training and evaluation report.
	Sinks []sink.Sink
}

type Client struct {
	store        storage.Store
	sinks        sink.Multi
	artifactsDir string
	exportsDir   string
	now          func() time.Time
	connect      connectFunc
}

type TrainRequest struct {
	DataPath string
	// Samples, when set, are used instead of reading DataPath.
	Samples []telemetry.Sample

	Sizes            []int
	Activation       string
	OutputActivation string
	LearningRate     float64
	Iterations       int
	TrainFraction    float64
	Label            string
	Initializer      string
	InitScale        float64
	Seed             int64
	EvaluateAll      bool
	Order            string

	// ModelOut additionally writes the snapshot to this file.
	ModelOut         string
	SnapshotCapacity int
	OnProgress       func(step, total int)
}

type TrainSummary struct {
	RunID         string
	ModelID       string
	ArtifactsDir  string
	Report        stats.Report
	Baseline      stats.Report
	TrainExamples int
	TestExamples  int
	TrainDuration time.Duration
	SnapshotBytes int
	Params        int
}

type EvalRequest struct {
	ModelID   string
	ModelPath string
	DataPath  string
	Samples   []telemetry.Sample
	Label     string
	Order     string
	// CSVOut writes the result table to this file.
	CSVOut string
}

type EvalSummary struct {
	RunID  string
	Report stats.Report
}

type SweepRequest struct {
	TrainRequest
	Seeds   []int64
	Workers int
}

type SweepSummary struct {
	SweepID      string
	ArtifactsDir string
	Summary      stats.SweepSummary
}

type ModelItem struct {
	ID           string
	CreatedAtUTC string
	Sizes        []int
	Activations  []string
	SnapshotSize int
	MAE          float64
	RMSE         float64
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, opts.DSN)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		sinks:        append(sink.Multi(nil), opts.Sinks...),
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		now:          time.Now,
		connect:      connectMQTT,
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (req TrainRequest) config() training.Config {
	cfg := training.DefaultConfig()
	if len(req.Sizes) > 0 {
		cfg.Sizes = append([]int(nil), req.Sizes...)
	}
	if req.Activation != "" {
		cfg.Activation = req.Activation
	}
	cfg.OutputActivation = req.OutputActivation
	if req.LearningRate != 0 {
		cfg.LearningRate = req.LearningRate
	}
	if req.Iterations > 0 {
		cfg.Iterations = req.Iterations
	}
	if req.TrainFraction > 0 {
		cfg.TrainFraction = req.TrainFraction
	}
	if req.Label != "" {
		cfg.Label = req.Label
	}
	if req.Initializer != "" {
		cfg.Initializer = req.Initializer
	}
	if req.InitScale > 0 {
		cfg.InitScale = req.InitScale
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.Order != "" {
		cfg.Order = req.Order
	}
	cfg.EvaluateAll = req.EvaluateAll
	cfg.OnProgress = req.OnProgress
	return cfg
}

func loadSamples(path string, samples []telemetry.Sample) ([]telemetry.Sample, error) {
	if len(samples) > 0 {
		return samples, nil
	}
	if path == "" {
		return nil, errors.New("data path is required")
	}
	return telemetry.LoadFile(path)
}

// Train runs one training session, then persists the model and run, writes
// run artifacts and forwards the report to the configured sinks.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	samples, err := loadSamples(req.DataPath, req.Samples)
	if err != nil {
		return TrainSummary{}, err
	}
	cfg := req.config()
	result, err := training.Train(ctx, cfg, samples)
	if err != nil {
		return TrainSummary{}, err
	}

	capacity := req.SnapshotCapacity
	if capacity <= 0 {
		capacity = snapshot.MaxSize
	}
	snap, err := snapshot.EncodeWithCapacity(result.Network, capacity)
	if err != nil {
		return TrainSummary{}, err
	}
	if req.ModelOut != "" {
		if err := os.WriteFile(req.ModelOut, snap, 0o644); err != nil {
			return TrainSummary{}, fmt.Errorf("write model: %w", err)
		}
	}

	created := model.Timestamp(c.now())
	runID := model.NewID()
	modelRecord := model.ModelRecord{
		ID:           model.NewID(),
		CreatedAtUTC: created,
		Sizes:        result.Network.Sizes(),
		Activations:  result.Network.Activations(),
		Snapshot:     snap,
		MAE:          result.Report.MAE,
		RMSE:         result.Report.RMSE,
	}
	storage.Stamp(&modelRecord.VersionedRecord)
	runRecord := model.RunRecord{
		ID:               runID,
		ModelID:          modelRecord.ID,
		CreatedAtUTC:     created,
		DataPath:         req.DataPath,
		Sizes:            append([]int(nil), cfg.Sizes...),
		Activation:       cfg.Activation,
		OutputActivation: cfg.OutputActivation,
		LearningRate:     cfg.LearningRate,
		Iterations:       cfg.Iterations,
		TrainFraction:    cfg.TrainFraction,
		Label:            cfg.Label,
		Initializer:      cfg.Initializer,
		InitScale:        cfg.InitScale,
		Seed:             cfg.Seed,
		EvaluateAll:      cfg.EvaluateAll,
		Order:            cfg.Order,
		MAE:              result.Report.MAE,
		RMSE:             result.Report.RMSE,
		BaselineMAE:      result.Baseline.MAE,
		BaselineRMSE:     result.Baseline.RMSE,
		TrainExamples:    result.TrainExamples,
		TestExamples:     result.TestExamples,
		TrainMillis:      result.TrainDuration.Milliseconds(),
	}
	storage.Stamp(&runRecord.VersionedRecord)
	if err := c.store.SaveModel(ctx, modelRecord); err != nil {
		return TrainSummary{}, fmt.Errorf("save model: %w", err)
	}
	if err := c.store.SaveRun(ctx, runRecord); err != nil {
		return TrainSummary{}, fmt.Errorf("save run: %w", err)
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:   runConfig(runID, req.DataPath, cfg),
		Metrics:  runMetrics(result, len(snap)),
		Report:   result.Report,
		Snapshot: snap,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		DataPath:     req.DataPath,
		Sizes:        append([]int(nil), cfg.Sizes...),
		Seed:         cfg.Seed,
		Iterations:   cfg.Iterations,
		MAE:          result.Report.MAE,
		RMSE:         result.Report.RMSE,
		CreatedAtUTC: created,
	}); err != nil {
		return TrainSummary{}, err
	}
	if err := c.sinks.Write(ctx, runID, result.Report); err != nil {
		return TrainSummary{}, fmt.Errorf("write report: %w", err)
	}

	return TrainSummary{
		RunID:         runID,
		ModelID:       modelRecord.ID,
		ArtifactsDir:  runDir,
		Report:        result.Report,
		Baseline:      result.Baseline,
		TrainExamples: result.TrainExamples,
		TestExamples:  result.TestExamples,
		TrainDuration: result.TrainDuration,
		SnapshotBytes: len(snap),
		Params:        result.Network.ParamCount(),
	}, nil
}

func runConfig(runID, dataPath string, cfg training.Config) stats.RunConfig {
	return stats.RunConfig{
		RunID:            runID,
		DataPath:         dataPath,
		Sizes:            append([]int(nil), cfg.Sizes...),
		Activation:       cfg.Activation,
		OutputActivation: cfg.OutputActivation,
		LearningRate:     cfg.LearningRate,
		Iterations:       cfg.Iterations,
		TrainFraction:    cfg.TrainFraction,
		Label:            cfg.Label,
		Initializer:      cfg.Initializer,
		InitScale:        cfg.InitScale,
		Seed:             cfg.Seed,
		EvaluateAll:      cfg.EvaluateAll,
		Order:            cfg.Order,
	}
}

func runMetrics(result training.Result, snapshotBytes int) stats.RunMetrics {
	return stats.RunMetrics{
		MAE:           result.Report.MAE,
		RMSE:          result.Report.RMSE,
		BaselineMAE:   result.Baseline.MAE,
		BaselineRMSE:  result.Baseline.RMSE,
		TrainExamples: result.TrainExamples,
		TestExamples:  result.TestExamples,
		TrainMillis:   result.TrainDuration.Milliseconds(),
		SnapshotBytes: snapshotBytes,
	}
}

// Evaluate scores a stored or file-based model against a telemetry log.
func (c *Client) Evaluate(ctx context.Context, req EvalRequest) (EvalSummary, error) {
	net, err := c.loadNetwork(ctx, req.ModelID, req.ModelPath)
	if err != nil {
		return EvalSummary{}, err
	}
	samples, err := loadSamples(req.DataPath, req.Samples)
	if err != nil {
		return EvalSummary{}, err
	}
	report, err := training.Evaluate(net, samples, req.Label, req.Order)
	if err != nil {
		return EvalSummary{}, err
	}

	if req.CSVOut != "" {
		f, err := os.Create(req.CSVOut)
		if err != nil {
			return EvalSummary{}, err
		}
		if err := stats.WriteResultCSV(f, report); err != nil {
			_ = f.Close()
			return EvalSummary{}, err
		}
		if err := f.Close(); err != nil {
			return EvalSummary{}, err
		}
	}

	runID := model.NewID()
	if err := c.sinks.Write(ctx, runID, report); err != nil {
		return EvalSummary{}, fmt.Errorf("write report: %w", err)
	}
	return EvalSummary{RunID: runID, Report: report}, nil
}

func (c *Client) loadNetwork(ctx context.Context, modelID, modelPath string) (*nn.Network, error) {
	var data []byte
	switch {
	case modelID != "":
		record, ok, err := c.store.GetModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("model not found: %s", modelID)
		}
		data = record.Snapshot
	case modelPath != "":
		var err error
		data, err = os.ReadFile(modelPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("model id or model path is required")
	}
	return snapshot.Decode(data)
}

// Sweep trains one network per seed and writes a sweep summary.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	samples, err := loadSamples(req.DataPath, req.Samples)
	if err != nil {
		return SweepSummary{}, err
	}
	results, err := training.Sweep(ctx, req.config(), samples, req.Seeds, req.Workers)
	if err != nil {
		return SweepSummary{}, err
	}
	summary, err := training.Summarize(results)
	if err != nil {
		return SweepSummary{}, err
	}

	sweepID := "sweep-" + model.NewID()
	sweepDir := filepath.Join(c.artifactsDir, sweepID)
	if err := os.MkdirAll(sweepDir, 0o755); err != nil {
		return SweepSummary{}, err
	}
	if err := stats.WriteSweepSummary(sweepDir, summary); err != nil {
		return SweepSummary{}, err
	}
	return SweepSummary{SweepID: sweepID, ArtifactsDir: sweepDir, Summary: summary}, nil
}

func (c *Client) Models(ctx context.Context) ([]ModelItem, error) {
	records, err := c.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ModelItem, 0, len(records))
	for _, record := range records {
		items = append(items, ModelItem{
			ID:           record.ID,
			CreatedAtUTC: record.CreatedAtUTC,
			Sizes:        record.Sizes,
			Activations:  record.Activations,
			SnapshotSize: len(record.Snapshot),
			MAE:          record.MAE,
			RMSE:         record.RMSE,
		})
	}
	return items, nil
}

// Runs lists indexed runs from the artifacts directory, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

// Run returns the stored record of one run.
func (c *Client) Run(ctx context.Context, runID string) (model.RunRecord, error) {
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return record, nil
}

// RunDetails is everything known about one run id: the stored record and
// the artifacts written for it. Sweep ids carry only the sweep summary.
type RunDetails struct {
	RunID   string               `json:"run_id"`
	Record  *model.RunRecord     `json:"record,omitempty"`
	Config  *stats.RunConfig     `json:"config,omitempty"`
	Metrics *stats.RunMetrics    `json:"metrics,omitempty"`
	Results []stats.ResultRecord `json:"results,omitempty"`
	Sweep   *stats.SweepSummary  `json:"sweep,omitempty"`
}

// Details collects the stored record and artifacts of a training run or the
// summary of a sweep.
func (c *Client) Details(ctx context.Context, runID string) (RunDetails, error) {
	if runID == "" {
		return RunDetails{}, errors.New("run id is required")
	}
	details := RunDetails{RunID: runID}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if ok {
		details.Record = &record
	}
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if ok {
		details.Config = &cfg
	}
	metrics, ok, err := stats.ReadRunMetrics(c.artifactsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if ok {
		details.Metrics = &metrics
	}
	results, ok, err := stats.ReadRunResults(c.artifactsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if ok {
		details.Results = results
	}
	summary, ok, err := stats.ReadSweepSummary(c.artifactsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if ok {
		details.Sweep = &summary
	}
	if details.Record == nil && details.Config == nil && details.Sweep == nil {
		return RunDetails{}, fmt.Errorf("run not found: %s", runID)
	}
	return details, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available")
		}
		runID = entries[0].RunID
	}
	if runID == "" {
		return ExportSummary{}, errors.New("run id is required")
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}
