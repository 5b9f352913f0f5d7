package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"batsoc/internal/config"
	"batsoc/internal/dataextract"
	"batsoc/internal/dataset"
	"batsoc/internal/sink"
	"batsoc/internal/stats"
	"batsoc/internal/telemetry"
	"batsoc/pkg/batsoc"
)

var labelUsage = "label policy: " + strings.Join(dataset.ListLabelPolicies(), "|")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	cfg := config.Load()
	switch args[0] {
	case "train":
		return runTrain(ctx, cfg, args[1:])
	case "eval":
		return runEval(ctx, cfg, args[1:])
	case "sweep":
		return runSweep(ctx, cfg, args[1:])
	case "capture":
		return runCapture(ctx, cfg, args[1:])
	case "import":
		return runImport(args[1:])
	case "models":
		return runModels(ctx, cfg, args[1:])
	case "runs":
		return runRuns(ctx, cfg, args[1:])
	case "show":
		return runShow(ctx, cfg, args[1:])
	case "export":
		return runExport(ctx, cfg, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	store     *string
	dsn       *string
	artifacts *string
	sinkDir   *string
	chAddr    *string
}

func addClientFlags(fs *flag.FlagSet, cfg *config.Config) clientFlags {
	return clientFlags{
		store:     fs.String("store", cfg.Store, "store backend: memory|sqlite|mysql"),
		dsn:       fs.String("dsn", cfg.DSN, "sqlite path or mysql DSN"),
		artifacts: fs.String("artifacts", cfg.ArtifactsDir, "run artifacts directory"),
		sinkDir:   fs.String("sink-dir", "", "also write evaluation CSVs under this directory"),
		chAddr:    fs.String("clickhouse", cfg.ClickHouseAddr, "clickhouse address for evaluation rows (empty disables)"),
	}
}

// openClient builds and initializes the facade. The returned func closes the
// store and any sink connections.
func openClient(ctx context.Context, cfg *config.Config, f clientFlags) (*batsoc.Client, func(), error) {
	var sinks []sink.Sink
	var closers []func() error
	if *f.sinkDir != "" {
		sinks = append(sinks, sink.DirSink{Dir: *f.sinkDir})
	}
	if *f.chAddr != "" {
		ch, err := sink.NewClickHouseSink(ctx, sink.ClickHouseConfig{
			Addr:     *f.chAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, ch)
		closers = append(closers, ch.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	client, err := batsoc.New(batsoc.Options{
		StoreKind:    *f.store,
		DSN:          *f.dsn,
		ArtifactsDir: *f.artifacts,
		Sinks:        sinks,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, client.Close)
	if err := client.Init(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}
	return client, closeAll, nil
}

type trainFlags struct {
	configPath       *string
	data             *string
	sizes            *string
	activation       *string
	outputActivation *string
	learningRate     *float64
	iterations       *int
	trainFraction    *float64
	label            *string
	initializer      *string
	initScale        *float64
	seed             *int64
	evaluateAll      *bool
	order            *string
	modelOut         *string
}

func addTrainFlags(fs *flag.FlagSet) trainFlags {
	return trainFlags{
		configPath:       fs.String("config", "", "optional training config JSON path"),
		data:             fs.String("data", "", "telemetry log JSON path"),
		sizes:            fs.String("sizes", "3,3,3,1", "comma separated layer widths"),
		activation:       fs.String("activation", "sigmoid", "activation: identity|relu|tanh|sigmoid"),
		outputActivation: fs.String("output-activation", "", "output layer activation (defaults to -activation)"),
		learningRate:     fs.Float64("lr", 0.5, "learning rate"),
		iterations:       fs.Int("iterations", 100000, "backprop steps"),
		trainFraction:    fs.Float64("train-fraction", 0.8, "share of examples used for training"),
		label:            fs.String("label", "time_remaining", labelUsage),
		initializer:      fs.String("init", "uniform", "weight initializer: uniform|zero_centered"),
		initScale:        fs.Float64("init-scale", 1, "half width of zero_centered weights"),
		seed:             fs.Int64("seed", 1, "rng seed"),
		evaluateAll:      fs.Bool("evaluate-all", false, "evaluate on every example instead of the held-out split"),
		order:            fs.String("order", "expected_desc", "result order: expected_desc|expected_asc|none"),
		modelOut:         fs.String("model-out", "", "also write the snapshot to this file"),
	}
}

// trainRequest merges an optional JSON config with the flags. Flags win when
// set explicitly; without a config every flag applies.
func (f trainFlags) trainRequest(fs *flag.FlagSet) (batsoc.TrainRequest, error) {
	req, err := loadOrDefaultTrainRequest(*f.configPath)
	if err != nil {
		return batsoc.TrainRequest{}, err
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) {
		set[fl.Name] = true
	})
	apply := func(name string) bool {
		return *f.configPath == "" || set[name]
	}

	if apply("data") {
		req.DataPath = *f.data
	}
	if apply("sizes") {
		sizes, err := parseSizes(*f.sizes)
		if err != nil {
			return batsoc.TrainRequest{}, err
		}
		req.Sizes = sizes
	}
	if apply("activation") {
		req.Activation = *f.activation
	}
	if apply("output-activation") {
		req.OutputActivation = *f.outputActivation
	}
	if apply("lr") {
		req.LearningRate = *f.learningRate
	}
	if apply("iterations") {
		req.Iterations = *f.iterations
	}
	if apply("train-fraction") {
		req.TrainFraction = *f.trainFraction
	}
	if apply("label") {
		req.Label = *f.label
	}
	if apply("init") {
		req.Initializer = *f.initializer
	}
	if apply("init-scale") {
		req.InitScale = *f.initScale
	}
	if apply("seed") {
		req.Seed = *f.seed
	}
	if apply("evaluate-all") {
		req.EvaluateAll = *f.evaluateAll
	}
	if apply("order") {
		req.Order = *f.order
	}
	if apply("model-out") {
		req.ModelOut = *f.modelOut
	}
	if req.DataPath == "" {
		return batsoc.TrainRequest{}, errors.New("train requires --data")
	}
	return req, nil
}

func runTrain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	tf := addTrainFlags(fs)
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := tf.trainRequest(fs)
	if err != nil {
		return err
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		req.OnProgress = progressPrinter("training")
	}

	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"run_id":         summary.RunID,
			"model_id":       summary.ModelID,
			"artifacts_dir":  summary.ArtifactsDir,
			"mae":            summary.Report.MAE,
			"rmse":           summary.Report.RMSE,
			"baseline_mae":   summary.Baseline.MAE,
			"baseline_rmse":  summary.Baseline.RMSE,
			"train_examples": summary.TrainExamples,
			"test_examples":  summary.TestExamples,
			"train_millis":   summary.TrainDuration.Milliseconds(),
			"snapshot_bytes": summary.SnapshotBytes,
		})
	}

	fmt.Printf("run_id=%s model_id=%s\n", summary.RunID, summary.ModelID)
	fmt.Printf("examples train=%s test=%s trained_in=%s\n",
		humanize.Comma(int64(summary.TrainExamples)),
		humanize.Comma(int64(summary.TestExamples)),
		summary.TrainDuration.Round(time.Millisecond),
	)
	fmt.Printf("baseline mae=%.6f rmse=%.6f\n", summary.Baseline.MAE, summary.Baseline.RMSE)
	fmt.Printf("trained  mae=%.6f rmse=%.6f\n", summary.Report.MAE, summary.Report.RMSE)
	fmt.Printf("snapshot=%s params=%d artifacts=%s\n", humanize.Bytes(uint64(summary.SnapshotBytes)), summary.Params, filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runEval(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	modelID := fs.String("model-id", "", "stored model id")
	modelPath := fs.String("model", "", "snapshot file path")
	data := fs.String("data", "", "telemetry log JSON path")
	label := fs.String("label", "time_remaining", labelUsage)
	order := fs.String("order", "expected_desc", "result order: expected_desc|expected_asc|none")
	csvOut := fs.String("csv", "", "write the result table to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID != "" && *modelPath != "" {
		return errors.New("use either --model-id or --model, not both")
	}
	if *data == "" {
		return errors.New("eval requires --data")
	}

	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Evaluate(ctx, batsoc.EvalRequest{
		ModelID:   *modelID,
		ModelPath: *modelPath,
		DataPath:  *data,
		Label:     *label,
		Order:     *order,
		CSVOut:    *csvOut,
	})
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s examples=%s mae=%.6f rmse=%.6f\n",
		summary.RunID,
		humanize.Comma(int64(len(summary.Report.Rows))),
		summary.Report.MAE,
		summary.Report.RMSE,
	)
	return nil
}

func runSweep(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	tf := addTrainFlags(fs)
	seedList := fs.String("seeds", "", "comma separated seeds (overrides --runs)")
	runs := fs.Int("runs", 5, "number of consecutive seeds starting at --seed")
	workers := fs.Int("workers", cfg.Workers, "parallel trainings (0 uses GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := tf.trainRequest(fs)
	if err != nil {
		return err
	}
	seeds, err := sweepSeeds(*seedList, req.Seed, *runs)
	if err != nil {
		return err
	}

	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Sweep(ctx, batsoc.SweepRequest{
		TrainRequest: req,
		Seeds:        seeds,
		Workers:      *workers,
	})
	if err != nil {
		return err
	}
	for _, r := range summary.Summary.Results {
		fmt.Printf("seed=%d mae=%.6f rmse=%.6f\n", r.Seed, r.MAE, r.RMSE)
	}
	fmt.Printf("sweep_id=%s runs=%d best_seed=%d mae_mean=%.6f mae_std=%.6f rmse_mean=%.6f rmse_std=%.6f\n",
		summary.SweepID,
		summary.Summary.Runs,
		summary.Summary.BestSeed,
		summary.Summary.MAE.Mean,
		summary.Summary.MAE.StdDev,
		summary.Summary.RMSE.Mean,
		summary.Summary.RMSE.StdDev,
	)
	return nil
}

func runCapture(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	broker := fs.String("broker", cfg.MQTTBroker, "mqtt broker url")
	clientID := fs.String("client-id", cfg.MQTTClientID, "mqtt client id")
	topic := fs.String("topic", cfg.MQTTTopic, "topic publishing device state")
	qos := fs.Int("qos", cfg.MQTTQoS, "subscription qos")
	limit := fs.Int("limit", 0, "stop after this many samples (0 disables)")
	duration := fs.Duration("duration", 0, "stop after this long (0 disables)")
	ntpServer := fs.String("ntp", cfg.NTPServer, "ntp server for message timestamps (empty uses the system clock)")
	out := fs.String("out", "", "telemetry log output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("capture requires --out")
	}

	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Capture(ctx, batsoc.CaptureRequest{
		Broker:    *broker,
		ClientID:  *clientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Topic:     *topic,
		QoS:       *qos,
		Limit:     *limit,
		Duration:  *duration,
		NTPServer: *ntpServer,
		OutPath:   *out,
	})
	if err != nil {
		return err
	}
	fmt.Printf("captured samples=%s to=%s\n", humanize.Comma(int64(summary.Samples)), filepath.Clean(summary.OutPath))
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("csv", "", "device export CSV path")
	out := fs.String("out", "", "telemetry log output path")
	noHeader := fs.Bool("no-header", false, "CSV has no header row; columns are battery,ldo,pressure,pulses,time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("import requires --csv and --out")
	}

	opts := dataextract.DefaultTelemetryOptions()
	if *noHeader {
		opts = dataextract.TelemetryOptions{
			BatteryColumnIndex:  0,
			LDOColumnIndex:      1,
			PressureColumnIndex: 2,
			PulsesColumnIndex:   3,
			TimeColumnIndex:     4,
		}
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	samples, err := dataextract.ExtractTelemetryCSV(f, opts)
	if err != nil {
		return err
	}
	if err := telemetry.SaveFile(*out, samples); err != nil {
		return err
	}
	fmt.Printf("imported samples=%s to=%s\n", humanize.Comma(int64(len(samples))), filepath.Clean(*out))
	return nil
}

func runModels(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	items, err := client.Models(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no models found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("model_id=%s created_at=%s sizes=%v activations=%s snapshot=%s mae=%.6f rmse=%.6f\n",
			item.ID,
			item.CreatedAtUTC,
			item.Sizes,
			strings.Join(item.Activations, ","),
			humanize.Bytes(uint64(item.SnapshotSize)),
			item.MAE,
			item.RMSE,
		)
	}
	return nil
}

func runRuns(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	artifacts := fs.String("artifacts", cfg.ArtifactsDir, "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*artifacts)
	if err != nil {
		return err
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		if entries == nil {
			entries = []stats.RunIndexEntry{}
		}
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s sizes=%v seed=%d iterations=%s mae=%.6f rmse=%.6f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Sizes,
			e.Seed,
			humanize.Comma(int64(e.Iterations)),
			e.MAE,
			e.RMSE,
		)
	}
	return nil
}

func runShow(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("show requires --run-id")
	}
	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	details, err := client.Details(ctx, *runID)
	if err != nil {
		return err
	}
	return printJSON(details)
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "exports", "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, closeClient, err := openClient(ctx, cfg, cf)
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Export(ctx, batsoc.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

func progressPrinter(label string) func(step, total int) {
	return func(step, total int) {
		fmt.Fprintf(os.Stderr, "\r%s %s/%s", label, humanize.Comma(int64(step)), humanize.Comma(int64(total)))
		if step == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func parseSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid layer width %q", part)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

func sweepSeeds(list string, first int64, runs int) ([]int64, error) {
	if list != "" {
		parts := strings.Split(list, ",")
		seeds := make([]int64, 0, len(parts))
		for _, part := range parts {
			v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid seed %q", part)
			}
			seeds = append(seeds, v)
		}
		return seeds, nil
	}
	if runs <= 0 {
		return nil, errors.New("runs must be > 0")
	}
	seeds := make([]int64, runs)
	for i := range seeds {
		seeds[i] = first + int64(i)
	}
	return seeds, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: socctl <train|eval|sweep|capture|import|models|runs|show|export> [flags]", msg)
}
