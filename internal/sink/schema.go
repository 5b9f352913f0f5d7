package sink

const (
	// EvaluationsTableSQL holds one row per evaluated example.
	EvaluationsTableSQL = `
		CREATE TABLE IF NOT EXISTS soc_evaluations (
			timestamp DateTime64(3),
			run_id String,
			row_index UInt32,
			battery_mv UInt16,
			expected Float64,
			predicted Float64,
			abs_error Float64
		) ENGINE = MergeTree()
		ORDER BY (run_id, row_index)
		PARTITION BY toYYYYMM(timestamp)
	`

	// RunsTableSQL holds one summary row per evaluated run.
	RunsTableSQL = `
		CREATE TABLE IF NOT EXISTS soc_runs (
			timestamp DateTime64(3),
			run_id String,
			examples UInt32,
			mae Float64,
			rmse Float64
		) ENGINE = MergeTree()
		ORDER BY (run_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

func AllTables() []string {
	return []string{
		EvaluationsTableSQL,
		RunsTableSQL,
	}
}
