package sink

import (
	"context"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"

	"batsoc/internal/stats"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseSink stores report rows in soc_evaluations and one summary row
// per run in soc_runs.
type ClickHouseSink struct {
	conn driver.Conn
	now  func() time.Time
}

// NewClickHouseSink connects, pings and creates the tables if needed.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if cfg.Addr == "" {
		return nil, errors.New("clickhouse address is required")
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to clickhouse")
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "ping clickhouse at %s", cfg.Addr)
	}
	log.Printf("connected to clickhouse at %s", cfg.Addr)

	s := &ClickHouseSink{conn: conn, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) initSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := s.conn.Exec(ctx, tableSQL); err != nil {
			return errors.Wrap(err, "create clickhouse table")
		}
	}
	return nil
}

func (s *ClickHouseSink) Write(ctx context.Context, runID string, report stats.Report) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	ts := s.now()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO soc_evaluations")
	if err != nil {
		return errors.Wrap(err, "prepare evaluation batch")
	}
	for _, row := range evaluationRows(ts, runID, report) {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return errors.Wrap(err, "append evaluation row")
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrapf(err, "insert evaluations for run %s", runID)
	}

	if err := s.conn.Exec(ctx, `
		INSERT INTO soc_runs (timestamp, run_id, examples, mae, rmse)
		VALUES (?, ?, ?, ?, ?)
	`, runSummaryRow(ts, runID, report)...); err != nil {
		return errors.Wrapf(err, "insert summary for run %s", runID)
	}

	log.Printf("saved %d evaluation rows for run %s to clickhouse", len(report.Rows), runID)
	return nil
}

func (s *ClickHouseSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return errors.Wrap(err, "close clickhouse connection")
	}
	log.Println("clickhouse connection closed")
	return nil
}

// evaluationRows lays out report rows in soc_evaluations column order.
func evaluationRows(ts time.Time, runID string, report stats.Report) [][]any {
	rows := make([][]any, 0, len(report.Rows))
	for i, row := range report.Rows {
		rows = append(rows, []any{
			ts,
			runID,
			uint32(i),
			row.BatteryMilliVolts(),
			row.Expected,
			row.Predicted,
			row.AbsError(),
		})
	}
	return rows
}

func runSummaryRow(ts time.Time, runID string, report stats.Report) []any {
	return []any{ts, runID, uint32(len(report.Rows)), report.MAE, report.RMSE}
}
