// Package sink delivers evaluation reports to places outside the process.
package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"batsoc/internal/stats"
)

// Sink receives the evaluation report of one run.
type Sink interface {
	Write(ctx context.Context, runID string, report stats.Report) error
}

// Multi writes to every sink in order and stops at the first failure.
type Multi []Sink

func (m Multi) Write(ctx context.Context, runID string, report stats.Report) error {
	for _, s := range m {
		if err := s.Write(ctx, runID, report); err != nil {
			return err
		}
	}
	return nil
}

// DirSink writes <Dir>/<run id>/evaluation.csv.
type DirSink struct {
	Dir string
}

func (d DirSink) Write(_ context.Context, runID string, report stats.Report) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	runDir := filepath.Join(d.Dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", runDir)
	}
	path := filepath.Join(runDir, "evaluation.csv")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := stats.WriteResultCSV(f, report); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
