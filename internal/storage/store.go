package storage

import (
	"context"

	"batsoc/internal/model"
)

// Store persists trained models and the runs that produced them. Get methods
// report a missing record with ok=false and a nil error. List methods return
// records newest first.
type Store interface {
	Init(ctx context.Context) error
	SaveModel(ctx context.Context, record model.ModelRecord) error
	GetModel(ctx context.Context, id string) (model.ModelRecord, bool, error)
	ListModels(ctx context.Context) ([]model.ModelRecord, error)
	SaveRun(ctx context.Context, record model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
