package storage

import (
	"context"
	"testing"

	"batsoc/internal/model"
)

func testModel(id, created string) model.ModelRecord {
	record := model.ModelRecord{
		ID:           id,
		CreatedAtUTC: created,
		Sizes:        []int{3, 3, 3, 1},
		Activations:  []string{"sigmoid", "sigmoid", "sigmoid"},
		Snapshot:     []byte{'S', 'O', 'C', '1', 1},
		MAE:          0.04,
		RMSE:         0.05,
	}
	Stamp(&record.VersionedRecord)
	return record
}

func testRun(id, modelID, created string) model.RunRecord {
	record := model.RunRecord{
		ID:            id,
		ModelID:       modelID,
		CreatedAtUTC:  created,
		Sizes:         []int{3, 3, 3, 1},
		Activation:    "sigmoid",
		LearningRate:  0.5,
		Iterations:    1000,
		TrainFraction: 0.8,
		Label:         "time_remaining",
		Seed:          1,
		MAE:           0.04,
		BaselineMAE:   0.4,
	}
	Stamp(&record.VersionedRecord)
	return record
}

// exerciseStore checks the behavior every Store backend shares. The store
// must be initialized and empty.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetModel(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing model; ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run; ok=%t err=%v", ok, err)
	}

	older := testModel("m-1", "2026-02-10T10:00:00.000000000Z")
	newer := testModel("m-2", "2026-02-10T11:00:00.000000000Z")
	for _, record := range []model.ModelRecord{older, newer} {
		if err := store.SaveModel(ctx, record); err != nil {
			t.Fatalf("save model %s: %v", record.ID, err)
		}
	}

	loaded, ok, err := store.GetModel(ctx, "m-1")
	if err != nil || !ok {
		t.Fatalf("get model: ok=%t err=%v", ok, err)
	}
	if string(loaded.Snapshot) != string(older.Snapshot) || len(loaded.Sizes) != 4 || loaded.MAE != older.MAE {
		t.Fatalf("unexpected model loaded: %+v", loaded)
	}

	models, err := store.ListModels(ctx)
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 || models[0].ID != "m-2" || models[1].ID != "m-1" {
		t.Fatalf("unexpected model order: %+v", models)
	}

	updated := older
	updated.MAE = 0.01
	if err := store.SaveModel(ctx, updated); err != nil {
		t.Fatalf("upsert model: %v", err)
	}
	loaded, _, err = store.GetModel(ctx, "m-1")
	if err != nil || loaded.MAE != 0.01 {
		t.Fatalf("expected upserted mae, got %+v err=%v", loaded, err)
	}

	run := testRun("r-1", "m-2", "2026-02-10T11:00:01.000000000Z")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loadedRun, ok, err := store.GetRun(ctx, "r-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if loadedRun.ModelID != "m-2" || loadedRun.BaselineMAE != 0.4 || loadedRun.Label != "time_remaining" {
		t.Fatalf("unexpected run loaded: %+v", loadedRun)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %+v err=%v", runs, err)
	}
}
