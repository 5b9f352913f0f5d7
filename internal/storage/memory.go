package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"batsoc/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	models      map[string]model.ModelRecord
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.models = make(map[string]model.ModelRecord)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveModel(_ context.Context, record model.ModelRecord) error {
	if record.ID == "" {
		return fmt.Errorf("model id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.models[record.ID] = copyModel(record)
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (model.ModelRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.ModelRecord{}, false, errNotInitialized
	}
	record, ok := s.models[id]
	if !ok {
		return model.ModelRecord{}, false, nil
	}
	return copyModel(record), true, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]model.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]model.ModelRecord, 0, len(s.models))
	for _, record := range s.models {
		out = append(out, copyModel(record))
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAtUTC, out[i].ID, out[j].CreatedAtUTC, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, record model.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	record.Sizes = append([]int(nil), record.Sizes...)
	s.runs[record.ID] = record
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, errNotInitialized
	}
	record, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	record.Sizes = append([]int(nil), record.Sizes...)
	return record, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		record.Sizes = append([]int(nil), record.Sizes...)
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAtUTC, out[i].ID, out[j].CreatedAtUTC, out[j].ID)
	})
	return out, nil
}

func copyModel(record model.ModelRecord) model.ModelRecord {
	record.Sizes = append([]int(nil), record.Sizes...)
	record.Activations = append([]string(nil), record.Activations...)
	record.Snapshot = append([]byte(nil), record.Snapshot...)
	return record
}

// newerFirst orders by creation time descending, then id descending.
func newerFirst(createdA, idA, createdB, idB string) bool {
	if createdA == createdB {
		return idA > idB
	}
	return createdA > createdB
}
