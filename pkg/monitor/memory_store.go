package monitor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
)

// MemoryStore is a goroutine-safe Store backed by maps. Values are kept
// encoded so later mutations by steps never leak into a mirrored snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

type memoryRun struct {
	meta   Run
	values map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memoryRun)}
}

func (s *MemoryStore) StartRun(ctx context.Context, run api.RunInfo, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = &memoryRun{
		meta: Run{
			ID:        run.ID,
			Workflow:  run.Workflow,
			Status:    StatusRunning,
			StartedAt: at,
		},
		values: make(map[string][]byte),
	}
	return nil
}

func (s *MemoryStore) PutValue(ctx context.Context, runID, key string, value any) error {
	data, err := codec.EncodeValue(codec.Portable(value))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	r.values[key] = data
	return nil
}

func (s *MemoryStore) FinishRun(ctx context.Context, runID string, status Status, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	r.meta.Status = status
	r.meta.Error = errMsg
	r.meta.FinishedAt = &at
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}

	out := r.meta
	out.Values = make(map[string]any, len(r.values))
	for k, data := range r.values {
		v, err := codec.DecodeValue(data)
		if err != nil {
			return nil, err
		}
		out.Values[k] = v
	}
	return &out, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		meta := r.meta
		out = append(out, &meta)
	}
	sortRecentFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortRecentFirst(runs []*Run) {
	slices.SortFunc(runs, func(a, b *Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
