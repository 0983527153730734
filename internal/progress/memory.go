package progress

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a single-process Store used by tests. It does not expire
// keys.
type MemoryStore struct {
	mu    sync.Mutex
	scans map[uuid.UUID]*memoryScan
}

type memoryScan struct {
	logs     []string
	counts   map[string]int64
	total    int64
	done     map[int]bool
	claimed  bool
	canceled bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scans: make(map[uuid.UUID]*memoryScan)}
}

func (s *MemoryStore) scan(id uuid.UUID) *memoryScan {
	sc, ok := s.scans[id]
	if !ok {
		sc = &memoryScan{counts: make(map[string]int64), done: make(map[int]bool)}
		s.scans[id] = sc
	}
	return sc
}

func (s *MemoryStore) AppendLog(_ context.Context, scanID uuid.UUID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scan(scanID)
	sc.logs = append(sc.logs, line)
	return nil
}

func (s *MemoryStore) Logs(_ context.Context, scanID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scan(scanID).logs...), nil
}

func (s *MemoryStore) IncrCount(_ context.Context, scanID uuid.UUID, kind string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan(scanID).counts[kind] += delta
	return nil
}

func (s *MemoryStore) Counts(_ context.Context, scanID uuid.UUID) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range s.scan(scanID).counts {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) InitBatches(_ context.Context, scanID uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scan(scanID)
	sc.total = int64(total)
	sc.done = make(map[int]bool)
	sc.claimed = false
	return nil
}

func (s *MemoryStore) CompleteBatch(_ context.Context, scanID uuid.UUID, index int) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scan(scanID)
	duplicate := sc.done[index]
	sc.done[index] = true
	res := BatchResult{Done: int64(len(sc.done)), Total: sc.total, Duplicate: duplicate}
	if !duplicate && sc.total > 0 && res.Done >= sc.total && !sc.claimed {
		sc.claimed = true
		res.Claimed = true
	}
	return res, nil
}

func (s *MemoryStore) BatchDone(_ context.Context, scanID uuid.UUID, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	return ok && sc.done[index], nil
}

func (s *MemoryStore) RequestCancel(_ context.Context, scanID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan(scanID).canceled = true
	return nil
}

func (s *MemoryStore) CancelRequested(_ context.Context, scanID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	return ok && sc.canceled, nil
}

func (s *MemoryStore) Clear(_ context.Context, scanID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scans, scanID)
	return nil
}
