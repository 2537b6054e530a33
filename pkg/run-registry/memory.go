package runregistry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/model"
)

// MemoryRegistry keeps the coordination state in process. It backs the
// test suite and single-process dry runs where no etcd cluster exists.
type MemoryRegistry struct {
	mu       sync.Mutex
	shaped   map[string]map[string]bool
	stats    map[string]map[string]model.TransferStat
	tracker  map[string]model.TrackerResult
	hasTrack map[string]bool
	states   map[string]string
}

// NewMemory returns an empty in-process registry.
func NewMemory() *MemoryRegistry {
	return &MemoryRegistry{
		shaped:   make(map[string]map[string]bool),
		stats:    make(map[string]map[string]model.TransferStat),
		tracker:  make(map[string]model.TrackerResult),
		hasTrack: make(map[string]bool),
		states:   make(map[string]string),
	}
}

// AckShaping implements Registry.
func (r *MemoryRegistry) AckShaping(ctx context.Context, runID, peer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shaped[runID] == nil {
		r.shaped[runID] = make(map[string]bool)
	}
	r.shaped[runID][peer] = true
	return nil
}

// WaitShaped implements Registry by polling.
func (r *MemoryRegistry) WaitShaped(ctx context.Context, runID string, expected int) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		r.mu.Lock()
		count := len(r.shaped[runID])
		r.mu.Unlock()
		if count >= expected {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PutTransferStat implements Registry.
func (r *MemoryRegistry) PutTransferStat(ctx context.Context, runID string, stat model.TransferStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats[runID] == nil {
		r.stats[runID] = make(map[string]model.TransferStat)
	}
	r.stats[runID][stat.Peer] = stat
	return nil
}

// ListTransferStats implements Registry.
func (r *MemoryRegistry) ListTransferStats(ctx context.Context, runID string) ([]model.TransferStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]string, 0, len(r.stats[runID]))
	for peer := range r.stats[runID] {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	stats := make([]model.TransferStat, 0, len(peers))
	for _, peer := range peers {
		stats = append(stats, r.stats[runID][peer])
	}
	return stats, nil
}

// PutTrackerResult implements Registry.
func (r *MemoryRegistry) PutTrackerResult(ctx context.Context, runID string, result model.TrackerResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker[runID] = result
	r.hasTrack[runID] = true
	return nil
}

// WaitTrackerResult implements Registry by polling.
func (r *MemoryRegistry) WaitTrackerResult(ctx context.Context, runID string) (model.TrackerResult, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		r.mu.Lock()
		result, ok := r.tracker[runID], r.hasTrack[runID]
		r.mu.Unlock()
		if ok {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return model.TrackerResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PutRunState implements Registry.
func (r *MemoryRegistry) PutRunState(ctx context.Context, runID, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[runID] = state
	return nil
}

// RunState returns the recorded state, for tests.
func (r *MemoryRegistry) RunState(runID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[runID]
}

// Close implements Registry.
func (r *MemoryRegistry) Close() error {
	return nil
}
