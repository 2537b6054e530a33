// Package runregistry is the coordination plane of a testbed run. The
// coordinator and every endpoint share a small key space: shaping
// acknowledgements, per-receiver transfer stats, the tracker verdict and
// the coarse run state consumed by the status web.
package runregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/model"
)

// Registry abstracts the coordination store so tests can run without a
// live etcd cluster.
type Registry interface {
	// AckShaping records that the named endpoint finished applying its
	// shaping rules.
	AckShaping(ctx context.Context, runID, peer string) error

	// WaitShaped blocks until expected endpoints have acked shaping, or
	// the context expires.
	WaitShaped(ctx context.Context, runID string, expected int) error

	// PutTransferStat publishes one receiver's timing metrics.
	PutTransferStat(ctx context.Context, runID string, stat model.TransferStat) error

	// ListTransferStats returns all published receiver metrics.
	ListTransferStats(ctx context.Context, runID string) ([]model.TransferStat, error)

	// PutTrackerResult publishes the barrier verdict.
	PutTrackerResult(ctx context.Context, runID string, result model.TrackerResult) error

	// WaitTrackerResult blocks until the tracker publishes its verdict, or
	// the context expires.
	WaitTrackerResult(ctx context.Context, runID string) (model.TrackerResult, error)

	// PutRunState records the coarse run lifecycle state.
	PutRunState(ctx context.Context, runID, state string) error

	Close() error
}

// pollInterval paces the polling loops of the memory registry.
const pollInterval = 500 * time.Millisecond

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("registry: marshal: %w", err)
	}
	return string(data), nil
}
