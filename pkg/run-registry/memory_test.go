package runregistry

import (
	"context"
	"testing"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_shapingBarrier(t *testing.T) {
	r := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		for _, peer := range []string{"1", "2", "origin"} {
			_ = r.AckShaping(ctx, "run", peer)
		}
	}()

	require.NoError(t, r.WaitShaped(ctx, "run", 3))
}

func TestMemoryRegistry_shapingBarrierTimesOut(t *testing.T) {
	r := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, r.AckShaping(context.Background(), "run", "1"))
	err := r.WaitShaped(ctx, "run", 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryRegistry_trackerResultAndStats(t *testing.T) {
	r := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	want := model.TrackerResult{Expected: 3, Received: 3, TotalMs: 1234, Complete: true}
	go func() {
		_ = r.PutTransferStat(ctx, "run", model.TransferStat{Peer: "2", TotalMs: 20})
		_ = r.PutTransferStat(ctx, "run", model.TransferStat{Peer: "1", TotalMs: 10})
		_ = r.PutTrackerResult(ctx, "run", want)
	}()

	got, err := r.WaitTrackerResult(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	stats, err := r.ListTransferStats(ctx, "run")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	// Deterministic listing order by peer name.
	assert.Equal(t, "1", stats[0].Peer)
	assert.Equal(t, "2", stats[1].Peer)

	require.NoError(t, r.PutRunState(ctx, "run", "done"))
	assert.Equal(t, "done", r.RunState("run"))
}
