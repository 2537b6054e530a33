package tracker

import (
	"context"
	"io/ioutil"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/p2plab/p2p-testbed/pkg/transfer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

type trackerOutcome struct {
	result model.TrackerResult
	err    error
}

// serveOnLoopback starts the tracker on an ephemeral port and returns the
// address plus the result future.
func serveOnLoopback(t *testing.T, expected int, deadline time.Duration) (string, <-chan trackerOutcome) {
	t.Helper()

	// Grab a free loopback port, release it, and let Serve re-bind it.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	done := make(chan trackerOutcome, 1)
	tr := New(expected, testLogger())
	go func() {
		result, err := tr.Serve(context.Background(), addr, deadline)
		done <- trackerOutcome{result, err}
	}()
	// Give the listener a moment to come up.
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return addr, done
}

func confirm(t *testing.T, addr string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte(transfer.ConfirmationToken + "\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestTracker_completesOnExpectedCount(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	const expected = 5
	addr, done := serveOnLoopback(t, expected, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < expected; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			confirm(t, addr)
		}()
	}
	wg.Wait()

	select {
	case outcome := <-done:
		require.NoError(t, outcome.err)
		result := outcome.result
		assert.True(t, result.Complete)
		assert.Equal(t, expected, result.Received)
		// Barrier monotonicity: last - first, non-negative, under the
		// deadline.
		assert.Equal(t, result.LastUnixMs-result.FirstUnixMs, result.TotalMs)
		assert.GreaterOrEqual(t, result.TotalMs, int64(0))
		assert.Less(t, result.TotalMs, time.Minute.Milliseconds())
	case <-time.After(10 * time.Second):
		t.Fatal("tracker never completed")
	}
}

func TestTracker_duplicatesAreCounted(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	addr, done := serveOnLoopback(t, 3, time.Minute)

	// One endpoint confirms twice; the barrier completes with only two
	// distinct endpoints because the protocol does not deduplicate.
	confirm(t, addr)
	confirm(t, addr)
	confirm(t, addr)

	select {
	case outcome := <-done:
		require.NoError(t, outcome.err)
		assert.True(t, outcome.result.Complete)
		assert.Equal(t, 3, outcome.result.Received)
	case <-time.After(10 * time.Second):
		t.Fatal("tracker never completed")
	}
}

func TestTracker_deadlineReportsPartialCount(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	addr, done := serveOnLoopback(t, 3, 500*time.Millisecond)
	confirm(t, addr)

	select {
	case outcome := <-done:
		assert.ErrorIs(t, outcome.err, model.ErrBarrierIncomplete)
		assert.False(t, outcome.result.Complete)
		assert.Equal(t, 1, outcome.result.Received)
		assert.Equal(t, 3, outcome.result.Expected)
	case <-time.After(10 * time.Second):
		t.Fatal("tracker never reported")
	}
}

func TestTracker_ignoresUnknownTokens(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	addr, done := serveOnLoopback(t, 1, 5*time.Second)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("HELLO\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	confirm(t, addr)

	select {
	case outcome := <-done:
		require.NoError(t, outcome.err)
		assert.Equal(t, 1, outcome.result.Received)
	case <-time.After(10 * time.Second):
		t.Fatal("tracker never completed")
	}
}

func TestDeadlineFor_growsWithPeers(t *testing.T) {
	assert.Less(t, DeadlineFor(2), DeadlineFor(50))
	assert.Greater(t, DeadlineFor(1), time.Duration(0))
}
