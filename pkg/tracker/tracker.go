// Package tracker implements the confirmation barrier: a single TCP
// endpoint that counts CONFIRMATION lines and times the dissemination
// from the first to the last arrival.
package tracker

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/p2plab/p2p-testbed/pkg/transfer"
	"github.com/sirupsen/logrus"
)

// DeadlineFor scales the barrier deadline with the expected confirmation
// count: a fixed floor plus a per-endpoint budget that covers the slowest
// shaped edges.
func DeadlineFor(expected int) time.Duration {
	return 10*time.Minute + time.Duration(expected)*2*time.Minute
}

// Tracker owns the only cross-connection mutable state of the barrier:
// the counter and the first/last arrival instants, guarded by one mutex.
type Tracker struct {
	Expected int
	Logger   *logrus.Logger

	mu       sync.Mutex
	received int
	first    time.Time
	last     time.Time

	done chan struct{}
}

// New returns a tracker expecting the given confirmation count.
func New(expected int, logger *logrus.Logger) *Tracker {
	return &Tracker{
		Expected: expected,
		Logger:   logger,
		done:     make(chan struct{}),
	}
}

// Serve accepts confirmations on addr until the expected count arrives,
// the deadline passes, or the context is cancelled. The returned result
// is valid in every case; on deadline it carries the partial count and
// the error wraps ErrBarrierIncomplete.
func (t *Tracker) Serve(ctx context.Context, addr string, deadline time.Duration) (model.TrackerResult, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return model.TrackerResult{}, fmt.Errorf("tracker: bind %s: %w", addr, err)
	}
	defer func() {
		_ = ln.Close()
	}()
	t.Logger.Infof("Tracker listening on %s, expecting %d confirmations", addr, t.Expected)

	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()
	go t.acceptLoop(acceptCtx, ln)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-t.done:
		result := t.snapshot(true)
		t.Logger.Infof("All %d confirmations received, total duration %d ms", result.Received, result.TotalMs)
		return result, nil
	case <-timer.C:
		result := t.snapshot(false)
		return result, fmt.Errorf("%w: %d of %d", model.ErrBarrierIncomplete, result.Received, t.Expected)
	case <-ctx.Done():
		return t.snapshot(false), ctx.Err()
	}
}

func (t *Tracker) acceptLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Confirmations are short one-line connections; handling them
		// inline keeps arrival ordering out of the picture entirely.
		t.handle(conn)
	}
}

func (t *Tracker) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	_ = conn.SetReadDeadline(time.Now().Add(transfer.AttemptTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if line != transfer.ConfirmationToken {
		t.Logger.Warnf("Ignoring unexpected token %q from %s", line, conn.RemoteAddr())
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if t.received == 0 {
		t.first = now
	}
	t.received++
	t.last = now
	t.Logger.Infof("Received confirmation %d of %d", t.received, t.Expected)
	if t.received == t.Expected {
		close(t.done)
	}
}

func (t *Tracker) snapshot(complete bool) model.TrackerResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := model.TrackerResult{
		Expected: t.Expected,
		Received: t.received,
		Complete: complete,
	}
	if t.received > 0 {
		result.FirstUnixMs = t.first.UnixMilli()
		result.LastUnixMs = t.last.UnixMilli()
		result.TotalMs = t.last.Sub(t.first).Milliseconds()
	}
	return result
}
