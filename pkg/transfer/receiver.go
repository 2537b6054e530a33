package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// ReceiveResult carries the timing metrics of a completed download.
// connectionMs is everything that was not payload time: dial attempts,
// backoff, and handshake, measured from the very first attempt.
type ReceiveResult struct {
	Path         string
	Bytes        int64
	Attempts     int
	ConnectionMs int64
	TransferMs   int64
	TotalMs      int64
}

// Receive dials addr until a connection yields at least one payload byte,
// streams the payload to destPath in arrival order, and reports the
// timing split. A connection that completes the handshake but closes
// before delivering a byte counts as a failed attempt.
func Receive(ctx context.Context, addr, destPath string, logger *logrus.Logger) (ReceiveResult, error) {
	attemptStart := time.Now()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ReceiveResult{}, ctx.Err()
		default:
		}

		bytes, transfer, err := receiveOnce(ctx, addr, destPath)
		if err != nil {
			if attempt%100 == 1 {
				logger.Debugf("Connect attempt %d to %s failed: %v", attempt, addr, err)
			}
			select {
			case <-ctx.Done():
				return ReceiveResult{}, ctx.Err()
			case <-time.After(RetryInterval):
			}
			continue
		}

		completion := time.Now()
		total := completion.Sub(attemptStart)
		totalMs := total.Milliseconds()
		transferMs := transfer.Milliseconds()
		result := ReceiveResult{
			Path:         destPath,
			Bytes:        bytes,
			Attempts:     attempt,
			ConnectionMs: totalMs - transferMs,
			TransferMs:   transferMs,
			TotalMs:      totalMs,
		}
		logger.Infof("Received %d bytes from %s into %s after %d attempts (connection %d ms, transfer %d ms)",
			bytes, addr, destPath, attempt, result.ConnectionMs, result.TransferMs)
		return result, nil
	}
	return ReceiveResult{}, fmt.Errorf("receiver: %s unreachable after %d attempts", addr, MaxAttempts)
}

// receiveOnce performs a single dial-and-download attempt. The byte
// stream is appended to destPath in strict arrival order; the transfer
// clock runs from the first payload byte to stream end.
func receiveOnce(ctx context.Context, addr, destPath string) (int64, time.Duration, error) {
	dialer := net.Dialer{Timeout: AttemptTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = conn.Close()
	}()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", destPath, err)
	}
	defer func() {
		_ = out.Close()
	}()

	var (
		total         int64
		streamStarted bool
		streamStart   time.Time
		streamEnd     time.Time
		buf           = make([]byte, 64*1024)
	)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(AttemptTimeout)); err != nil {
			return 0, 0, err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if !streamStarted {
				streamStarted = true
				streamStart = time.Now()
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return 0, 0, fmt.Errorf("write %s: %w", destPath, werr)
			}
			total += int64(n)
			streamEnd = time.Now()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, err
		}
	}

	if total == 0 {
		// Handshake succeeded but the sender closed without payload;
		// treat like a failed dial so the retry loop takes over.
		_ = os.Remove(destPath)
		return 0, 0, fmt.Errorf("peer %s closed before sending any bytes", addr)
	}
	if err := out.Sync(); err != nil {
		return 0, 0, fmt.Errorf("sync %s: %w", destPath, err)
	}
	return total, streamEnd.Sub(streamStart), nil
}
