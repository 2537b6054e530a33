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

// Sender streams a file to every client that connects. One accepted
// connection carries exactly one copy of the artifact and is closed by
// the sending side once the stream is flushed, which is the receiver's
// end-of-file signal.
type Sender struct {
	FilePath string
	Logger   *logrus.Logger

	// OnBound, when set, fires once the listener is up. The origin uses
	// it to send its start-of-clock confirmation exactly when it becomes
	// dialable.
	OnBound func(addr string)

	// OnServed, when set, receives the wire duration of every completed
	// send.
	OnServed func(target string, wire time.Duration, sent int64)
}

// Serve binds addr and serves until the context is cancelled. The bind is
// retried with the shared retry policy because link addresses may not be
// configured yet when the workload starts.
func (s *Sender) Serve(ctx context.Context, addr string) error {
	var ln net.Listener
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		var lc net.ListenConfig
		ln, err = lc.Listen(ctx, "tcp", addr)
		if err == nil {
			break
		}
		s.Logger.Warnf("Bind attempt %d on %s failed: %v", attempt, addr, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ConfirmRetryInterval):
		}
	}
	if err != nil {
		return fmt.Errorf("sender: bind %s: %w", addr, err)
	}
	s.Logger.Infof("Serving %s on %s", s.FilePath, ln.Addr())
	if s.OnBound != nil {
		s.OnBound(ln.Addr().String())
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("sender: accept on %s: %w", addr, err)
			}
		}
		go s.serveConn(conn)
	}
}

func (s *Sender) serveConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	start := time.Now()
	f, err := os.Open(s.FilePath)
	if err != nil {
		s.Logger.Errorf("File not found: %s", s.FilePath)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	sent, err := io.Copy(conn, f)
	wire := time.Since(start)
	if err != nil {
		s.Logger.Errorf("Error sending file to %s: %v", conn.RemoteAddr(), err)
		return
	}
	s.Logger.Infof("File sent to %s: %d bytes in %v", conn.RemoteAddr(), sent, wire)
	if s.OnServed != nil {
		s.OnServed(conn.RemoteAddr().String(), wire, sent)
	}
}
