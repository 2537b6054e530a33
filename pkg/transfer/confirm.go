package transfer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// SendConfirmation delivers one CONFIRMATION line to the tracker. The
// connection is short-lived; the retry loop absorbs the window where the
// tracker has not bound its listener yet.
func SendConfirmation(ctx context.Context, trackerAddr string, logger *logrus.Logger) error {
	dialer := net.Dialer{Timeout: AttemptTimeout}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := func() error {
			conn, err := dialer.DialContext(ctx, "tcp", trackerAddr)
			if err != nil {
				return err
			}
			defer func() {
				_ = conn.Close()
			}()
			if err := conn.SetWriteDeadline(time.Now().Add(AttemptTimeout)); err != nil {
				return err
			}
			_, err = conn.Write([]byte(ConfirmationToken + "\n"))
			return err
		}()
		if err == nil {
			logger.Info("Confirmation sent to tracker")
			return nil
		}
		if attempt%100 == 1 {
			logger.Debugf("Confirmation attempt %d failed: %v", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ConfirmRetryInterval):
		}
	}
	return fmt.Errorf("tracker %s unreachable after %d attempts", trackerAddr, MaxAttempts)
}
