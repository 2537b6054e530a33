package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-ping/ping"
	"github.com/sirupsen/logrus"
)

// SettleDelay returns the staircase delay the origin waits before binding
// its listener when no coordination plane is configured. The step values
// were calibrated against how long fabric shaping takes to settle at each
// scale.
func SettleDelay(totalPeers int) time.Duration {
	steps := []struct {
		upTo  int
		delay time.Duration
	}{
		{6, 50 * time.Second},
		{11, 80 * time.Second},
		{21, 150 * time.Second},
		{36, 250 * time.Second},
		{51, 350 * time.Second},
		{76, 500 * time.Second},
		{101, 800 * time.Second},
		{151, 1200 * time.Second},
	}
	for _, s := range steps {
		if totalPeers <= s.upTo {
			return s.delay
		}
	}
	return 1200 * time.Second
}

// WaitForOrigin blocks until the origin's management address answers an
// ICMP echo. Endpoints start in arbitrary order, so the first outbound
// connection is delayed until the origin is reachable at all.
func WaitForOrigin(ctx context.Context, originIP string, logger *logrus.Logger) error {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		ok, err := pingOnce(originIP)
		if ok {
			logger.Infof("Origin %s reachable after %d probes", originIP, attempt)
			return nil
		}
		if err != nil && attempt%30 == 1 {
			logger.Debugf("Origin probe %d failed: %v", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ConfirmRetryInterval):
		}
	}
	return fmt.Errorf("origin %s unreachable after %d probes", originIP, MaxAttempts)
}

func pingOnce(addr string) (bool, error) {
	pinger, err := ping.NewPinger(addr)
	if err != nil {
		return false, err
	}
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	// Raw ICMP sockets; the endpoints run privileged.
	pinger.SetPrivileged(os.Geteuid() == 0)
	if err := pinger.Run(); err != nil {
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

// WaitForFile blocks until the named file exists, polling once a second.
// The shaping script drops a marker file when it finishes; the workload
// must not open connections through unshaped links.
func WaitForFile(ctx context.Context, path string, logger *logrus.Logger) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			logger.Debugf("Marker %s present", path)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
