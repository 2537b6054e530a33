package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/sirupsen/logrus"
)

// Acceptance bounds. Bandwidth is held to a flat 5%; the latency bound
// loosens as the shaped rate drops, because queueing under a tight rate
// cap dominates the RTT of slow edges.
const maxBandwidthErrorPercent = 5.0

// maxEdgeAttempts is how often a drifting edge is re-measured before it
// is reported.
const maxEdgeAttempts = 3

// iperfServerSettle is the pause between starting the one-shot throughput
// server and launching the client against it.
const iperfServerSettle = 5 * time.Second

// AcceptableLatencyError returns the latency error bound in percent for a
// measured bandwidth in Kbit/s. It is a non-increasing step function.
func AcceptableLatencyError(measuredBandwidth float64) float64 {
	switch {
	case measuredBandwidth < 100:
		return 35
	case measuredBandwidth <= 200:
		return 30
	case measuredBandwidth <= 500:
		return 25
	case measuredBandwidth <= 1000:
		return 20
	case measuredBandwidth <= 3000:
		return 15
	default:
		return 10
	}
}

// ErrorPercent is the relative deviation of a measurement from the
// applied value, in percent.
func ErrorPercent(measured, applied float64) float64 {
	if applied == 0 {
		return 0
	}
	diff := measured - applied
	if diff < 0 {
		diff = -diff
	}
	return diff / applied * 100
}

// Probe identifies one shaped edge to measure: commands run inside the
// source endpoint against the target's link address.
type Probe struct {
	Source   string
	Target   string
	TargetIP string
}

// Quality validates the shaped edges through the runtime collaborator.
type Quality struct {
	Runtime fabric.Runtime
	Logger  *logrus.Logger

	// ServerSettle is the pause between starting the one-shot throughput
	// server and launching the client against it.
	ServerSettle time.Duration

	applied map[string]model.ConnectionDetail
}

// NewQuality indexes the applied plan for lookup during probing.
func NewQuality(runtime fabric.Runtime, details []model.ConnectionDetail, logger *logrus.Logger) *Quality {
	applied := make(map[string]model.ConnectionDetail, len(details))
	for _, d := range details {
		applied[d.SourceName+"-"+d.TargetName] = d
	}
	return &Quality{Runtime: runtime, Logger: logger, ServerSettle: iperfServerSettle, applied: applied}
}

// ValidateEdge measures one edge with up to maxEdgeAttempts attempts and
// returns the final measurement. A measurement outside tolerance after
// all attempts carries Accepted=false and an ErrShapingDrift error.
func (q *Quality) ValidateEdge(ctx context.Context, probe Probe) (model.Measurement, error) {
	detail, ok := q.applied[probe.Source+"-"+probe.Target]
	if !ok {
		return model.Measurement{}, fmt.Errorf("no applied values for edge %s-%s", probe.Source, probe.Target)
	}
	appliedLatency, err := detail.AppliedLatency()
	if err != nil {
		return model.Measurement{}, fmt.Errorf("edge %s-%s: %w", probe.Source, probe.Target, err)
	}

	m := model.Measurement{
		Source:           probe.Source,
		Target:           probe.Target,
		AppliedBandwidth: detail.Bandwidth,
		AppliedLatency:   appliedLatency,
	}

	for attempt := 1; attempt <= maxEdgeAttempts; attempt++ {
		m.Attempts = attempt
		q.Logger.Infof("Testing connection from %s to %s (attempt %d)", probe.Source, probe.Target, attempt)

		latency, bandwidth, err := q.measure(ctx, probe)
		if err != nil {
			q.Logger.Warnf("Edge %s-%s attempt %d: %v", probe.Source, probe.Target, attempt, err)
			continue
		}
		m.MeasuredLatency = latency
		m.MeasuredBandwidth = bandwidth
		m.BandwidthError = ErrorPercent(bandwidth, float64(detail.Bandwidth))
		m.LatencyError = ErrorPercent(latency, appliedLatency)

		if m.BandwidthError <= maxBandwidthErrorPercent &&
			m.LatencyError <= AcceptableLatencyError(bandwidth) {
			m.Accepted = true
			q.Logger.Infof("Edge %s-%s within tolerance after %d attempts (bw %.2f%%, lat %.2f%%)",
				probe.Source, probe.Target, attempt, m.BandwidthError, m.LatencyError)
			return m, nil
		}
		q.Logger.Warnf("Edge %s-%s outside tolerance (bw %.2f%%, lat %.2f%% with bound %.0f%%), retrying",
			probe.Source, probe.Target, m.BandwidthError, m.LatencyError, AcceptableLatencyError(bandwidth))
	}
	return m, fmt.Errorf("%w: edge %s-%s after %d attempts", model.ErrShapingDrift, probe.Source, probe.Target, maxEdgeAttempts)
}

// measure runs one ping and one iperf3 round on the edge.
func (q *Quality) measure(ctx context.Context, probe Probe) (latency, bandwidth float64, err error) {
	pingOut, err := q.Runtime.Exec(ctx, probe.Source, "ping -c 4 "+probe.TargetIP)
	if err != nil {
		return 0, 0, fmt.Errorf("ping: %w", err)
	}
	latency, err = ParsePingAverage(pingOut)
	if err != nil {
		return 0, 0, err
	}

	if err := q.Runtime.ExecDetached(ctx, probe.Target, "iperf3 -s -1"); err != nil {
		return 0, 0, fmt.Errorf("iperf3 server: %w", err)
	}
	if q.ServerSettle > 0 {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-time.After(q.ServerSettle):
		}
	}

	iperfOut, err := q.Runtime.Exec(ctx, probe.Source, "iperf3 -c "+probe.TargetIP+" -J")
	if err != nil {
		return 0, 0, fmt.Errorf("iperf3 client: %w", err)
	}
	bandwidth, err = ParseIperfReceiverKbit(iperfOut)
	if err != nil {
		return 0, 0, err
	}
	return latency, bandwidth, nil
}

// ValidateAll measures every probe in order and returns one measurement
// per probe; aggregating the error rates is left to the caller. The
// returned drift list names the edges that stayed outside tolerance.
func (q *Quality) ValidateAll(ctx context.Context, probes []Probe) (measurements []model.Measurement, drifted []string, err error) {
	for _, probe := range probes {
		m, edgeErr := q.ValidateEdge(ctx, probe)
		if edgeErr != nil {
			if ctx.Err() != nil {
				return measurements, drifted, ctx.Err()
			}
			drifted = append(drifted, probe.Source+"-"+probe.Target)
		}
		measurements = append(measurements, m)
	}
	return measurements, drifted, nil
}
