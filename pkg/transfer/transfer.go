// Package transfer implements the dissemination workload that runs inside
// every endpoint: the origin sender, the super-peer relay and the leaf
// receiver, plus the confirmation client all of them use to report to the
// tracker.
package transfer

import "time"

// Fixed ports of the workload.
const (
	// OriginPort is where the origin serves the artifact.
	OriginPort = 7070

	// SuperPeerPort is where a super-peer serves its leaves.
	SuperPeerPort = 9090

	// TrackerPort is where the tracker accepts confirmations.
	TrackerPort = 5050
)

// Retry policy of every connector in the fabric. The attempt budget is
// deliberately enormous: endpoints start in arbitrary order and a
// receiver may dial long before its sender is up.
const (
	// MaxAttempts bounds every retry loop.
	MaxAttempts = 100000

	// RetryInterval is the fixed backoff between transfer connection
	// attempts.
	RetryInterval = 3 * time.Second

	// ConfirmRetryInterval is the fixed backoff between tracker
	// confirmation attempts.
	ConfirmRetryInterval = time.Second

	// AttemptTimeout bounds a single dial or read stall.
	AttemptTimeout = 30 * time.Second
)

// ConfirmationToken is the literal each endpoint delivers to the tracker,
// terminated by a newline.
const ConfirmationToken = "CONFIRMATION"
