package model

import "errors"

// Design-time errors. These abort the run before any endpoint starts.
var (
	// ErrSamplerUnsatisfiable is returned when the rejection sampling loop
	// cannot produce a non-negative value within its attempt budget.
	ErrSamplerUnsatisfiable = errors.New("sampler: rejection loop exhausted its attempt budget")

	// ErrOverlayInvalid is returned when a partitioner mapping violates the
	// overlay invariants (coverage, path length, empty super-peer).
	ErrOverlayInvalid = errors.New("planner: overlay violates dissemination invariants")

	// ErrNoUplinkBudget is returned when a source peer has no upload
	// capacity to divide between its overlay targets.
	ErrNoUplinkBudget = errors.New("planner: source peer has no uplink budget")

	// ErrOverAllocation indicates the fair-share passes allocated more than
	// the source's upload ceiling. This is an internal invariant violation.
	ErrOverAllocation = errors.New("planner: allocation exceeds source upload ceiling")
)

// Run-level and validator errors.
var (
	// ErrBarrierIncomplete is returned when the tracker misses its
	// confirmation deadline.
	ErrBarrierIncomplete = errors.New("tracker: not all confirmations arrived before the deadline")

	// ErrRunDeadline is returned when the run-wide deadline expires.
	ErrRunDeadline = errors.New("coordinator: run deadline reached")

	// ErrShapingDrift marks an overlay edge whose measured latency or
	// bandwidth stayed outside tolerance for all validation attempts.
	ErrShapingDrift = errors.New("validator: measured edge quality outside tolerance")

	// ErrMissingArtifact is returned when no candidate path inside an
	// endpoint holds the received file.
	ErrMissingArtifact = errors.New("validator: received artifact not found in endpoint")

	// ErrHashMismatch is returned when a received artifact's SHA-256 does
	// not equal the origin hash.
	ErrHashMismatch = errors.New("validator: artifact hash differs from origin")
)

// Exit codes of the coordinator binary.
const (
	ExitOK            = 0
	ExitValidation    = 1
	ExitRunDeadline   = 2
	ExitConfiguration = 3
)
