package etcdkey

const (
	// Testbed is a constant variable of "/registry/p2p-testbed" key
	Testbed = "/registry/p2p-testbed"

	// RunState is a constant variable of "/registry/p2p-testbed/run-state" key
	RunState = Testbed + "/run-state"

	// ShapingComplete is a constant variable of "/registry/p2p-testbed/shaping-complete" key
	ShapingComplete = Testbed + "/shaping-complete"

	// TrackerResult is a constant variable of "/registry/p2p-testbed/tracker-result" key
	TrackerResult = Testbed + "/tracker-result"

	// TransferStats is a constant variable of "/registry/p2p-testbed/transfer-stats" key
	TransferStats = Testbed + "/transfer-stats"
)
