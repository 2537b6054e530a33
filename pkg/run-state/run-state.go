package runstate

const (

	// Planning is const for the planning state
	Planning = "planning"

	// Deploying is const for the deploying state
	Deploying = "deploying"

	// Shaping is const for the shaping state
	Shaping = "shaping"

	// Transferring is const for the transferring state
	Transferring = "transferring"

	// Validating is const for the validating state
	Validating = "validating"

	// Done is const for the done state
	Done = "done"

	// Failed is const for the failed state
	Failed = "failed"
)
