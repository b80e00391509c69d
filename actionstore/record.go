package actionstore

import "time"

// Record is a persisted snapshot of a provider action, keyed by the
// provider's action id. Consecutive snapshots of the same action update
// the same row.
type Record struct {
	// ID is the auto-increment primary key (assigned on insert).
	ID int64

	// ActionID is the provider-assigned action identifier used for polling.
	ActionID int64

	// Command describes the operation, e.g. "create_server", "attach_volume".
	Command string

	// Status is the last observed state: "running", "success", or "error".
	Status string

	// Progress is a percentage (0-100).
	Progress int

	// ErrorCode and ErrorMessage hold the provider-reported failure when
	// Status is "error".
	ErrorCode    string
	ErrorMessage string

	// Started is when the provider began executing the action.
	Started time.Time

	// Finished is when the action reached a terminal state, nil while it
	// was still running at the last observation.
	Finished *time.Time

	// CreatedAt is when the action was first recorded.
	CreatedAt time.Time

	// UpdatedAt is the last time the record was modified.
	UpdatedAt time.Time
}
