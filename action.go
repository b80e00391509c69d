package cloudpoll

import "time"

// Status is the lifecycle state of an action.
type Status string

// Action status values common across compatible providers.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Action is an immutable snapshot of an asynchronous provider-side
// operation. Each poll produces a fresh snapshot; nothing mutates an
// existing one.
type Action struct {
	// ID is the provider-assigned action identifier, used for polling.
	ID int64 `json:"id"`

	// Command describes the operation, e.g. "create_server", "attach_volume".
	Command string `json:"command"`

	// Status is the current state of the action.
	Status Status `json:"status"`

	// Progress is a percentage (0-100). It is informational only and
	// never drives state transitions.
	Progress int `json:"progress"`

	// Resources lists the resources the action operates on, in the order
	// the provider reports them.
	Resources []Resource `json:"resources"`

	// Error holds the provider-reported failure. It is non-nil exactly
	// when Status is StatusError.
	Error *ActionError `json:"error"`

	// Started is when the provider began executing the action.
	Started time.Time `json:"started"`

	// Finished is when the action reached a terminal state. It is nil
	// exactly while Status is StatusRunning.
	Finished *time.Time `json:"finished"`
}

// Resource is a reference to a resource an action operates on.
type Resource struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ActionError is the failure payload of an action whose Status is
// StatusError.
type ActionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ActionError) Error() string {
	return e.Message + " (" + e.Code + ")"
}

// IsComplete reports whether the action has finished, regardless of outcome.
func (a *Action) IsComplete() bool {
	return a.Status == StatusSuccess || a.Status == StatusError
}
