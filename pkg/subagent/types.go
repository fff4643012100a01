package subagent

import "context"

// Descriptor describes an agent capability: its name and the shapes of the
// input it accepts and the output it produces. Descriptors are static
// configuration, immutable after registry initialization.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// TurnContext carries conversation context into an agent invocation.
type TurnContext struct {
	SessionID string
	History   []string
}

// Result is the opaque success payload of one agent invocation.
type Result struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FailureReason codes why an agent invocation failed.
type FailureReason string

const (
	ReasonTimeout     FailureReason = "timeout"
	ReasonUnavailable FailureReason = "unavailable"
	ReasonRejected    FailureReason = "rejected"
	ReasonInternal    FailureReason = "internal"
)

// ExecutionError is the failure side of the execute contract.
type ExecutionError struct {
	Agent  string
	Reason FailureReason
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return string(e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Agent is the uniform contract every sub-agent implements. Execute must
// honor the context's deadline and cancellation.
type Agent interface {
	Execute(ctx context.Context, query string, tc TurnContext) (*Result, error)
}
