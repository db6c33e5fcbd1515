package a2a

import "encoding/json"

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskWorking   TaskState = "working"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Task types accepted in an envelope.
const (
	TypeDiscovery  = "discovery"
	TypeActivation = "activation"
	TypeStatus     = "status"
)

// TaskRequest is the task envelope. When Parameters is absent the envelope
// itself carries the parameters.
type TaskRequest struct {
	TaskID     string          `json:"taskId,omitempty"`
	Type       string          `json:"type"`
	ContextID  string          `json:"contextId,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Task is the response to every task request.
type Task struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatus carries the state and the agent's reply.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp string    `json:"timestamp"`
	Message   Message   `json:"message"`
}

// Message is an ordered list of parts from one role.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	ContextID string `json:"contextId,omitempty"`
}

// Part is a text or structured data part.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// ErrorPayload is the data part of a failed task.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes why a task failed.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Code      int64  `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
