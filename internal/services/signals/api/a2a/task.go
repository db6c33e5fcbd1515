// Package a2a serves the task protocol: a task endpoint, JSON-RPC
// message/send and the agent card.
package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/signals.agent/internal/platform/clock"
	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/httpx"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/services/signals/api/params"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/service"
)

// Executor runs internal operations. *service.Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, op service.Operation) (service.Outcome, error)
}

// Options configure a Handler.
type Options struct {
	// PublicURL is advertised in the agent card. Empty derives it from the
	// request.
	PublicURL string
	Clock     clock.Clock
	Logger    logging.Logger
	// NewID mints task and message ids. Defaults to random UUIDs.
	NewID func() string
}

// Handler serves the task protocol.
type Handler struct {
	exec      Executor
	publicURL string
	clock     clock.Clock
	logger    logging.Logger
	newID     func() string
}

// New returns a Handler dispatching to exec.
func New(exec Executor, opts Options) *Handler {
	h := &Handler{
		exec:      exec,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		clock:     opts.Clock,
		logger:    opts.Logger,
		newID:     opts.NewID,
	}
	if h.clock == nil {
		h.clock = clock.Real()
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	return h
}

// HandleTask serves POST /a2a/task.
func (h *Handler) HandleTask(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(r, httpx.DefaultMaxBody)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.Run(r.Context(), env))
}

func decodeEnvelope(body []byte) (TaskRequest, error) {
	var env TaskRequest
	if err := json.Unmarshal(body, &env); err != nil {
		return TaskRequest{}, fmt.Errorf("invalid task envelope: %w", err)
	}
	if len(env.Parameters) == 0 || string(env.Parameters) == "null" {
		env.Parameters = body
	}
	return env, nil
}

// Run executes one task envelope. Failures are reported as a failed task,
// never as a transport error.
func (h *Handler) Run(ctx context.Context, env TaskRequest) Task {
	taskID := env.TaskID
	if taskID == "" {
		taskID = "task_" + h.newID()
	}
	op, err := operation(env)
	if err != nil {
		return h.failed(taskID, env, err)
	}
	outcome, err := h.exec.Execute(ctx, op)
	if err != nil {
		return h.failed(taskID, env, err)
	}

	switch {
	case outcome.Discovery != nil:
		result := params.NormalizeDiscovery(*outcome.Discovery)
		return Task{
			ID:        taskID,
			Kind:      "task",
			ContextID: result.ContextID,
			Status:    h.status(TaskCompleted, result.Message, result),
			Metadata: map[string]any{
				"signal_count": len(result.Signals),
				"context_id":   result.ContextID,
			},
		}
	case outcome.Activation != nil:
		result := *outcome.Activation
		return Task{
			ID:        taskID,
			Kind:      "task",
			ContextID: result.ContextID,
			Status:    h.status(activationState(result.State), result.Message, result),
			Metadata: map[string]any{
				"activation_status": result.Status,
				"platform":          result.Platform,
			},
		}
	default:
		return h.failed(taskID, env, apperrors.New(apperrors.CodeUnknown, "operation returned no result"))
	}
}

func operation(env TaskRequest) (service.Operation, error) {
	envelopeContext := ""
	if contexts.ValidID(env.ContextID) {
		envelopeContext = env.ContextID
	}
	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case TypeDiscovery:
		var p struct {
			params.Discovery
			Query string `json:"query"`
		}
		if err := decodeParameters(env.Parameters, &p); err != nil {
			return nil, err
		}
		if p.SignalSpec == "" {
			p.SignalSpec = p.Query
		}
		if p.ContextID == "" {
			p.ContextID = envelopeContext
		}
		return p.Discovery.Request()
	case TypeActivation:
		var p struct {
			params.Activation
			SignalID string `json:"signal_id"`
		}
		if err := decodeParameters(env.Parameters, &p); err != nil {
			return nil, err
		}
		if p.SegmentID == "" {
			p.SegmentID = p.SignalID
		}
		if p.ContextID == "" {
			p.ContextID = envelopeContext
		}
		return p.Activation.Request(), nil
	case TypeStatus:
		var p params.Status
		if err := decodeParameters(env.Parameters, &p); err != nil {
			return nil, err
		}
		return p.Request(), nil
	default:
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown or missing task type %q", env.Type))
	}
}

func decodeParameters(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.New(apperrors.CodeValidation, "parameters are malformed: "+err.Error())
	}
	return nil
}

func activationState(state domain.ActivationState) TaskState {
	switch state {
	case domain.StateDeployed:
		return TaskCompleted
	case domain.StateFailed:
		return TaskFailed
	default:
		return TaskWorking
	}
}

func (h *Handler) status(state TaskState, text string, data any) TaskStatus {
	parts := make([]Part, 0, 2)
	if text != "" {
		parts = append(parts, Part{Kind: "text", Text: text})
	}
	parts = append(parts, Part{Kind: "data", Data: data})
	return TaskStatus{
		State:     state,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
		Message: Message{
			Kind:      "message",
			MessageID: h.newID(),
			Role:      "agent",
			Parts:     parts,
		},
	}
}

func (h *Handler) failed(taskID string, env TaskRequest, err error) Task {
	pub := apperrors.Public(err)
	if pub.Code == apperrors.CodeUnknown {
		h.logger.WithError(err).WithField("task_type", env.Type).Error("task failed")
	}
	detail := ErrorDetail{
		Kind:      string(pub.Code),
		Code:      pub.Code.JSONRPCCode(),
		Message:   pub.UserMessage(),
		Retryable: pub.Code.Retryable(),
	}
	return Task{
		ID:        taskID,
		Kind:      "task",
		ContextID: env.ContextID,
		Status:    h.status(TaskFailed, detail.Message, ErrorPayload{Error: detail}),
		Metadata: map[string]any{
			"error_code": detail.Code,
			"error_kind": detail.Kind,
		},
	}
}
