package a2a

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/louisbranch/signals.agent/internal/platform/httpx"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

const (
	methodMessageSend = "message/send"
	codeParseError    = -32700
)

type sendParams struct {
	Message   Message `json:"message"`
	ContextID string  `json:"contextId,omitempty"`
}

type dataEnvelope struct {
	TaskID     string          `json:"taskId,omitempty"`
	Type       string          `json:"type"`
	ContextID  string          `json:"contextId,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// HandleRoot serves POST /. JSON-RPC requests are dispatched by method;
// any other body is treated as a task envelope.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(r, httpx.DefaultMaxBody)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		h.writeRPC(w, &jsonrpc.Response{Error: &jsonrpc.Error{Code: codeParseError, Message: "parse error"}})
		return
	}
	if probe.JSONRPC == "" {
		env, err := decodeEnvelope(body)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, h.Run(r.Context(), env))
		return
	}

	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		h.writeRPC(w, &jsonrpc.Response{Error: &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: err.Error()}})
		return
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		h.writeRPC(w, &jsonrpc.Response{Error: &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "expected a request"}})
		return
	}
	if req.Method != methodMessageSend {
		h.writeRPC(w, &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		}})
		return
	}
	env, err := envelopeFromMessage(req.Params)
	if err != nil {
		h.writeRPC(w, &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}})
		return
	}
	if env.TaskID == "" {
		if id, ok := req.ID.Raw().(string); ok {
			env.TaskID = id
		}
	}
	task := h.Run(r.Context(), env)
	result, err := json.Marshal(task)
	if err != nil {
		h.writeRPC(w, &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "encode task"}})
		return
	}
	h.writeRPC(w, &jsonrpc.Response{ID: req.ID, Result: result})
}

// envelopeFromMessage turns message/send params into a task envelope. A data
// part carrying a task type wins over text; text alone becomes a discovery
// query.
func envelopeFromMessage(raw json.RawMessage) (TaskRequest, error) {
	var p sendParams
	if len(raw) == 0 {
		return TaskRequest{}, fmt.Errorf("params are required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return TaskRequest{}, fmt.Errorf("params are malformed: %v", err)
	}
	contextID := p.ContextID
	if contextID == "" {
		contextID = p.Message.ContextID
	}

	query := ""
	for _, part := range p.Message.Parts {
		switch part.Kind {
		case "data":
			encoded, err := json.Marshal(part.Data)
			if err != nil {
				return TaskRequest{}, fmt.Errorf("data part: %v", err)
			}
			var data dataEnvelope
			if err := json.Unmarshal(encoded, &data); err != nil || data.Type == "" {
				continue
			}
			if data.ContextID == "" {
				data.ContextID = contextID
			}
			if len(data.Parameters) == 0 || string(data.Parameters) == "null" {
				data.Parameters = encoded
			}
			return TaskRequest(data), nil
		case "text":
			if query == "" {
				query = part.Text
			}
		}
	}
	if query == "" {
		return TaskRequest{}, fmt.Errorf("message has no text or task data part")
	}
	parameters, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return TaskRequest{}, err
	}
	return TaskRequest{Type: TypeDiscovery, ContextID: contextID, Parameters: parameters}, nil
}

func (h *Handler) writeRPC(w http.ResponseWriter, resp *jsonrpc.Response) {
	data, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		h.logger.WithError(err).Error("encode json-rpc response")
		httpx.WriteError(w, http.StatusInternalServerError, "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
