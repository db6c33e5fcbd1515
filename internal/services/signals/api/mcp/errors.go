package mcp

import (
	"encoding/json"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ErrorData is the data member of a tool error.
type ErrorData struct {
	Kind      apperrors.Code `json:"kind"`
	Retryable bool           `json:"retryable"`
}

// toolError converts err into a JSON-RPC error so the client receives a
// protocol error with a numeric code rather than a failed tool result.
func toolError(err error) error {
	pub := apperrors.Public(err)
	data, _ := json.Marshal(ErrorData{Kind: pub.Code, Retryable: pub.Code.Retryable()})
	return &jsonrpc.Error{
		Code:    pub.Code.JSONRPCCode(),
		Message: pub.UserMessage(),
		Data:    data,
	}
}
