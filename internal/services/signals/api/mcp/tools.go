package mcp

import (
	"context"

	"github.com/louisbranch/signals.agent/internal/platform/requestctx"
	"github.com/louisbranch/signals.agent/internal/services/signals/api/params"
	"github.com/louisbranch/signals.agent/internal/services/signals/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Executor runs internal operations. *service.Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, op service.Operation) (service.Outcome, error)
}

// GetSignalsTool defines the MCP tool schema for signal discovery.
func GetSignalsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_signals",
		Description: "Discovers signals matching a natural-language description. Returns ranked signals, custom segment proposals and a context id for follow-up activation.",
	}
}

// GetSignalsHandler executes a discovery.
func GetSignalsHandler(exec Executor) mcp.ToolHandlerFor[params.Discovery, service.DiscoveryResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input params.Discovery) (*mcp.CallToolResult, service.DiscoveryResult, error) {
		discover, err := input.Request()
		if err != nil {
			return nil, service.DiscoveryResult{}, toolError(err)
		}
		outcome, err := exec.Execute(withTokenPrincipal(ctx, req), discover)
		if err != nil {
			return nil, service.DiscoveryResult{}, toolError(err)
		}
		result := params.NormalizeDiscovery(*outcome.Discovery)
		return textResult(result.Message), result, nil
	}
}

// ActivateSignalTool defines the MCP tool schema for activation.
func ActivateSignalTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "activate_signal",
		Description: "Activates a signal or custom segment proposal on a decisioning platform. Activation completes asynchronously; poll check_activation_status.",
	}
}

// ActivateSignalHandler executes an activation.
func ActivateSignalHandler(exec Executor) mcp.ToolHandlerFor[params.Activation, service.ActivationResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input params.Activation) (*mcp.CallToolResult, service.ActivationResult, error) {
		outcome, err := exec.Execute(withTokenPrincipal(ctx, req), input.Request())
		if err != nil {
			return nil, service.ActivationResult{}, toolError(err)
		}
		return textResult(outcome.Activation.Message), *outcome.Activation, nil
	}
}

// CheckActivationStatusTool defines the MCP tool schema for status reads.
func CheckActivationStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_activation_status",
		Description: "Reports the progress of an activation. Repeated calls never move an activation backwards.",
	}
}

// CheckActivationStatusHandler executes a status read.
func CheckActivationStatusHandler(exec Executor) mcp.ToolHandlerFor[params.Status, service.ActivationResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input params.Status) (*mcp.CallToolResult, service.ActivationResult, error) {
		outcome, err := exec.Execute(withTokenPrincipal(ctx, req), input.Request())
		if err != nil {
			return nil, service.ActivationResult{}, toolError(err)
		}
		return textResult(outcome.Activation.Message), *outcome.Activation, nil
	}
}

// withTokenPrincipal carries the bearer token's subject into ctx when the
// request came through an authenticated HTTP transport.
func withTokenPrincipal(ctx context.Context, req *mcp.CallToolRequest) context.Context {
	if req == nil || req.Extra == nil || req.Extra.TokenInfo == nil {
		return ctx
	}
	if userID := req.Extra.TokenInfo.UserID; userID != "" {
		return requestctx.WithPrincipalID(ctx, userID)
	}
	return ctx
}

func textResult(message string) *mcp.CallToolResult {
	if message == "" {
		return nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: message}}}
}
