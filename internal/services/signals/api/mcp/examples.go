package mcp

import (
	"context"

	"github.com/louisbranch/signals.agent/internal/services/signals/api/params"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// PlatformLister reports the platforms signals can be delivered to.
// *service.Service satisfies it.
type PlatformLister interface {
	Platforms() []string
}

// SignalExample is one annotated get_signals request.
type SignalExample struct {
	Description string           `json:"description"`
	Request     params.Discovery `json:"request"`
}

// SignalExamples shows how discovery requests are phrased.
type SignalExamples struct {
	Description        string          `json:"description"`
	Examples           []SignalExample `json:"get_signals_examples"`
	AvailablePlatforms []string        `json:"available_platforms"`
}

type noInput struct{}

// GetSignalExamplesTool defines the MCP tool schema for usage examples.
func GetSignalExamplesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_signal_examples",
		Description: "Returns example get_signals requests and the platforms signals can be delivered to.",
	}
}

// GetSignalExamplesHandler lists example requests against the platforms
// registered in lister.
func GetSignalExamplesHandler(lister PlatformLister) mcp.ToolHandlerFor[noInput, SignalExamples] {
	return func(context.Context, *mcp.CallToolRequest, noInput) (*mcp.CallToolResult, SignalExamples, error) {
		platforms := lister.Platforms()
		if platforms == nil {
			platforms = []string{}
		}
		return nil, SignalExamples{
			Description:        "Examples for discovering and activating signals",
			Examples:           signalExamples(),
			AvailablePlatforms: platforms,
		}, nil
	}
}

func signalExamples() []SignalExample {
	maxCPM, minCoverage := 5.0, 10.0
	return []SignalExample{
		{
			Description: "Search every platform for luxury signals",
			Request: params.Discovery{
				SignalSpec: "luxury car buyers in California",
				DeliverTo:  &params.DeliverTo{Platforms: "all", Countries: []string{"US"}},
			},
		},
		{
			Description: "Search specific platforms as a principal with its own accounts",
			Request: params.Discovery{
				SignalSpec: "parents with young children",
				DeliverTo: &params.DeliverTo{
					Platforms: []map[string]string{
						{"platform": "the-trade-desk"},
						{"platform": "index-exchange", "account": "agency-123-ix"},
					},
					Countries: []string{"US", "UK"},
				},
				PrincipalID: "acme_corp",
			},
		},
		{
			Description: "Search with price and coverage filters",
			Request: params.Discovery{
				SignalSpec: "budget-conscious travelers",
				DeliverTo:  &params.DeliverTo{Platforms: "all", Countries: []string{"US"}},
				Filters:    &params.Filters{MaxCPM: &maxCPM, MinCoveragePercentage: &minCoverage},
			},
		},
	}
}
