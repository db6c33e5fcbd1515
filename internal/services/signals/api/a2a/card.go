package a2a

import (
	"net/http"

	"github.com/louisbranch/signals.agent/internal/platform/branding"
	"github.com/louisbranch/signals.agent/internal/platform/httpx"
)

const (
	agentVersion    = "0.1.0"
	protocolVersion = "0.2"
)

// AgentCard advertises the agent's skills.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	Version            string       `json:"version"`
	URL                string       `json:"url"`
	ProtocolVersion    string       `json:"protocolVersion"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
	Provider           Provider     `json:"provider"`
}

// Capabilities lists optional protocol features. None are supported.
type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Skill is one task type the agent accepts.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

// Provider identifies who runs the agent.
type Provider struct {
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// Card builds the agent card for baseURL.
func Card(baseURL string) AgentCard {
	return AgentCard{
		Name:               branding.AppName,
		Description:        branding.AgentDescription,
		Version:            agentVersion,
		URL:                baseURL,
		ProtocolVersion:    protocolVersion,
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"text", "data"},
		Skills: []Skill{
			{
				ID:          TypeDiscovery,
				Name:        "Signal Discovery",
				Description: "Discover audience signals using natural language. Parameters: query, deliver_to, filters, max_results, principal_id.",
				Tags:        []string{"search", "discovery", "audience", "signals"},
				Examples:    []string{"sports enthusiasts on the trade desk", "in-market car shoppers under $3 CPM"},
			},
			{
				ID:          TypeActivation,
				Name:        "Signal Activation",
				Description: "Activate a signal or custom segment on a platform. Parameters: signal_id, platform, account, context_id.",
				Tags:        []string{"activation", "deployment", "platform", "signals"},
			},
			{
				ID:          TypeStatus,
				Name:        "Activation Status",
				Description: "Report the progress of an activation. Parameters: activation_id.",
				Tags:        []string{"activation", "status"},
			},
		},
		Provider: Provider{Organization: branding.AppName, URL: baseURL},
	}
}

// HandleAgentCard serves the agent card.
func (h *Handler) HandleAgentCard(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Card(h.baseURL(r)))
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
