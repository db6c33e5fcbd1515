package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler routes the HTTP surfaces: streamable MCP at /mcp, the task
// endpoints, the agent card, health and metrics. Bearer tokens are honoured
// on the protocol routes when a JWT secret is configured.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", a.Metrics.Handler())
	r.Get("/.well-known/agent.json", a.A2A.HandleAgentCard)
	r.Get("/agent-card.json", a.A2A.HandleAgentCard)

	r.Group(func(protocol chi.Router) {
		if a.Verifier != nil {
			protocol.Use(a.Verifier.Middleware)
		}
		protocol.Handle("/mcp", a.MCP.HTTPHandler())
		protocol.Post("/a2a/task", a.A2A.HandleTask)
		protocol.Post("/", a.A2A.HandleRoot)
	})
	return r
}
