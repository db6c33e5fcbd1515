// Package branding holds the product names shown to protocol clients.
package branding

// AppName is the human-readable product name.
const AppName = "Signals Agent"

// AgentDescription is the one-line description advertised to clients.
const AgentDescription = "Discovers audience and targeting signals by natural-language query and activates them on decisioning platforms."
