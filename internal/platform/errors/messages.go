package errors

import (
	"bytes"
	"text/template"
)

// userMessages holds caller-facing templates keyed by code. Templates read
// from the error metadata.
var userMessages = map[Code]string{
	CodeValidation:      "The request is invalid: {{.reason}}",
	CodeNotFound:        "No {{with .resource}}{{.}}{{else}}resource{{end}} matches the given id.",
	CodeExpiredContext:  "Context {{.context_id}} has expired. Run a new discovery to get a fresh context.",
	CodeUpstreamTimeout: "{{with .upstream}}{{.}}{{else}}An upstream service{{end}} did not answer in time.",
	CodeUpstreamFailure: "{{with .upstream}}{{.}}{{else}}An upstream service{{end}} is unavailable.",
	CodeUnknown:         "Something went wrong while handling the request.",
}

// UserMessage renders the caller-facing message for e. It falls back to the
// internal message when no template exists or the template cannot render.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	tmpl, ok := userMessages[e.Code]
	if !ok {
		return e.Message
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if _, ok := metadata["reason"]; !ok && e.Code == CodeValidation {
		metadata = withValue(metadata, "reason", e.Message)
	}

	t, err := template.New("msg").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return e.Message
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return e.Message
	}
	return buf.String()
}

func withValue(metadata map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[key] = value
	return out
}
