// Package timeouts defines shared timeout constants used across the service.
// Every outbound call carries one of these bounds.
package timeouts

import "time"

// AIRanking caps a single call to the AI ranking collaborator. The request
// falls back to deterministic ranking when it is exceeded.
const AIRanking = 5 * time.Second

// PlatformRequest caps one adapter operation (authenticate, list, activate,
// status) including retries. The platform is marked unavailable on expiry.
const PlatformRequest = 10 * time.Second

// PlatformStatus caps the status probe made while answering a status query.
const PlatformStatus = 3 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
