package ranking

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// OutcomeKind classifies a call to the AI ranking collaborator.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimeout
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Outcome is the result of one collaborator call. Response is only
// meaningful when Kind is OutcomeSuccess.
type Outcome struct {
	Kind     OutcomeKind
	Response AIResponse
	Err      error
}

// Call invokes client with a bounded timeout and classifies the result.
func Call(ctx context.Context, client AIClient, request AIRequest, timeout time.Duration) Outcome {
	if client == nil {
		return Outcome{Kind: OutcomeFailure, Err: errors.New("ai ranking is not configured")}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		response AIResponse
		err      error
	}
	done := make(chan result, 1)
	go func() {
		response, err := client.Rank(callCtx, request)
		done <- result{response: response, err: err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() == nil {
			return Outcome{Kind: OutcomeTimeout, Err: fmt.Errorf("ai ranking exceeded %s", timeout)}
		}
		return Outcome{Kind: OutcomeFailure, Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			if isTimeout(r.err) && ctx.Err() == nil {
				return Outcome{Kind: OutcomeTimeout, Err: r.err}
			}
			return Outcome{Kind: OutcomeFailure, Err: r.err}
		}
		return Outcome{Kind: OutcomeSuccess, Response: r.response}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
