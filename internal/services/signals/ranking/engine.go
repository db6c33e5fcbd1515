// Package ranking orders candidate signals for a query, either lexically or
// through an AI ranking collaborator, and synthesizes custom proposals.
package ranking

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/platform/timeouts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const (
	// DefaultMaxResults applies when a request leaves max_results unset.
	DefaultMaxResults = 10
	// MaxResultsLimit caps max_results.
	MaxResultsLimit = 100
	// aiCandidateLimit bounds how many candidates are sent to the collaborator.
	aiCandidateLimit = 50
)

// Method tells which ranking produced a result.
type Method string

const (
	MethodAI            Method = "ai"
	MethodDeterministic Method = "deterministic"
)

// Mode is the ranking a caller asks for.
type Mode string

const (
	ModeAuto          Mode = "auto"
	ModeDeterministic Mode = "deterministic"
)

// ParseMode normalizes a requested mode. Empty input is auto.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeDeterministic:
		return ModeDeterministic, nil
	default:
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown ranking mode %q", value))
	}
}

// FallbackReason explains why an AI request was answered deterministically.
type FallbackReason string

const (
	FallbackNone    FallbackReason = ""
	FallbackTimeout FallbackReason = "timeout"
	FallbackFailure FallbackReason = "failure"
)

// ResolveMaxResults applies the default and the upper bound. Negative values
// are rejected.
func ResolveMaxResults(requested *int) (int, error) {
	if requested == nil {
		return DefaultMaxResults, nil
	}
	if *requested < 0 {
		return 0, apperrors.New(apperrors.CodeValidation, "max_results must not be negative")
	}
	return min(*requested, MaxResultsLimit), nil
}

// Request is one ranking request.
type Request struct {
	Query      string
	Candidates []domain.Candidate
	MaxResults int
	Mode       Mode
}

// Result is a ranked list from exactly one method.
type Result struct {
	Items     []Scored
	Method    Method
	Fallback  FallbackReason
	Proposals []domain.Proposal
}

// Engine ranks candidates. The zero value ranks deterministically.
type Engine struct {
	AI        AIClient
	Timeout   time.Duration
	Proposals ProposalGenerator
	Metrics   *metrics.Metrics
	Logger    logging.Logger
}

// Rank orders req.Candidates. The AI collaborator is consulted when
// configured and not opted out; any timeout, error or unusable reply yields
// the deterministic ranking with the fallback reason set.
func (e *Engine) Rank(ctx context.Context, req Request) Result {
	queryTokens := Tokenize(req.Query)
	scored := scoreAll(queryTokens, req.Candidates)
	if req.MaxResults <= 0 {
		return Result{Items: []Scored{}, Method: MethodDeterministic}
	}
	if e.AI == nil || req.Mode == ModeDeterministic {
		return deterministicResult(scored, req.MaxResults, FallbackNone)
	}

	ordered := order(scored, true)
	sent := ordered[:min(len(ordered), aiCandidateLimit)]
	outcome := Call(ctx, e.AI, AIRequest{
		Query:      req.Query,
		Candidates: aiCandidates(sent),
		MaxResults: req.MaxResults,
	}, e.timeout())

	if outcome.Kind == OutcomeSuccess {
		result, err := e.aiResult(sent, outcome.Response, req.MaxResults)
		if err == nil {
			e.Metrics.AIOutcome(OutcomeSuccess.String())
			return result
		}
		outcome = Outcome{Kind: OutcomeFailure, Err: err}
	}

	e.Metrics.AIOutcome(outcome.Kind.String())
	reason := FallbackFailure
	if outcome.Kind == OutcomeTimeout {
		reason = FallbackTimeout
	}
	e.logger().WithError(outcome.Err).WithField("outcome", outcome.Kind.String()).
		Warn("ai ranking unavailable, using deterministic ranking")
	return deterministicResult(ordered, req.MaxResults, reason)
}

// aiResult validates the collaborator reply as a whole. Unknown or repeated
// ids reject the entire reply.
func (e *Engine) aiResult(sent []Scored, response AIResponse, maxResults int) (Result, error) {
	byID := make(map[string]Scored, len(sent))
	for _, item := range sent {
		byID[item.Candidate.Signal.ID] = item
	}
	items := make([]Scored, 0, min(len(response.RankedIDs), maxResults))
	seen := make(map[string]struct{}, len(response.RankedIDs))
	for _, rankedID := range response.RankedIDs {
		item, ok := byID[rankedID]
		if !ok {
			return Result{}, fmt.Errorf("ai ranking returned unknown id %q", rankedID)
		}
		if _, dup := seen[rankedID]; dup {
			return Result{}, fmt.Errorf("ai ranking repeated id %q", rankedID)
		}
		seen[rankedID] = struct{}{}
		if len(items) < maxResults {
			item.Rationale = response.RationaleByID[rankedID]
			items = append(items, item)
		}
	}
	proposals, err := e.Proposals.Generate(response.Proposals)
	if err != nil {
		return Result{}, err
	}
	return Result{Items: items, Method: MethodAI, Proposals: proposals}, nil
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return timeouts.AIRanking
}

func (e *Engine) logger() logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func deterministicResult(scored []Scored, maxResults int, reason FallbackReason) Result {
	items := order(scored, false)
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	return Result{Items: items, Method: MethodDeterministic, Fallback: reason}
}

func aiCandidates(items []Scored) []AICandidate {
	out := make([]AICandidate, 0, len(items))
	for _, item := range items {
		signal := item.Candidate.Signal
		out = append(out, AICandidate{
			ID:                 signal.ID,
			Name:               signal.Name,
			Description:        signal.Description,
			Provider:           signal.Provider,
			Type:               string(signal.Type),
			CoveragePercentage: signal.Coverage,
			CPM:                item.Candidate.Pricing.CPM,
		})
	}
	return out
}
