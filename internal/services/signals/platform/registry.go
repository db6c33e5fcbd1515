package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/platform/timeouts"
)

// Target is one platform, optionally narrowed to an account, that a request
// is delivered to.
type Target struct {
	Platform string
	Account  string
}

// Contribution is one platform's share of a fan-out listing. Unavailable
// platforms carry the error kind instead of segments.
type Contribution struct {
	Platform  string
	Account   string
	Available bool
	ErrorKind ErrorKind
	Error     string
	Segments  []Segment
}

// Registry holds the configured adapters by name.
type Registry struct {
	adapters map[string]Adapter
	segments *SegmentCache
	metrics  *metrics.Metrics
	logger   logging.Logger
	timeout  time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSegmentCache caches listings through cache.
func WithSegmentCache(cache *SegmentCache) RegistryOption {
	return func(r *Registry) { r.segments = cache }
}

// WithMetrics records adapter calls.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(logger logging.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCallTimeout bounds each adapter call.
func WithCallTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewRegistry builds a registry of adapters. Names must be unique.
func NewRegistry(adapters []Adapter, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		logger:   logging.Discard(),
		timeout:  timeouts.PlatformRequest,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, adapter := range adapters {
		name := strings.TrimSpace(adapter.Name())
		if name == "" {
			return nil, fmt.Errorf("platform adapter without name")
		}
		if _, ok := r.adapters[name]; ok {
			return nil, fmt.Errorf("duplicate platform adapter %q", name)
		}
		r.adapters[name] = adapter
	}
	if r.segments == nil {
		r.segments = NewSegmentCache(NewMemoryCache(nil), DefaultSegmentTTL, r.metrics, r.logger)
	}
	return r, nil
}

// Names returns the registered platform names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the adapter for platform. Unknown platforms are validation
// errors.
func (r *Registry) Get(platform string) (Adapter, error) {
	adapter, ok := r.adapters[strings.TrimSpace(platform)]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("unknown platform %q", platform),
			map[string]string{"reason": "unknown platform " + platform})
	}
	return adapter, nil
}

// Validate checks every target names a registered platform.
func (r *Registry) Validate(targets []Target) error {
	for _, target := range targets {
		if _, err := r.Get(target.Platform); err != nil {
			return err
		}
	}
	return nil
}

// ListAll lists segments from every target concurrently. A failing platform
// only marks its own contribution unavailable. Results keep target order.
func (r *Registry) ListAll(ctx context.Context, principalID string, targets []Target) []Contribution {
	contributions := make([]Contribution, len(targets))
	var group errgroup.Group
	for i, target := range targets {
		contributions[i] = Contribution{Platform: target.Platform, Account: target.Account}
		adapter, ok := r.adapters[target.Platform]
		if !ok {
			contributions[i].ErrorKind = KindUpstream
			contributions[i].Error = "unknown platform"
			continue
		}
		group.Go(func() error {
			scope := Scope{PrincipalID: principalID, Account: target.Account}
			segments, err := r.listSegments(ctx, adapter, scope)
			if err != nil {
				kind := Classify(err)
				r.logger.WithError(err).WithFields(logging.Fields{
					"platform":   target.Platform,
					"error_kind": string(kind),
				}).Warn("platform unavailable for discovery")
				contributions[i].ErrorKind = kind
				contributions[i].Error = err.Error()
				return nil
			}
			contributions[i].Available = true
			contributions[i].Segments = segments
			return nil
		})
	}
	_ = group.Wait()
	return contributions
}

func (r *Registry) listSegments(ctx context.Context, adapter Adapter, scope Scope) ([]Segment, error) {
	return r.segments.List(ctx, adapter.Name(), scope, func(ctx context.Context) ([]Segment, error) {
		return call(ctx, r, adapter.Name(), "list_segments", r.timeout, func(ctx context.Context) ([]Segment, error) {
			return adapter.ListSegments(ctx, scope)
		})
	})
}

// Activate asks platform to provision req.
func (r *Registry) Activate(ctx context.Context, platform string, req ActivationRequest) (Ticket, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return Ticket{}, err
	}
	return call(ctx, r, platform, "activate", r.timeout, func(ctx context.Context) (Ticket, error) {
		return adapter.Activate(ctx, req)
	})
}

// CheckStatus probes platform for ticketID with the short status bound.
func (r *Registry) CheckStatus(ctx context.Context, platform, ticketID string) (StatusReport, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return StatusReport{}, err
	}
	return call(ctx, r, platform, "check_status", min(r.timeout, timeouts.PlatformStatus), func(ctx context.Context) (StatusReport, error) {
		return adapter.CheckStatus(ctx, ticketID)
	})
}

// call runs fn under timeout. An adapter that ignores cancellation is
// abandoned once the bound passes.
func call[T any](ctx context.Context, r *Registry, platform, operation string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(callCtx)
		done <- result{value: value, err: err}
	}()

	var out result
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = callCtx.Err()
	}
	outcome := "ok"
	if out.err != nil {
		kind := Classify(out.err)
		outcome = string(kind)
		out.err = upstreamError(platform, operation, kind, out.err)
	}
	r.metrics.PlatformCall(platform, operation, outcome, time.Since(start).Seconds())
	return out.value, out.err
}

// upstreamError tags a failed adapter call with the upstream error code for
// its kind. The cause stays reachable for Classify.
func upstreamError(platform, operation string, kind ErrorKind, err error) error {
	code := apperrors.CodeUpstreamFailure
	if kind == KindTimeout {
		code = apperrors.CodeUpstreamTimeout
	}
	wrapped := apperrors.Wrap(code, fmt.Sprintf("%s %s: %v", platform, operation, err), err)
	wrapped.Metadata = map[string]string{"upstream": platform, "error_kind": string(kind)}
	return wrapped
}

// Transient reports whether err is a platform failure worth retrying later
// rather than a verdict on the request.
func Transient(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeUpstreamTimeout) || Classify(err) == KindCircuitOpen
}
