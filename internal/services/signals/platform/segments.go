package platform

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/platform/timeouts"
)

// DefaultSegmentTTL bounds how long a segment listing is reused.
const DefaultSegmentTTL = 60 * time.Second

// SegmentCache caches ListSegments results per (platform, scope) and
// collapses concurrent misses for the same key into one upstream call.
type SegmentCache struct {
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewSegmentCache wraps cache. A non-positive ttl uses DefaultSegmentTTL.
func NewSegmentCache(cache Cache, ttl time.Duration, m *metrics.Metrics, logger logging.Logger) *SegmentCache {
	if ttl <= 0 {
		ttl = DefaultSegmentTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &SegmentCache{cache: cache, ttl: ttl, metrics: m, logger: logger}
}

func segmentKey(platform string, scope Scope) string {
	return "segments:" + platform + ":" + scope.Key()
}

// List returns the cached listing or calls fetch. Cache backend errors are
// logged and treated as misses. Callers share the returned slice and must
// not modify it.
func (c *SegmentCache) List(ctx context.Context, platform string, scope Scope, fetch func(context.Context) ([]Segment, error)) ([]Segment, error) {
	key := segmentKey(platform, scope)
	if segments, ok := c.lookup(ctx, key); ok {
		c.metrics.CacheLookup(true)
		return segments, nil
	}
	c.metrics.CacheLookup(false)

	results := c.group.DoChan(key, func() (any, error) {
		// The shared call outlives any single waiter; each waiter still
		// honors its own context below.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.PlatformRequest)
		defer cancel()
		segments, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(segments); err == nil {
			if err := c.cache.Set(flightCtx, key, data, c.ttl); err != nil {
				c.logger.WithError(err).WithField("platform", platform).Warn("segment cache write failed")
			}
		}
		return segments, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.([]Segment), nil
	}
}

func (c *SegmentCache) lookup(ctx context.Context, key string) ([]Segment, bool) {
	data, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).Warn("segment cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, false
	}
	return segments, true
}
