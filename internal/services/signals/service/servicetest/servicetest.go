// Package servicetest builds a fully wired Service over in-memory stores and
// sandbox platforms for protocol front end tests.
package servicetest

import (
	"testing"
	"time"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	"github.com/louisbranch/signals.agent/internal/services/signals/activation"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
	"github.com/louisbranch/signals.agent/internal/services/signals/service"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage/memory"
)

// Start is the fake clock's initial time.
var Start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Snapshot is a small catalog with one public sports signal, one
// platform-wide automotive signal and one personalized signal owned by the
// "acme" principal.
func Snapshot() catalog.Snapshot {
	f := domain.Float
	return catalog.Snapshot{
		Signals: []domain.Signal{
			{
				ID:          "seg_200065",
				Name:        "Sports",
				Description: "Pages about sports news, scores and teams",
				Provider:    "Peer39",
				Type:        domain.SignalContextual,
				Coverage:    f(18),
				Pricing:     domain.Pricing{CPM: f(1.25), Currency: "USD"},
			},
			{
				ID:          "auto_intenders",
				Name:        "Auto Intenders",
				Description: "In-market car shoppers",
				Provider:    "Polk",
				Coverage:    f(9),
				Pricing:     domain.Pricing{CPM: f(4), Currency: "USD"},
				Deployments: []domain.Deployment{
					{Platform: "the-trade-desk", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ttd_auto"},
				},
			},
			{
				ID:          "acme_sports_loyalists",
				Name:        "Sports Loyalists",
				Description: "Season ticket holders",
				Provider:    "Acme",
				Visibility:  domain.AccessPersonalized,
				Deployments: []domain.Deployment{
					{Platform: "the-trade-desk", Account: "acme-ttd", Scope: domain.ScopeAccountSpecific},
				},
			},
		},
		Principals: []domain.Principal{
			{
				ID:          "acme",
				AccessLevel: domain.AccessPersonalized,
				Accounts:    map[string]string{"the-trade-desk": "acme-ttd"},
			},
		},
	}
}

// Fixture is a wired Service and the fake clock driving it.
type Fixture struct {
	Service *service.Service
	Clock   *clock.Fake
}

// New wires a Service over Snapshot with a sandbox "the-trade-desk"
// platform and deterministic ranking.
func New(t testing.TB) Fixture {
	t.Helper()
	fake := clock.NewFake(Start)
	controller, err := catalog.New(Snapshot())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	registry, err := platform.NewRegistry([]platform.Adapter{
		platform.NewSandbox(platform.SandboxConfig{Name: "the-trade-desk", Catalog: controller.Signals}),
	}, platform.WithSegmentCache(platform.NewSegmentCache(platform.NewMemoryCache(fake), platform.DefaultSegmentTTL, nil, nil)))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := memory.New()
	svc, err := service.New(service.Config{
		Catalog:     controller,
		Contexts:    contexts.New(store, fake),
		Activations: activation.New(store, fake),
		Platforms:   registry,
		Ranker:      &ranking.Engine{Proposals: ranking.ProposalGenerator{Exists: controller.HasName}},
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return Fixture{Service: svc, Clock: fake}
}
