package service

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/requestctx"
	"github.com/louisbranch/signals.agent/internal/services/signals/activation"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage/memory"
)

var start = time.Unix(1700000000, 0).UTC()

type fixtureConfig struct {
	adapters  func(*catalog.Controller) []platform.Adapter
	ai        ranking.AIClient
	aiTimeout time.Duration
	// activations wraps the activation store the machine writes through.
	activations func(storage.ActivationStore) storage.ActivationStore
}

type fixture struct {
	svc   *Service
	clock *clock.Fake
	store *memory.Store
}

func sportsSnapshot() catalog.Snapshot {
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
				ID:          "weather_triggers",
				Name:        "Weather Triggers",
				Description: "Rain and heat conditions",
				Provider:    "Acme Weather",
				Type:        domain.SignalEnvironmental,
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

func newFixture(t *testing.T, cfg fixtureConfig) fixture {
	t.Helper()
	fake := clock.NewFake(start)
	controller, err := catalog.New(sportsSnapshot())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	adapters := []platform.Adapter{
		platform.NewSandbox(platform.SandboxConfig{Name: "the-trade-desk", Catalog: controller.Signals}),
	}
	if cfg.adapters != nil {
		adapters = cfg.adapters(controller)
	}
	registry, err := platform.NewRegistry(adapters,
		platform.WithSegmentCache(platform.NewSegmentCache(platform.NewMemoryCache(fake), platform.DefaultSegmentTTL, nil, nil)))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := memory.New()
	var activationStore storage.ActivationStore = store
	if cfg.activations != nil {
		activationStore = cfg.activations(store)
	}
	svc, err := New(Config{
		Catalog:     controller,
		Contexts:    contexts.New(store, fake),
		Activations: activation.New(activationStore, fake),
		Platforms:   registry,
		Ranker: &ranking.Engine{
			AI:        cfg.ai,
			Timeout:   cfg.aiTimeout,
			Proposals: ranking.ProposalGenerator{Exists: controller.HasName},
		},
		Clock: fake,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return fixture{svc: svc, clock: fake, store: store}
}

type aiFunc func(ctx context.Context, req ranking.AIRequest) (ranking.AIResponse, error)

func (f aiFunc) Rank(ctx context.Context, req ranking.AIRequest) (ranking.AIResponse, error) {
	return f(ctx, req)
}

// countingAdapter counts every call reaching the platform.
type countingAdapter struct {
	*platform.Sandbox
	calls atomic.Int32
}

func (c *countingAdapter) ListSegments(ctx context.Context, scope platform.Scope) ([]platform.Segment, error) {
	c.calls.Add(1)
	return c.Sandbox.ListSegments(ctx, scope)
}

func (c *countingAdapter) Activate(ctx context.Context, req platform.ActivationRequest) (platform.Ticket, error) {
	c.calls.Add(1)
	return c.Sandbox.Activate(ctx, req)
}

func signalIDs(views []SignalView) []string {
	ids := make([]string, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.SegmentID)
	}
	return ids
}

func intPtr(v int) *int { return &v }

func TestDiscoverPlacesSportsFirst(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports enthusiasts"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(result.Signals) == 0 || result.Signals[0].SegmentID != "seg_200065" {
		t.Fatalf("signals = %v, want seg_200065 first", signalIDs(result.Signals))
	}
	if result.RankingMethod != ranking.MethodDeterministic {
		t.Fatalf("ranking method = %q, want deterministic", result.RankingMethod)
	}
	if !contexts.ValidID(result.ContextID) {
		t.Fatalf("context id = %q", result.ContextID)
	}
	for _, id := range signalIDs(result.Signals) {
		if id == "acme_sports_loyalists" {
			t.Fatal("anonymous discovery returned a personalized signal")
		}
	}
}

func TestDiscoverIsStable(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	first, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports auto weather", PrincipalID: "acme"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports auto weather", PrincipalID: "acme"})
		if err != nil {
			t.Fatalf("discover: %v", err)
		}
		if !reflect.DeepEqual(signalIDs(again.Signals), signalIDs(first.Signals)) {
			t.Fatalf("ranking changed: %v then %v", signalIDs(first.Signals), signalIDs(again.Signals))
		}
		if again.ContextID == first.ContextID {
			t.Fatal("expected a fresh context per discovery")
		}
	}
}

func TestDiscoverMaxResults(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	for _, n := range []int{0, 1, 2, 50} {
		result, err := fx.svc.Discover(context.Background(), DiscoverRequest{
			Query:      "sports auto weather",
			MaxResults: intPtr(n),
		})
		if err != nil {
			t.Fatalf("discover max %d: %v", n, err)
		}
		if len(result.Signals) > n {
			t.Fatalf("max_results %d returned %d signals", n, len(result.Signals))
		}
	}
	_, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports", MaxResults: intPtr(-1)})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("negative max_results err = %v, want validation", err)
	}
}

func TestDiscoverValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	tests := []struct {
		name string
		req  DiscoverRequest
	}{
		{name: "blank query", req: DiscoverRequest{Query: "  "}},
		{name: "unknown ranking", req: DiscoverRequest{Query: "sports", Ranking: "magic"}},
		{name: "negative max cpm", req: DiscoverRequest{Query: "sports", Filters: catalog.Filters{MaxCPM: domain.Float(-1)}}},
		{name: "unknown platform", req: DiscoverRequest{Query: "sports", Platforms: []platform.Target{{Platform: "bogus-ssp"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := fx.svc.Discover(context.Background(), tc.req); !apperrors.IsCode(err, apperrors.CodeValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestDiscoverRendersUnknownValues(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "weather triggers"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(result.Signals) != 1 {
		t.Fatalf("signals = %v", signalIDs(result.Signals))
	}
	view := result.Signals[0]
	if view.CoveragePercentage != nil || view.CoverageDisplay != "Unknown" {
		t.Fatalf("coverage = %v %q", view.CoveragePercentage, view.CoverageDisplay)
	}
	if view.Pricing.CPM != nil || view.Pricing.CPMDisplay != "Unknown" || view.Pricing.Source != string(domain.PricingUnknown) {
		t.Fatalf("pricing = %+v", view.Pricing)
	}
}

func TestDiscoverFiltersUnknownPrices(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	filters := catalog.Filters{MaxCPM: domain.Float(10)}
	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "weather sports", Filters: filters})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got := signalIDs(result.Signals); !reflect.DeepEqual(got, []string{"seg_200065"}) {
		t.Fatalf("signals = %v, want only priced matches", got)
	}

	filters.IncludeUnknown = true
	result, err = fx.svc.Discover(context.Background(), DiscoverRequest{Query: "weather sports", Filters: filters})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(result.Signals) != 2 {
		t.Fatalf("signals = %v, want unknown prices included", signalIDs(result.Signals))
	}
}

func TestDiscoverFallsBackWhenAITimesOut(t *testing.T) {
	t.Parallel()

	slow := aiFunc(func(ctx context.Context, _ ranking.AIRequest) (ranking.AIResponse, error) {
		<-ctx.Done()
		return ranking.AIResponse{RankedIDs: []string{"auto_intenders"}}, ctx.Err()
	})
	fx := newFixture(t, fixtureConfig{ai: slow, aiTimeout: 20 * time.Millisecond})
	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports enthusiasts"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if result.RankingMethod != ranking.MethodDeterministic || result.FallbackReason != ranking.FallbackTimeout {
		t.Fatalf("method = %q fallback = %q", result.RankingMethod, result.FallbackReason)
	}
	if len(result.Signals) == 0 || result.Signals[0].SegmentID != "seg_200065" {
		t.Fatalf("signals = %v", signalIDs(result.Signals))
	}
	for _, view := range result.Signals {
		if view.Rationale != "" {
			t.Fatalf("deterministic result carries rationale %q", view.Rationale)
		}
	}
	if len(result.Proposals) != 0 {
		t.Fatalf("proposals = %d, want none without AI", len(result.Proposals))
	}
}

func TestProposalActivationAndExpiry(t *testing.T) {
	t.Parallel()

	ai := aiFunc(func(_ context.Context, req ranking.AIRequest) (ranking.AIResponse, error) {
		return ranking.AIResponse{
			RankedIDs:     []string{"seg_200065"},
			RationaleByID: map[string]string{"seg_200065": "sports pages"},
			Proposals: []ranking.AIProposal{{
				Name:                        "Weekend Sports Viewers",
				Description:                 "Sports fans active on weekends",
				EstimatedCoveragePercentage: domain.Float(7),
				EstimatedCPM:                domain.Float(3.5),
				Rationale:                   "Narrower than broad sports audiences",
			}},
		}, nil
	})
	fx := newFixture(t, fixtureConfig{ai: ai})
	ctx := context.Background()

	discovery, err := fx.svc.Discover(ctx, DiscoverRequest{Query: "weekend sports fans"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if discovery.RankingMethod != ranking.MethodAI {
		t.Fatalf("ranking method = %q, want ai", discovery.RankingMethod)
	}
	if len(discovery.Proposals) != 1 {
		t.Fatalf("proposals = %+v", discovery.Proposals)
	}
	proposal := discovery.Proposals[0]
	if proposal.ContextID != discovery.ContextID || proposal.Estimation != domain.EstimationTag {
		t.Fatalf("proposal = %+v", proposal)
	}

	activated, err := fx.svc.Activate(ctx, ActivateRequest{
		SignalID:  proposal.ID,
		Platform:  "the-trade-desk",
		ContextID: discovery.ContextID,
	})
	if err != nil {
		t.Fatalf("activate proposal: %v", err)
	}
	if activated.Status != "activating" || activated.Origin != string(domain.OriginCustom) {
		t.Fatalf("activation = %+v", activated)
	}
	if activated.EstimatedDurationMinutes != 120 {
		t.Fatalf("estimated minutes = %d, want 120", activated.EstimatedDurationMinutes)
	}
	if activated.ContextID == discovery.ContextID || !contexts.ValidID(activated.ContextID) {
		t.Fatalf("activation context id = %q", activated.ContextID)
	}

	fx.clock.Advance(8 * 24 * time.Hour)
	_, err = fx.svc.Activate(ctx, ActivateRequest{
		SignalID:  proposal.ID,
		Platform:  "the-trade-desk",
		ContextID: discovery.ContextID,
	})
	if !apperrors.IsCode(err, apperrors.CodeExpiredContext) {
		t.Fatalf("err = %v, want expired context", err)
	}
}

func TestActivateUnknownSignal(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	discovery, err := fx.svc.Discover(ctx, DiscoverRequest{Query: "sports"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	tests := []ActivateRequest{
		{SignalID: "missing_signal", Platform: "the-trade-desk"},
		{SignalID: "missing_signal", Platform: "the-trade-desk", ContextID: discovery.ContextID},
		{SignalID: "custom_1_beef", Platform: "the-trade-desk"},
		{SignalID: "custom_1_beef", Platform: "the-trade-desk", ContextID: discovery.ContextID},
		{SignalID: "seg_200065", Platform: "the-trade-desk", ContextID: "ctx_1_abcdef"},
	}
	for _, req := range tests {
		if _, err := fx.svc.Activate(ctx, req); !apperrors.IsCode(err, apperrors.CodeNotFound) {
			t.Fatalf("activate %+v err = %v, want not found", req, err)
		}
	}
}

func TestActivateUnknownPlatformSkipsAdapters(t *testing.T) {
	t.Parallel()

	counter := &countingAdapter{}
	fx := newFixture(t, fixtureConfig{adapters: func(c *catalog.Controller) []platform.Adapter {
		counter.Sandbox = platform.NewSandbox(platform.SandboxConfig{Name: "the-trade-desk", Catalog: c.Signals})
		return []platform.Adapter{counter}
	}})
	_, err := fx.svc.Activate(context.Background(), ActivateRequest{SignalID: "seg_200065", Platform: "bogus-ssp"})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if got := counter.calls.Load(); got != 0 {
		t.Fatalf("adapter calls = %d, want 0", got)
	}
}

func TestAuthenticationFailureIsIsolated(t *testing.T) {
	t.Parallel()

	rejected := false
	fx := newFixture(t, fixtureConfig{adapters: func(c *catalog.Controller) []platform.Adapter {
		return []platform.Adapter{
			platform.NewSandbox(platform.SandboxConfig{
				Name:     "the-trade-desk",
				Catalog:  c.Signals,
				Segments: []platform.Segment{{PlatformSegmentID: "777", Name: "Sports Superfans", IsLive: true}},
			}),
			platform.NewSandbox(platform.SandboxConfig{Name: "index-exchange", Credentials: &rejected}),
		}
	}})
	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports superfans"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	views := map[string]PlatformView{}
	for _, view := range result.Platforms {
		views[view.Platform] = view
	}
	if ix := views["index-exchange"]; ix.Available || ix.ErrorKind != string(platform.KindAuthentication) {
		t.Fatalf("index-exchange = %+v, want unavailable with authentication kind", ix)
	}
	if ttd := views["the-trade-desk"]; !ttd.Available {
		t.Fatalf("the-trade-desk = %+v, want available", ttd)
	}
	if len(result.Signals) == 0 || result.Signals[0].SegmentID != "the-trade-desk_777" {
		t.Fatalf("signals = %v, want platform segment first", signalIDs(result.Signals))
	}
	if result.Signals[0].Source != "the-trade-desk" {
		t.Fatalf("source = %q", result.Signals[0].Source)
	}

	activated, err := fx.svc.Activate(context.Background(), ActivateRequest{
		SignalID:  "the-trade-desk_777",
		Platform:  "the-trade-desk",
		ContextID: result.ContextID,
	})
	if err != nil {
		t.Fatalf("activate platform segment: %v", err)
	}
	if activated.Origin != string(domain.OriginCatalog) || activated.EstimatedDurationMinutes != 60 {
		t.Fatalf("activation = %+v", activated)
	}
	_, err = fx.svc.Activate(context.Background(), ActivateRequest{SignalID: "the-trade-desk_777", Platform: "the-trade-desk"})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("err = %v, want not found without context", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	activated, err := fx.svc.Activate(ctx, ActivateRequest{SignalID: "auto_intenders", Platform: "the-trade-desk", PrincipalID: "acme"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Account != "acme-ttd" {
		t.Fatalf("account = %q, want principal account", activated.Account)
	}

	fx.clock.Advance(30 * time.Minute)
	status, err := fx.svc.Status(ctx, StatusRequest{ActivationID: activated.ActivationID, PrincipalID: "acme"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != "activating" || status.EstimatedDurationMinutes != 30 || status.DecisioningPlatformSegmentID != "" {
		t.Fatalf("status at 30m = %+v", status)
	}

	if _, err := fx.svc.Status(ctx, StatusRequest{ActivationID: activated.ActivationID}); !apperrors.IsCode(err, apperrors.CodeAuthorization) {
		t.Fatalf("anonymous status err = %v, want authorization", err)
	}

	fx.clock.Advance(31 * time.Minute)
	for i := 0; i < 2; i++ {
		status, err = fx.svc.Status(ctx, StatusRequest{ActivationID: activated.ActivationID, PrincipalID: "acme"})
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if status.Status != "deployed" || status.DecisioningPlatformSegmentID != "the-trade-desk_auto_intenders_acme-ttd" {
			t.Fatalf("status at 61m = %+v", status)
		}
	}
}

func TestActivatePlatformRejection(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{adapters: func(c *catalog.Controller) []platform.Adapter {
		return []platform.Adapter{platform.NewSandbox(platform.SandboxConfig{
			Name:        "the-trade-desk",
			Catalog:     c.Signals,
			FailSignals: []string{"seg_200065"},
		})}
	}})
	result, err := fx.svc.Activate(context.Background(), ActivateRequest{SignalID: "seg_200065", Platform: "the-trade-desk"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if result.Status != "failed" || result.Error == "" {
		t.Fatalf("result = %+v, want failed with error", result)
	}
	fx.clock.Advance(2 * time.Hour)
	status, err := fx.svc.Status(context.Background(), StatusRequest{ActivationID: result.ActivationID})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != "failed" {
		t.Fatalf("status = %q, want failed", status.Status)
	}
}

func TestAuthenticatedPrincipalWins(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	ctx := requestctx.WithPrincipalID(context.Background(), "acme")
	result, err := fx.svc.Discover(ctx, DiscoverRequest{Query: "sports loyalists", PrincipalID: "someone-else"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(result.Signals) == 0 || result.Signals[0].SegmentID != "acme_sports_loyalists" {
		t.Fatalf("signals = %v, want acme's personalized signal", signalIDs(result.Signals))
	}
	if _, err := fx.svc.Activate(context.Background(), ActivateRequest{
		SignalID:  "acme_sports_loyalists",
		Platform:  "the-trade-desk",
		ContextID: result.ContextID,
	}); !apperrors.IsCode(err, apperrors.CodeAuthorization) {
		t.Fatalf("foreign context err = %v, want authorization", err)
	}
}

func TestExecuteDispatches(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	outcome, err := fx.svc.Execute(context.Background(), DiscoverRequest{Query: "sports"})
	if err != nil {
		t.Fatalf("execute discover: %v", err)
	}
	if outcome.Kind != OperationDiscover || outcome.Discovery == nil || outcome.Activation != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	outcome, err = fx.svc.Execute(context.Background(), StatusRequest{ActivationID: "act_missing"})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if outcome.Kind != OperationStatus {
		t.Fatalf("kind = %q, want status", outcome.Kind)
	}
}

func TestClarification(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	vague, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if vague.ClarificationNeeded != clarifyVague {
		t.Fatalf("clarification = %q", vague.ClarificationNeeded)
	}
	none, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "underwater basket weaving"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(none.Signals) != 0 || none.ClarificationNeeded != clarifyNoMatch {
		t.Fatalf("result = %+v", none)
	}
}

// statusAdapter answers every status check with err.
type statusAdapter struct {
	*platform.Sandbox
	err error
}

func (s *statusAdapter) CheckStatus(ctx context.Context, ticketID string) (platform.StatusReport, error) {
	if s.err != nil {
		return platform.StatusReport{}, s.err
	}
	return s.Sandbox.CheckStatus(ctx, ticketID)
}

// startFailingStore rejects the write that moves an activation to
// ACTIVATING and remembers which record it was.
type startFailingStore struct {
	storage.ActivationStore
	mu       sync.Mutex
	rejected string
}

func (s *startFailingStore) UpdateActivation(ctx context.Context, id string, mutate func(*domain.Activation) error) (domain.Activation, error) {
	return s.ActivationStore.UpdateActivation(ctx, id, func(a *domain.Activation) error {
		if err := mutate(a); err != nil {
			return err
		}
		if a.State == domain.StateActivating {
			s.mu.Lock()
			s.rejected = id
			s.mu.Unlock()
			return errors.New("disk full")
		}
		return nil
	})
}

func vipAdapters(c *catalog.Controller) []platform.Adapter {
	return []platform.Adapter{
		platform.NewSandbox(platform.SandboxConfig{
			Name:    "the-trade-desk",
			Catalog: c.Signals,
			Segments: []platform.Segment{
				{PlatformSegmentID: "vip", Name: "Sports VIP", Account: "acme-ttd", IsLive: true},
				{PlatformSegmentID: "777", Name: "Sports Superfans", IsLive: true},
			},
		}),
		platform.NewSandbox(platform.SandboxConfig{Name: "openx", Catalog: c.Signals}),
	}
}

func TestDiscoverRejectsAccountsThePrincipalDoesNotHold(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{adapters: vipAdapters})
	foreign := []platform.Target{{Platform: "the-trade-desk", Account: "acme-ttd"}}

	_, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports", Platforms: foreign})
	if !apperrors.IsCode(err, apperrors.CodeAuthorization) {
		t.Fatalf("anonymous err = %v, want authorization", err)
	}
	if pub := apperrors.Public(err); pub.Code != apperrors.CodeNotFound {
		t.Fatalf("public code = %q, want not found", pub.Code)
	}

	result, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "sports vip", Platforms: foreign, PrincipalID: "acme"})
	if err != nil {
		t.Fatalf("owner discover: %v", err)
	}
	if !slices.Contains(signalIDs(result.Signals), "the-trade-desk_acme-ttd_vip") {
		t.Fatalf("signals = %v, want the account segment for its holder", signalIDs(result.Signals))
	}
}

func TestMergeSegmentsSkipsForeignAccountSegments(t *testing.T) {
	t.Parallel()

	contributions := []platform.Contribution{{
		Platform:  "the-trade-desk",
		Account:   "acme-ttd",
		Available: true,
		Segments: []platform.Segment{
			{PlatformSegmentID: "vip", Name: "Sports VIP", Account: "acme-ttd"},
			{PlatformSegmentID: "777", Name: "Sports Superfans"},
		},
	}}
	acme := domain.Principal{
		ID:          "acme",
		AccessLevel: domain.AccessPersonalized,
		Accounts:    map[string]string{"the-trade-desk": "acme-ttd"},
	}
	tests := []struct {
		name      string
		principal domain.Principal
		want      []string
	}{
		{name: "anonymous", principal: domain.Anonymous(), want: []string{"the-trade-desk_777"}},
		{name: "private without account", principal: domain.Principal{ID: "auto", AccessLevel: domain.AccessPrivate}, want: []string{"the-trade-desk_777"}},
		{name: "account holder", principal: acme, want: []string{"the-trade-desk_777", "the-trade-desk_acme-ttd_vip"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			merged := mergeSegments(tc.principal, catalog.Filters{}, nil, contributions)
			got := make([]string, 0, len(merged))
			for _, candidate := range merged {
				got = append(got, candidate.Signal.ID)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("candidates = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDiscoverNarrowsDeploymentsToDeliveryTargets(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{adapters: vipAdapters})
	deployedOn := func(result DiscoveryResult, id string) []string {
		for _, view := range result.Signals {
			if view.SegmentID != id {
				continue
			}
			var platforms []string
			for _, deployment := range view.Deployments {
				platforms = append(platforms, deployment.Platform)
			}
			return platforms
		}
		t.Fatalf("signals = %v, want %s", signalIDs(result.Signals), id)
		return nil
	}

	all, err := fx.svc.Discover(context.Background(), DiscoverRequest{Query: "auto intenders"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got := deployedOn(all, "auto_intenders"); !slices.Contains(got, "the-trade-desk") {
		t.Fatalf("deployments = %v, want the-trade-desk without a delivery filter", got)
	}

	openx, err := fx.svc.Discover(context.Background(), DiscoverRequest{
		Query:     "auto intenders",
		Platforms: []platform.Target{{Platform: "openx"}},
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got := deployedOn(openx, "auto_intenders"); len(got) != 0 {
		t.Fatalf("deployments = %v, want none outside openx", got)
	}
}

func TestActivatePlatformSegmentOnlyOnItsPlatform(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{adapters: vipAdapters})
	ctx := context.Background()
	discovery, err := fx.svc.Discover(ctx, DiscoverRequest{Query: "sports superfans"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	_, err = fx.svc.Activate(ctx, ActivateRequest{
		SignalID:  "the-trade-desk_777",
		Platform:  "openx",
		ContextID: discovery.ContextID,
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if _, err := fx.svc.Activate(ctx, ActivateRequest{
		SignalID:  "the-trade-desk_777",
		Platform:  "the-trade-desk",
		ContextID: discovery.ContextID,
	}); err != nil {
		t.Fatalf("activate on source platform: %v", err)
	}
}

func TestActivateRejectsAccountsThePrincipalDoesNotHold(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	_, err := fx.svc.Activate(context.Background(), ActivateRequest{
		SignalID: "seg_200065",
		Platform: "the-trade-desk",
		Account:  "acme-ttd",
	})
	if !apperrors.IsCode(err, apperrors.CodeAuthorization) {
		t.Fatalf("err = %v, want authorization", err)
	}
}

func TestStatusKeepsActivationContext(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	discovery, err := fx.svc.Discover(ctx, DiscoverRequest{Query: "sports"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	activated, err := fx.svc.Activate(ctx, ActivateRequest{
		SignalID:  "seg_200065",
		Platform:  "the-trade-desk",
		ContextID: discovery.ContextID,
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	status, err := fx.svc.Status(ctx, StatusRequest{ActivationID: activated.ActivationID})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ContextID != activated.ContextID {
		t.Fatalf("status context = %q, want activation context %q", status.ContextID, activated.ContextID)
	}
	record, err := fx.store.GetContext(ctx, activated.ContextID)
	if err != nil {
		t.Fatalf("load activation context: %v", err)
	}
	if record.ParentID != discovery.ContextID || record.Payload.ActivationID != activated.ActivationID {
		t.Fatalf("activation context = %+v", record)
	}
}

func TestActivateFailsRecordWhenTicketCannotBeStored(t *testing.T) {
	t.Parallel()

	failing := &startFailingStore{}
	fx := newFixture(t, fixtureConfig{activations: func(inner storage.ActivationStore) storage.ActivationStore {
		failing.ActivationStore = inner
		return failing
	}})
	ctx := context.Background()
	if _, err := fx.svc.Activate(ctx, ActivateRequest{SignalID: "seg_200065", Platform: "the-trade-desk"}); err == nil {
		t.Fatal("expected activation to fail when the ticket cannot be stored")
	}
	failing.mu.Lock()
	activationID := failing.rejected
	failing.mu.Unlock()
	if activationID == "" {
		t.Fatal("expected the start write to be attempted")
	}
	record, err := fx.store.GetActivation(ctx, activationID)
	if err != nil {
		t.Fatalf("load activation: %v", err)
	}
	if record.State != domain.StateFailed {
		t.Fatalf("state = %s, want FAILED", record.State)
	}
}

func TestStatusAdapterErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "upstream failure fails the activation", err: errors.New("ticket unknown"), want: "failed"},
		{name: "timeout keeps progressing", err: context.DeadlineExceeded, want: "activating"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fx := newFixture(t, fixtureConfig{adapters: func(c *catalog.Controller) []platform.Adapter {
				return []platform.Adapter{&statusAdapter{
					Sandbox: platform.NewSandbox(platform.SandboxConfig{Name: "the-trade-desk", Catalog: c.Signals}),
					err:     tc.err,
				}}
			}})
			ctx := context.Background()
			activated, err := fx.svc.Activate(ctx, ActivateRequest{SignalID: "seg_200065", Platform: "the-trade-desk"})
			if err != nil {
				t.Fatalf("activate: %v", err)
			}
			fx.clock.Advance(10 * time.Minute)
			status, err := fx.svc.Status(ctx, StatusRequest{ActivationID: activated.ActivationID})
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if status.Status != tc.want {
				t.Fatalf("status = %q, want %q", status.Status, tc.want)
			}
		})
	}
}
