package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

func candidate(id, name, description string, visibility domain.AccessLevel) domain.Candidate {
	return domain.Candidate{Signal: domain.Signal{
		ID:          id,
		Name:        name,
		Description: description,
		Visibility:  visibility,
	}}
}

func resultIDs(items []Scored) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Candidate.Signal.ID)
	}
	return out
}

type fakeAI struct {
	response AIResponse
	err      error
	delay    time.Duration
	requests []AIRequest
}

func (f *fakeAI) Rank(ctx context.Context, request AIRequest) (AIResponse, error) {
	f.requests = append(f.requests, request)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return AIResponse{}, ctx.Err()
		}
	}
	return f.response, f.err
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("Sports ENTHUSIASTS, sports fans & a 4K-TV")
	want := []string{"sports", "enthusiasts", "fans", "4k", "tv"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	if got := Tokenize("   "); len(got) != 0 {
		t.Fatalf("Tokenize(blank) = %v, want empty", got)
	}
	got = Tokenize("Amateurs de FOOTBALL, Café Über ß")
	want = []string{"amateurs", "de", "football", "café", "über", "ss"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize(non-ascii) = %v, want %v", got, want)
	}
}

func TestDeterministicPlacesSportsFirst(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("geo_urban_centers", "Major Urban Centers", "Top metropolitan areas", domain.AccessPublic),
		candidate("seg_200065", "Sports", "Peer39 contextual sports pages", domain.AccessPublic),
		candidate("weather", "Weather-Based Targeting", "Rainy days", domain.AccessPublic),
	}
	got := Deterministic("sports enthusiasts", candidates)
	if len(got) != 1 || got[0].Candidate.Signal.ID != "seg_200065" {
		t.Fatalf("ranking = %v, want [seg_200065]", resultIDs(got))
	}
}

func TestDeterministicTieBreaks(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("b_public", "Auto Buyers", "", domain.AccessPublic),
		candidate("a_public", "Auto Shoppers", "", domain.AccessPublic),
		candidate("z_private", "Auto Owners", "", domain.AccessPrivate),
		candidate("m_personal", "Auto Fans", "", domain.AccessPersonalized),
		candidate("top", "Auto Luxury", "luxury auto", domain.AccessPublic),
	}
	got := resultIDs(Deterministic("luxury auto", candidates))
	want := []string{"top", "z_private", "m_personal", "a_public", "b_public"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranking = %v, want %v", got, want)
	}
}

func TestDeterministicIsStable(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("c", "Sports Fans", "", domain.AccessPublic),
		candidate("a", "Sports Viewers", "", domain.AccessPublic),
		candidate("b", "Sports Readers", "", domain.AccessPublic),
	}
	first := resultIDs(Deterministic("sports", candidates))
	for i := 0; i < 10; i++ {
		if got := resultIDs(Deterministic("sports", candidates)); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %v, want %v", i, got, first)
		}
	}
}

func TestDeterministicEmptyInputs(t *testing.T) {
	t.Parallel()

	if got := Deterministic("sports", nil); len(got) != 0 {
		t.Fatalf("empty catalog = %v, want empty", got)
	}
	candidates := []domain.Candidate{candidate("a", "Weather", "", domain.AccessPublic)}
	if got := Deterministic("zzz", candidates); len(got) != 0 {
		t.Fatalf("no match = %v, want empty", got)
	}
}

func TestResolveMaxResults(t *testing.T) {
	t.Parallel()

	value := func(v int) *int { return &v }
	tests := []struct {
		name      string
		requested *int
		want      int
		wantErr   bool
	}{
		{name: "unset", requested: nil, want: DefaultMaxResults},
		{name: "zero", requested: value(0), want: 0},
		{name: "within", requested: value(7), want: 7},
		{name: "clamped", requested: value(500), want: MaxResultsLimit},
		{name: "negative", requested: value(-1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMaxResults(tt.requested)
			if tt.wantErr {
				if !apperrors.IsCode(err, apperrors.CodeValidation) {
					t.Fatalf("err = %v, want VALIDATION_ERROR", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMaxResults: %v", err)
			}
			if got != tt.want {
				t.Fatalf("max results = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEngineClampsToMaxResults(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("a", "Sports A", "", domain.AccessPublic),
		candidate("b", "Sports B", "", domain.AccessPublic),
		candidate("c", "Sports C", "", domain.AccessPublic),
	}
	engine := &Engine{}
	for n := 0; n <= 4; n++ {
		result := engine.Rank(context.Background(), Request{Query: "sports", Candidates: candidates, MaxResults: n})
		if len(result.Items) > n {
			t.Fatalf("max_results %d returned %d items", n, len(result.Items))
		}
		if result.Method != MethodDeterministic {
			t.Fatalf("method = %q, want deterministic", result.Method)
		}
	}
}

func TestEngineUsesAIOrderAndRationale(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("a", "Sports A", "", domain.AccessPublic),
		candidate("b", "Sports B", "", domain.AccessPublic),
		candidate("c", "Weather", "", domain.AccessPublic),
	}
	ai := &fakeAI{response: AIResponse{
		RankedIDs:     []string{"c", "a"},
		RationaleByID: map[string]string{"c": "outdoor events"},
		Proposals: []AIProposal{
			{Name: "Weekend Sports Viewers", Rationale: "narrower than broad sports", EstimatedCPM: domain.Float(3)},
			{Name: "Sports A"},
		},
	}}
	engine := &Engine{
		AI:        ai,
		Proposals: ProposalGenerator{Exists: func(name string) bool { return name == "Sports A" }},
	}
	result := engine.Rank(context.Background(), Request{Query: "sports", Candidates: candidates, MaxResults: 5})

	if result.Method != MethodAI || result.Fallback != FallbackNone {
		t.Fatalf("method = %q fallback = %q, want ai", result.Method, result.Fallback)
	}
	if got, want := resultIDs(result.Items), []string{"c", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ranking = %v, want %v", got, want)
	}
	if result.Items[0].Rationale != "outdoor events" {
		t.Fatalf("rationale = %q", result.Items[0].Rationale)
	}
	if len(result.Proposals) != 1 || result.Proposals[0].Estimation != domain.EstimationTag {
		t.Fatalf("proposals = %+v, want one estimated proposal", result.Proposals)
	}
	if len(ai.requests) != 1 || len(ai.requests[0].Candidates) != 3 {
		t.Fatalf("ai requests = %+v, want one with three candidates", ai.requests)
	}
}

func TestEngineFallsBackOnTimeout(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("seg_200065", "Sports", "", domain.AccessPublic),
	}
	ai := &fakeAI{delay: time.Second, response: AIResponse{RankedIDs: []string{"seg_200065"}}}
	engine := &Engine{AI: ai, Timeout: 20 * time.Millisecond}

	result := engine.Rank(context.Background(), Request{Query: "sports enthusiasts", Candidates: candidates, MaxResults: 10})
	if result.Method != MethodDeterministic || result.Fallback != FallbackTimeout {
		t.Fatalf("method = %q fallback = %q, want deterministic/timeout", result.Method, result.Fallback)
	}
	if got := resultIDs(result.Items); !reflect.DeepEqual(got, []string{"seg_200065"}) {
		t.Fatalf("ranking = %v", got)
	}
	if len(result.Proposals) != 0 {
		t.Fatalf("proposals = %+v, want none after fallback", result.Proposals)
	}
}

func TestEngineRejectsUnusableReplies(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		candidate("a", "Sports A", "", domain.AccessPublic),
		candidate("b", "Sports B", "", domain.AccessPublic),
	}
	tests := []struct {
		name string
		ai   *fakeAI
	}{
		{name: "error", ai: &fakeAI{err: errors.New("boom")}},
		{name: "unknown id", ai: &fakeAI{response: AIResponse{RankedIDs: []string{"a", "ghost"}}}},
		{name: "duplicate id", ai: &fakeAI{response: AIResponse{RankedIDs: []string{"a", "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &Engine{AI: tt.ai}
			result := engine.Rank(context.Background(), Request{Query: "sports", Candidates: candidates, MaxResults: 10})
			if result.Method != MethodDeterministic || result.Fallback != FallbackFailure {
				t.Fatalf("method = %q fallback = %q, want deterministic/failure", result.Method, result.Fallback)
			}
			for _, item := range result.Items {
				if item.Rationale != "" {
					t.Fatalf("deterministic item carries rationale %q", item.Rationale)
				}
			}
			if got, want := resultIDs(result.Items), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("ranking = %v, want %v", got, want)
			}
		})
	}
}

func TestEngineDeterministicModeSkipsAI(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{}
	engine := &Engine{AI: ai}
	engine.Rank(context.Background(), Request{
		Query:      "sports",
		Candidates: []domain.Candidate{candidate("a", "Sports", "", domain.AccessPublic)},
		MaxResults: 10,
		Mode:       ModeDeterministic,
	})
	if len(ai.requests) != 0 {
		t.Fatalf("ai called %d times, want 0", len(ai.requests))
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(""); err != nil || mode != ModeAuto {
		t.Fatalf("ParseMode(\"\") = %q, %v", mode, err)
	}
	if _, err := ParseMode("magic"); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestProposalGenerator(t *testing.T) {
	t.Parallel()

	suffixes := []string{"55aa", "66bb", "77cc"}
	generator := ProposalGenerator{
		Exists: func(name string) bool { return name == "Urban Millennials" },
		newSuffix: func() (string, error) {
			value := suffixes[0]
			suffixes = suffixes[1:]
			return value, nil
		},
	}
	got, err := generator.Generate([]AIProposal{
		{Name: "Weekend Cyclists", EstimatedCoveragePercentage: domain.Float(140), EstimatedCPM: domain.Float(-2)},
		{Name: "Urban Millennials"},
		{Name: "weekend  cyclists"},
		{Name: " "},
		{Name: "Trail Runners", EstimatedCPM: domain.Float(4.5)},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("proposals = %+v, want 2", got)
	}
	if got[0].ID != "custom_1_55aa" || got[1].ID != "custom_2_66bb" {
		t.Fatalf("ids = %q, %q", got[0].ID, got[1].ID)
	}
	if *got[0].EstimatedCoveragePercentage != 100 || got[0].EstimatedCPM != nil {
		t.Fatalf("first proposal estimates = %v, %v", *got[0].EstimatedCoveragePercentage, got[0].EstimatedCPM)
	}
	if !IsProposalID(got[1].ID) || IsProposalID("seg_200065") {
		t.Fatal("IsProposalID mismatch")
	}
}

func TestHTTPClientRank(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotRequest AIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ranked_ids":["a"],"rationale_by_id":{"a":"best"}}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{URL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	response, err := client.Rank(context.Background(), AIRequest{Query: "sports", MaxResults: 3})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotRequest.Query != "sports" || gotRequest.MaxResults != 3 {
		t.Fatalf("request = %+v", gotRequest)
	}
	if response.RationaleByID["a"] != "best" {
		t.Fatalf("response = %+v", response)
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	outcome := Call(context.Background(), client, AIRequest{Query: "sports"}, time.Second)
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("outcome = %v, want failure", outcome.Kind)
	}
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPClientConfig{}); err == nil {
		t.Fatal("expected url error")
	}
}

func TestCallWithoutClientIsFailure(t *testing.T) {
	if outcome := Call(context.Background(), nil, AIRequest{}, time.Second); outcome.Kind != OutcomeFailure {
		t.Fatalf("outcome = %v, want failure", outcome.Kind)
	}
}
