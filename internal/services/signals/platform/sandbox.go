package platform

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/louisbranch/signals.agent/internal/platform/id"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// SandboxConfig configures an in-process platform.
type SandboxConfig struct {
	Name string
	// Catalog supplies the signals whose deployments the sandbox lists.
	Catalog func() []domain.Signal
	// Segments are listed in addition to catalog deployments.
	Segments []Segment
	// FailSignals are rejected on activation.
	FailSignals []string
	// Credentials, when set to false, makes every call fail authentication.
	Credentials *bool
}

type sandboxTicket struct {
	segmentID string
}

// Sandbox is an in-process adapter for demos and tests.
type Sandbox struct {
	cfg     SandboxConfig
	mu      sync.Mutex
	tickets map[string]sandboxTicket
}

// NewSandbox returns a Sandbox adapter.
func NewSandbox(cfg SandboxConfig) *Sandbox {
	return &Sandbox{cfg: cfg, tickets: make(map[string]sandboxTicket)}
}

func (s *Sandbox) Name() string { return s.cfg.Name }

func (s *Sandbox) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Credentials != nil && !*s.cfg.Credentials {
		return authError(s.cfg.Name, fmt.Errorf("sandbox credentials rejected"))
	}
	return nil
}

func (s *Sandbox) ListSegments(ctx context.Context, scope Scope) ([]Segment, error) {
	if err := s.Authenticate(ctx); err != nil {
		return nil, err
	}
	var segments []Segment
	if s.cfg.Catalog != nil {
		for _, signal := range s.cfg.Catalog() {
			deployment, ok := signal.DeploymentOn(s.cfg.Name, scope.Account)
			if !ok {
				continue
			}
			segmentID := deployment.PlatformSegmentID
			if segmentID == "" {
				segmentID = SegmentID(s.cfg.Name, signal.ID, deployment.Account)
			}
			segments = append(segments, Segment{
				PlatformSegmentID: segmentID,
				Name:              signal.Name,
				Description:       signal.Description,
				Provider:          signal.Provider,
				Type:              signal.Type,
				Coverage:          signal.Coverage,
				CPM:               signal.Pricing.CPM,
				Currency:          signal.Pricing.Currency,
				Account:           deployment.Account,
				IsLive:            deployment.IsLive,
				SignalID:          signal.ID,
			})
		}
	}
	for _, segment := range s.cfg.Segments {
		if segment.Account != "" && segment.Account != scope.Account {
			continue
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func (s *Sandbox) Activate(ctx context.Context, req ActivationRequest) (Ticket, error) {
	if err := s.Authenticate(ctx); err != nil {
		return Ticket{}, err
	}
	if slices.Contains(s.cfg.FailSignals, req.SignalID) {
		return Ticket{}, fmt.Errorf("%s rejected activation of %s", s.cfg.Name, req.SignalID)
	}
	suffix, err := id.NewHex(4)
	if err != nil {
		return Ticket{}, err
	}
	ticket := Ticket{
		ID:                s.cfg.Name + "_act_" + suffix,
		PlatformSegmentID: SegmentID(s.cfg.Name, req.SignalID, req.Account),
	}
	s.mu.Lock()
	s.tickets[ticket.ID] = sandboxTicket{segmentID: ticket.PlatformSegmentID}
	s.mu.Unlock()
	return ticket, nil
}

// CheckStatus reports known tickets as activating; completion is decided
// by elapsed time.
func (s *Sandbox) CheckStatus(ctx context.Context, ticketID string) (StatusReport, error) {
	if err := s.Authenticate(ctx); err != nil {
		return StatusReport{}, err
	}
	s.mu.Lock()
	ticket, ok := s.tickets[ticketID]
	s.mu.Unlock()
	if !ok {
		return StatusReport{State: RemoteUnknown}, nil
	}
	return StatusReport{State: RemoteActivating, PlatformSegmentID: ticket.segmentID}, nil
}
