package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const (
	indexExchangeDefaultURL = "https://app.indexexchange.com/api"
	// tokenRefreshBuffer renews tokens this long before they expire.
	tokenRefreshBuffer = 300 * time.Second
	defaultTokenLife   = 90 * time.Minute
	// reachPopulation converts reach counts to a coverage percentage.
	reachPopulation = 250_000_000
	maxCoverage     = 50.0
)

// IndexExchangeConfig configures the Index Exchange adapter.
type IndexExchangeConfig struct {
	Name       string
	BaseURL    string
	Username   string
	Password   string
	Account    string
	HTTPClient *http.Client
	Executor   *Executor
	Clock      clock.Clock
}

// IndexExchange lists marketplace segments through the Index Exchange API.
type IndexExchange struct {
	cfg     IndexExchangeConfig
	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewIndexExchange returns an Index Exchange adapter.
func NewIndexExchange(cfg IndexExchangeConfig) *IndexExchange {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "index-exchange"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = indexExchangeDefaultURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(ExecutorConfig{Name: cfg.Name, MaxRetries: 2})
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &IndexExchange{cfg: cfg}
}

func (a *IndexExchange) Name() string { return a.cfg.Name }

func (a *IndexExchange) Authenticate(ctx context.Context) error {
	_, err := a.accessToken(ctx)
	return err
}

func (a *IndexExchange) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.cfg.Clock.Now()
	if a.token != "" && now.Before(a.expires.Add(-tokenRefreshBuffer)) {
		return a.token, nil
	}
	if a.cfg.Username == "" || a.cfg.Password == "" {
		return "", authError(a.cfg.Name, fmt.Errorf("username and password are required"))
	}
	body, err := json.Marshal(map[string]string{
		"username": a.cfg.Username,
		"password": a.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}
	res, err := a.cfg.Executor.Do(ctx, a.cfg.HTTPClient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/authentication/v1/login", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", authError(a.cfg.Name, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", authError(a.cfg.Name, statusError("login", res))
	}
	var payload struct {
		LoginResponse struct {
			AuthResponse struct {
				AccessToken string `json:"access_token"`
				ExpiresIn   int64  `json:"expires_in"`
			} `json:"authResponse"`
		} `json:"loginResponse"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", authError(a.cfg.Name, fmt.Errorf("decode login response: %w", err))
	}
	auth := payload.LoginResponse.AuthResponse
	if auth.AccessToken == "" {
		return "", authError(a.cfg.Name, fmt.Errorf("login response missing access token"))
	}
	life := defaultTokenLife
	if auth.ExpiresIn > 0 {
		life = time.Duration(auth.ExpiresIn) * time.Second
	}
	a.token = auth.AccessToken
	a.expires = now.Add(life)
	return a.token, nil
}

type ixSegment struct {
	SegmentID           json.RawMessage `json:"segmentID"`
	AudienceID          json.RawMessage `json:"audienceID"`
	ExternalSegmentName string          `json:"externalSegmentName"`
	Name                string          `json:"name"`
	DataProvider        json.RawMessage `json:"dataProvider"`
	UserCount           float64         `json:"userCount"`
	Reach               float64         `json:"reach"`
	Fees                []ixFee         `json:"fees"`
}

type ixFee struct {
	Fee struct {
		CPM   *float64 `json:"cpm"`
		Price *float64 `json:"price"`
	} `json:"fee"`
}

func (a *IndexExchange) ListSegments(ctx context.Context, scope Scope) ([]Segment, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	account := scope.Account
	if account == "" {
		account = a.cfg.Account
	}
	if account == "" {
		return []Segment{}, nil
	}
	res, err := a.cfg.Executor.Do(ctx, a.cfg.HTTPClient, func(ctx context.Context) (*http.Request, error) {
		endpoint := a.cfg.BaseURL + "/segments/v2/segments?" + url.Values{"accountID": {account}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s list segments: %w", a.cfg.Name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		a.resetToken()
		return nil, authError(a.cfg.Name, statusError("list segments", res))
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusError("list segments", res)
	}
	var payload struct {
		Segments []ixSegment `json:"segments"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	segments := make([]Segment, 0, len(payload.Segments))
	for _, raw := range payload.Segments {
		segmentID := firstNonEmpty(rawID(raw.SegmentID), rawID(raw.AudienceID))
		if segmentID == "" {
			continue
		}
		name := firstNonEmpty(raw.ExternalSegmentName, raw.Name, "IX Segment "+segmentID)
		provider := providerName(raw.DataProvider)
		segments = append(segments, Segment{
			PlatformSegmentID: segmentID,
			Name:              name,
			Description:       "Index Exchange segment from " + provider,
			Provider:          "Index Exchange (" + provider + ")",
			Type:              domain.SignalMarketplace,
			Coverage:          coverageFromReach(max(raw.UserCount, raw.Reach)),
			CPM:               ixCPM(raw.Fees),
			Currency:          "USD",
			Account:           account,
			IsLive:            true,
		})
	}
	return segments, nil
}

// Activate registers the activation locally; Index Exchange exposes no
// provisioning endpoint, so completion follows the nominal schedule.
func (a *IndexExchange) Activate(ctx context.Context, req ActivationRequest) (Ticket, error) {
	if err := a.Authenticate(ctx); err != nil {
		return Ticket{}, err
	}
	account := firstNonEmpty(req.Account, a.cfg.Account)
	return Ticket{
		ID:                "ix_activation_" + req.SignalID + "_" + account,
		PlatformSegmentID: SegmentID(a.cfg.Name, req.SignalID, req.Account),
	}, nil
}

func (a *IndexExchange) CheckStatus(ctx context.Context, ticketID string) (StatusReport, error) {
	if err := a.Authenticate(ctx); err != nil {
		return StatusReport{}, err
	}
	if !strings.HasPrefix(ticketID, "ix_activation_") {
		return StatusReport{State: RemoteUnknown}, nil
	}
	return StatusReport{State: RemoteActivating}, nil
}

func (a *IndexExchange) resetToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

// rawID renders a JSON string or number id as text.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(raw))
}

func providerName(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "Index Exchange"
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil && name != "" {
		return name
	}
	var object struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &object); err == nil && object.Name != "" {
		return object.Name
	}
	return "Unknown Provider"
}

// ixCPM reads the first fee. No fees means the segment is free; fees
// without a recognizable price are unknown.
func ixCPM(fees []ixFee) *float64 {
	if len(fees) == 0 {
		return domain.Float(0)
	}
	fee := fees[0].Fee
	switch {
	case fee.CPM != nil:
		return domain.Float(*fee.CPM)
	case fee.Price != nil:
		return domain.Float(*fee.Price)
	default:
		return nil
	}
}

func coverageFromReach(count float64) *float64 {
	if count <= 0 {
		return nil
	}
	pct := math.Min(count/reachPopulation*100, maxCoverage)
	return domain.Float(math.Round(pct*10) / 10)
}

func statusError(operation string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s status %d: %s", operation, res.StatusCode, strings.TrimSpace(string(body)))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
