package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const (
	liveRampDefaultURL      = "https://api.liveramp.com"
	liveRampDefaultTokenURL = "https://serviceaccounts.liveramp.com/authn/v1/oauth2/token"
	liveRampSegmentsPath    = "/data-marketplace/buyer-api/v3/segments"
	liveRampRequestsPath    = "/data-marketplace/buyer-api/v3/requested-segments"
	liveRampPageSize        = 100
	liveRampMaxPages        = 10
)

// LiveRampConfig configures the LiveRamp Data Marketplace adapter.
type LiveRampConfig struct {
	Name       string
	BaseURL    string
	TokenURL   string
	ClientID   string
	Username   string
	Password   string
	OwnerOrg   string
	HTTPClient *http.Client
	Executor   *Executor
	Clock      clock.Clock
}

// LiveRamp lists and activates Data Marketplace segments.
type LiveRamp struct {
	cfg   LiveRampConfig
	oauth oauth2.Config
	mu    sync.Mutex
	token *oauth2.Token
}

// NewLiveRamp returns a LiveRamp adapter authenticating with the OAuth2
// password grant.
func NewLiveRamp(cfg LiveRampConfig) *LiveRamp {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "liveramp"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = liveRampDefaultURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = liveRampDefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(ExecutorConfig{Name: cfg.Name, MaxRetries: 2})
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &LiveRamp{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

func (a *LiveRamp) Name() string { return a.cfg.Name }

func (a *LiveRamp) Authenticate(ctx context.Context) error {
	_, err := a.accessToken(ctx)
	return err
}

func (a *LiveRamp) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != nil && a.cfg.Clock.Now().Before(a.token.Expiry.Add(-tokenRefreshBuffer)) {
		return a.token.AccessToken, nil
	}
	if a.cfg.Username == "" || a.cfg.Password == "" {
		return "", authError(a.cfg.Name, fmt.Errorf("account id and secret key are required"))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	token, err := a.oauth.PasswordCredentialsToken(ctx, a.cfg.Username, a.cfg.Password)
	if err != nil {
		return "", authError(a.cfg.Name, err)
	}
	if token.Expiry.IsZero() {
		token.Expiry = a.cfg.Clock.Now().Add(time.Hour)
	}
	a.token = token
	return token.AccessToken, nil
}

func (a *LiveRamp) resetToken() {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()
}

func (a *LiveRamp) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.cfg.Executor.Do(ctx, a.cfg.HTTPClient, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("LR-Org-Id", a.cfg.OwnerOrg)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.cfg.Name, method, err)
	}
	if res.StatusCode == http.StatusUnauthorized {
		defer res.Body.Close()
		a.resetToken()
		return nil, authError(a.cfg.Name, statusError(method+" "+endpoint, res))
	}
	return res, nil
}

type lrSegment struct {
	ID            json.RawMessage `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	ProviderName  string          `json:"providerName"`
	Subscriptions []struct {
		Price struct {
			CPM   *float64 `json:"cpm"`
			Value *float64 `json:"value"`
		} `json:"price"`
	} `json:"subscriptions"`
	Reach struct {
		InputRecords struct {
			Count float64 `json:"count"`
		} `json:"inputRecords"`
	} `json:"reach"`
}

func (a *LiveRamp) ListSegments(ctx context.Context, scope Scope) ([]Segment, error) {
	var segments []Segment
	after := ""
	for page := 0; page < liveRampMaxPages; page++ {
		query := url.Values{"limit": {fmt.Sprint(liveRampPageSize)}}
		if after != "" {
			query.Set("after", after)
		}
		res, err := a.do(ctx, http.MethodGet, a.cfg.BaseURL+liveRampSegmentsPath+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Segments   []lrSegment `json:"v3_Segments"`
			Pagination struct {
				After string `json:"after"`
			} `json:"_pagination"`
		}
		err = decodeOK(res, "list segments", &payload)
		if err != nil {
			return nil, err
		}
		for _, raw := range payload.Segments {
			segmentID := rawID(raw.ID)
			if segmentID == "" {
				continue
			}
			provider := firstNonEmpty(raw.ProviderName, "Unknown Provider")
			segments = append(segments, Segment{
				PlatformSegmentID: segmentID,
				Name:              firstNonEmpty(raw.Name, "LiveRamp Segment "+segmentID),
				Description:       firstNonEmpty(raw.Description, "LiveRamp segment from "+provider),
				Provider:          "LiveRamp (" + provider + ")",
				Type:              domain.SignalMarketplace,
				Coverage:          coverageFromReach(raw.Reach.InputRecords.Count),
				CPM:               lrCPM(raw),
				Currency:          "USD",
				Account:           scope.Account,
				IsLive:            true,
			})
		}
		after = payload.Pagination.After
		if after == "" {
			break
		}
	}
	if segments == nil {
		segments = []Segment{}
	}
	return segments, nil
}

func (a *LiveRamp) Activate(ctx context.Context, req ActivationRequest) (Ticket, error) {
	segmentID := firstNonEmpty(req.SourceSegmentID, req.SignalID)
	body, err := json.Marshal(map[string]any{
		"segmentId":    segmentID,
		"name":         firstNonEmpty(req.SignalName, "Activation_"+segmentID),
		"description":  firstNonEmpty(req.Description, "Activated via Signals Agent"),
		"destinations": []string{},
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("marshal activation request: %w", err)
	}
	res, err := a.do(ctx, http.MethodPost, a.cfg.BaseURL+liveRampRequestsPath, body)
	if err != nil {
		return Ticket{}, err
	}
	var payload struct {
		ID json.RawMessage `json:"id"`
	}
	if err := decodeOK(res, "activate", &payload); err != nil {
		return Ticket{}, err
	}
	ticketID := rawID(payload.ID)
	if ticketID == "" {
		return Ticket{}, fmt.Errorf("activation response missing id")
	}
	return Ticket{ID: ticketID, PlatformSegmentID: SegmentID(a.cfg.Name, req.SignalID, req.Account)}, nil
}

func (a *LiveRamp) CheckStatus(ctx context.Context, ticketID string) (StatusReport, error) {
	res, err := a.do(ctx, http.MethodGet, a.cfg.BaseURL+liveRampRequestsPath+"/"+url.PathEscape(ticketID), nil)
	if err != nil {
		return StatusReport{}, err
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return StatusReport{State: RemoteUnknown, Message: "activation not found"}, nil
	}
	var payload struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := decodeOK(res, "check status", &payload); err != nil {
		return StatusReport{}, err
	}
	switch strings.ToUpper(payload.Status) {
	case "ACTIVE":
		return StatusReport{State: RemoteDeployed}, nil
	case "PENDING", "PROCESSING":
		return StatusReport{State: RemoteActivating}, nil
	case "FAILED", "ERROR":
		return StatusReport{State: RemoteFailed, Message: firstNonEmpty(payload.ErrorMessage, "activation failed")}, nil
	default:
		return StatusReport{State: RemoteUnknown}, nil
	}
}

func lrCPM(raw lrSegment) *float64 {
	for _, subscription := range raw.Subscriptions {
		if subscription.Price.CPM != nil {
			return domain.Float(*subscription.Price.CPM)
		}
		if subscription.Price.Value != nil {
			return domain.Float(*subscription.Price.Value)
		}
	}
	return nil
}

// decodeOK closes res after decoding a 2xx body into target.
func decodeOK(res *http.Response, operation string, target any) error {
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(operation, res)
	}
	if err := json.NewDecoder(res.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
