package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AIClient is the AI ranking collaborator.
type AIClient interface {
	Rank(ctx context.Context, request AIRequest) (AIResponse, error)
}

// AICandidate is the view of a candidate sent to the collaborator.
type AICandidate struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Provider           string   `json:"data_provider"`
	Type               string   `json:"signal_type"`
	CoveragePercentage *float64 `json:"coverage_percentage"`
	CPM                *float64 `json:"cpm"`
}

// AIRequest asks the collaborator to reorder candidates for query.
type AIRequest struct {
	Query      string        `json:"query"`
	Candidates []AICandidate `json:"candidates"`
	MaxResults int           `json:"max_results"`
}

// AIProposal is a custom segment suggested by the collaborator.
type AIProposal struct {
	Name                        string   `json:"name"`
	Description                 string   `json:"description"`
	EstimatedCoveragePercentage *float64 `json:"estimated_coverage_percentage"`
	EstimatedCPM                *float64 `json:"estimated_cpm"`
	Rationale                   string   `json:"rationale"`
}

// AIResponse is the collaborator's reordering.
type AIResponse struct {
	RankedIDs     []string          `json:"ranked_ids"`
	RationaleByID map[string]string `json:"rationale_by_id"`
	Proposals     []AIProposal      `json:"proposals"`
}

// HTTPClientConfig configures the HTTP AI ranking client.
type HTTPClientConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

type httpClient struct {
	cfg HTTPClientConfig
}

// NewHTTPClient returns an AIClient posting JSON requests to cfg.URL.
func NewHTTPClient(cfg HTTPClientConfig) (AIClient, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("ai ranking url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &httpClient{cfg: cfg}, nil
}

func (c *httpClient) Rank(ctx context.Context, request AIRequest) (AIResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return AIResponse{}, fmt.Errorf("marshal ranking request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return AIResponse{}, fmt.Errorf("build ranking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return AIResponse{}, fmt.Errorf("ranking request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return AIResponse{}, fmt.Errorf("read ranking error body: %w", err)
		}
		return AIResponse{}, fmt.Errorf("ranking request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload AIResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return AIResponse{}, fmt.Errorf("decode ranking response: %w", err)
	}
	return payload, nil
}
