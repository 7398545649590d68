package searchexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	runctx "github.com/ricesearch/search-relevance/internal/pkg/context"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/security"
)

// HTTPConfig configures the HTTP executor.
type HTTPConfig struct {
	// BaseURL is the search engine endpoint, e.g. http://localhost:9200.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:         "http://localhost:9200",
		Timeout:         30 * time.Second,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPExecutor runs queries through an OpenSearch-compatible _search API.
type HTTPExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExecutor creates an HTTP executor. Zero fields take defaults.
func NewHTTPExecutor(cfg HTTPConfig) *HTTPExecutor {
	def := DefaultHTTPConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost / 5,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPExecutor{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID    string   `json:"_id"`
			Score *float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

// BuildBody renders the request body for req.
func BuildBody(req Request) (map[string]any, error) {
	rendered, err := RenderTemplate(req.Config.QueryTemplate, req.QueryText)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("search configuration %s: %v", req.Config.ID, err))
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(rendered), &body); err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("search configuration %s: query template is not a JSON object: %v", req.Config.ID, err))
	}

	body["size"] = req.Size
	body["_source"] = false
	if req.Pipeline != nil {
		body["search_pipeline"] = req.Pipeline.Processor()
	}
	return body, nil
}

// Search implements Executor.
func (e *HTTPExecutor) Search(ctx context.Context, req Request) (*Response, error) {
	body, err := BuildBody(req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.SearchError("encoding search body", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_search", e.baseURL, url.PathEscape(req.Config.Index))
	if req.Pipeline == nil && req.Config.SearchPipeline != "" {
		endpoint += "?search_pipeline=" + url.QueryEscape(req.Config.SearchPipeline)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errors.SearchError("creating search request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if runID := runctx.RunID(ctx); runID != "" {
		httpReq.Header.Set("X-Opaque-Id", runID)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.SearchError(fmt.Sprintf("searching index %s", req.Config.Index), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.SearchError(
			fmt.Sprintf("search on index %s failed with status %d: %s", req.Config.Index, resp.StatusCode, security.SanitizeForLog(string(bytes.TrimSpace(snippet)))), nil).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, errors.SearchError("decoding search response", err)
	}

	out := &Response{Hits: make([]Hit, 0, len(sr.Hits.Hits))}
	for _, h := range sr.Hits.Hits {
		hit := Hit{DocID: h.ID}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}
