package searchexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/model"
	runctx "github.com/ricesearch/search-relevance/internal/pkg/context"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/qdrant"
)

var matchConfig = model.SearchConfiguration{
	ID:            "c1",
	Index:         "products",
	QueryTemplate: `{"query":{"match":{"title":"%SearchText%"}}}`,
}

func TestRenderTemplate(t *testing.T) {
	got, err := RenderTemplate(matchConfig.QueryTemplate, `12" "tv" \ stand`)
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(got), &body); err != nil {
		t.Fatalf("rendered template is not valid JSON: %v (%s)", err, got)
	}
	title := body["query"].(map[string]any)["match"].(map[string]any)["title"]
	if title != `12" "tv" \ stand` {
		t.Errorf("title = %q", title)
	}

	if _, err := RenderTemplate(`{"query":{"match_all":{}}}`, "tv"); err == nil {
		t.Error("template without placeholder should fail")
	}
}

func TestBuildBody(t *testing.T) {
	body, err := BuildBody(Request{
		Config:    matchConfig,
		QueryText: "tv",
		Size:      5,
		Pipeline:  &HybridPipeline{Normalization: NormalizationL2, Combination: CombinationHarmonicMean, Weights: []float64{0.3, 0.7}},
	})
	if err != nil {
		t.Fatalf("BuildBody() error = %v", err)
	}
	if body["size"] != 5 || body["_source"] != false {
		t.Errorf("size/_source = %v/%v", body["size"], body["_source"])
	}
	if _, ok := body["search_pipeline"]; !ok {
		t.Error("hybrid pipeline should be inlined")
	}

	bad := matchConfig
	bad.QueryTemplate = `not json %SearchText%`
	if _, err := BuildBody(Request{Config: bad, QueryText: "tv"}); !errors.IsConfiguration(err) {
		t.Errorf("BuildBody() error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestHTTPExecutorSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/_search" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/products/_search")
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.URL.Query().Get("search_pipeline"); got != "boost" {
			t.Errorf("search_pipeline = %q, want boost", got)
		}
		if got := r.Header.Get("X-Opaque-Id"); got != "run-7" {
			t.Errorf("X-Opaque-Id = %q, want run-7", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if body["size"] != float64(3) {
			t.Errorf("size = %v, want 3", body["size"])
		}

		w.Write([]byte(`{"hits":{"hits":[{"_id":"d1","_score":2.5},{"_id":"d2","_score":1.0},{"_id":"d3","_score":null}]}}`))
	}))
	defer server.Close()

	cfg := matchConfig
	cfg.SearchPipeline = "boost"

	exec := NewHTTPExecutor(HTTPConfig{BaseURL: server.URL})
	ctx := runctx.WithRunID(context.Background(), "run-7")
	resp, err := exec.Search(ctx, Request{Config: cfg, QueryText: "tv", Size: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	ids := resp.DocIDs()
	if len(ids) != 3 || ids[0] != "d1" || ids[2] != "d3" {
		t.Errorf("DocIDs() = %v", ids)
	}
	if resp.Hits[0].Score != 2.5 || resp.Hits[2].Score != 0 {
		t.Errorf("scores = %v", resp.Hits)
	}
}

func TestHTTPExecutorPipelineOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, temporary pipeline should replace the named one", r.URL.RawQuery)
		}
		w.Write([]byte(`{"hits":{"hits":[]}}`))
	}))
	defer server.Close()

	cfg := matchConfig
	cfg.SearchPipeline = "boost"

	exec := NewHTTPExecutor(HTTPConfig{BaseURL: server.URL})
	_, err := exec.Search(context.Background(), Request{
		Config: cfg, QueryText: "tv", Size: 3,
		Pipeline: &HybridPipeline{Normalization: NormalizationMinMax, Combination: CombinationArithmeticMean, Weights: []float64{0.5, 0.5}},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
}

func TestHTTPExecutorErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"index_not_found_exception"}`))
	}))
	defer server.Close()

	exec := NewHTTPExecutor(HTTPConfig{BaseURL: server.URL})
	_, err := exec.Search(context.Background(), Request{Config: matchConfig, QueryText: "tv", Size: 3})
	if errors.Code(err) != errors.CodeSearch {
		t.Fatalf("Search() error = %v, want SEARCH_ERROR", err)
	}
}

type fakeTextSearcher struct {
	got     qdrant.TextQuery
	results []qdrant.SearchResult
	err     error
}

func (f *fakeTextSearcher) TextSearch(ctx context.Context, q qdrant.TextQuery) ([]qdrant.SearchResult, error) {
	f.got = q
	return f.results, f.err
}

func TestQdrantExecutor(t *testing.T) {
	fake := &fakeTextSearcher{results: []qdrant.SearchResult{{ID: "a", Score: 9}, {ID: "b", Score: 3}}}
	exec := NewQdrantExecutor(fake)

	cfg := model.SearchConfiguration{
		ID:            "q1",
		Index:         "products",
		QueryTemplate: `{"match":{"title":"%SearchText%"},"order_by":"popularity","id_field":"sku"}`,
	}
	resp, err := exec.Search(context.Background(), Request{Config: cfg, QueryText: "red shoes", Size: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if fake.got.Match["title"] != "red shoes" || fake.got.OrderBy != "popularity" || fake.got.Limit != 10 {
		t.Errorf("TextQuery = %+v", fake.got)
	}
	if ids := resp.DocIDs(); len(ids) != 2 || ids[0] != "a" {
		t.Errorf("DocIDs() = %v", ids)
	}

	_, err = exec.Search(context.Background(), Request{Config: cfg, QueryText: "x", Size: 1, Pipeline: &HybridPipeline{}})
	if !errors.IsConfiguration(err) {
		t.Errorf("pipeline override error = %v, want CONFIGURATION_ERROR", err)
	}
}

type countingExecutor struct {
	calls atomic.Int32
	err   error
}

func (c *countingExecutor) Search(ctx context.Context, req Request) (*Response, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Response{Hits: []Hit{{DocID: "d1"}}}, nil
}

func TestBreakerExecutorTrips(t *testing.T) {
	next := &countingExecutor{err: errors.SearchError("engine down", nil)}
	b := NewBreakerExecutor(next, BreakerConfig{Name: "test", OpenPeriod: time.Minute, ReadyToTripRatio: 0.5}, logger.Discard())

	for i := 0; i < 3; i++ {
		if _, err := b.Search(context.Background(), Request{}); errors.Code(err) != errors.CodeSearch {
			t.Fatalf("call %d error = %v, want SEARCH_ERROR", i, err)
		}
	}

	_, err := b.Search(context.Background(), Request{})
	if errors.Code(err) != errors.CodeUnavailable {
		t.Errorf("open breaker error = %v, want SERVICE_UNAVAILABLE", err)
	}
	if next.calls.Load() != 3 {
		t.Errorf("calls = %d, open breaker should not reach the engine", next.calls.Load())
	}
	if b.State() != "open" {
		t.Errorf("State() = %s, want open", b.State())
	}
}

func TestBreakerExecutorIgnoresConfigurationErrors(t *testing.T) {
	next := &countingExecutor{err: errors.ConfigurationError("bad template")}
	b := NewBreakerExecutor(next, BreakerConfig{Name: "test", OpenPeriod: time.Minute, ReadyToTripRatio: 0.5}, logger.Discard())

	for i := 0; i < 5; i++ {
		if _, err := b.Search(context.Background(), Request{}); !errors.IsConfiguration(err) {
			t.Fatalf("call %d error = %v, want CONFIGURATION_ERROR", i, err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

func TestLimitedExecutor(t *testing.T) {
	next := &countingExecutor{}
	l := NewLimitedExecutor(next, 0.001, 1)
	req := Request{Config: model.SearchConfiguration{Index: "products"}}

	if _, err := l.Search(context.Background(), req); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Search(ctx, req)
	if errors.Code(err) != errors.CodeTimeout {
		t.Errorf("throttled Search() error = %v, want TIMEOUT", err)
	}

	other := Request{Config: model.SearchConfiguration{Index: "articles"}}
	if _, err := l.Search(context.Background(), other); err != nil {
		t.Errorf("other index should have its own bucket: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	exec, closeFn, err := New(config.SearchConfig{Engine: "http", URL: "http://localhost:9200", RateLimit: 10, Burst: 5,
		BreakerEnabled: true, BreakerRatio: 0.5, BreakerOpenPeriod: time.Second}, config.QdrantConfig{}, logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closeFn()
	if _, ok := exec.(*BreakerExecutor); !ok {
		t.Errorf("New() = %T, want breaker on the outside", exec)
	}

	if _, _, err := New(config.SearchConfig{Engine: "solr"}, config.QdrantConfig{}, logger.Discard()); err == nil {
		t.Error("unknown engine should fail")
	}
}
