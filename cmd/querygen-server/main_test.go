package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/internal/app"
	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/internal/testutil"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *testutil.MockLLM) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock := testutil.NewMockLLM()
	t.Cleanup(mock.Close)

	cfg, err := config.LoadWith(config.LoadOptions{Files: []string{}, DotEnv: []string{}, SkipFlags: true})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	cfg.Store.Backend = config.BackendMemory
	cfg.LLM.BaseURL = mock.URL()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.TrackRateLimit = false
	cfg.LLM.RequestsPerSecond = 0
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(newHandler(a, cfg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, mock
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, body := get(t, srv.URL+"/health")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body != "OK" {
		t.Errorf("Expected body 'OK', got %s", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, body := get(t, srv.URL+"/ready")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", status, body)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	payload := `{"products":[{"id":"p1","title":"Blue Cotton Shirt","material":"cotton","price":29.99}]}`

	for i, wantSource := range []string{`"source":"generated"`, `"source":"cache"`} {
		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("POST /generate: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d: %s", i, resp.StatusCode, body)
		}
		if !strings.Contains(string(body), wantSource) {
			t.Errorf("Request %d: expected %s in %s", i, wantSource, body)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Errorf("Request %d: missing X-Request-ID header", i)
		}
	}

	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Expected 1 LLM call, got %d", got)
	}
}

func TestGenerateEndpoint_BatchLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.Pipeline.MaxBatchSize = 1 })

	payload := `[{"id":"a","title":"Hat"},{"id":"b","title":"Scarf"}]`
	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /generate: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestGenerateEndpoint_BodyLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.Pipeline.MaxBodyBytes = 32 })

	payload := `[{"id":"a","title":"` + strings.Repeat("x", 64) + `"}]`
	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /generate: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	get(t, srv.URL+"/health")

	status, body := get(t, srv.URL+"/metrics")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "querygen_http_requests_total") {
		t.Error("Expected metrics output to contain querygen_http_requests_total")
	}
}
