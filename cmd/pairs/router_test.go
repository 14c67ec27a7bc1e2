package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sternrassler/pairs-client/internal/testutil"
	"github.com/Sternrassler/pairs-client/pkg/client"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/Sternrassler/pairs-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

func newTestRouter(t *testing.T, upstream string) http.Handler {
	t.Helper()

	cfg := client.DefaultConfig(upstream, "pairs-proxy-test/1.0")
	cfg.RateLimit = 0
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return newRouter(routerDeps{Service: c, Logger: zerolog.Nop()})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	h := newRouter(routerDeps{Logger: zerolog.Nop()})

	w := doRequest(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got %q", w.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	mock := testutil.NewMockPairs()
	defer mock.Close()
	h := newTestRouter(t, mock.URL())

	w := doRequest(t, h, http.MethodGet, "/ready", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	mock.FailNext(1, testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})
	w = doRequest(t, h, http.MethodGet, "/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockPairs(testutil.NumberedPairs(1)...)
	defer mock.Close()
	h := newTestRouter(t, mock.URL())

	// Produce at least one request sample.
	doRequest(t, h, http.MethodPost, "/pairs", `{"limit":1,"user_id":"u1"}`)

	w := doRequest(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pairs_requests_total") {
		t.Error("metrics output should contain pairs_requests_total")
	}
}

func TestPairsEndpoint(t *testing.T) {
	mock := testutil.NewMockPairs(testutil.NumberedPairs(3)...)
	defer mock.Close()
	h := newTestRouter(t, mock.URL())

	w := doRequest(t, h, http.MethodPost, "/pairs", `{"limit":2,"user_id":"u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp pairs.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Total == nil || *resp.Total != 3 {
		t.Errorf("unexpected page: %+v", resp)
	}
	if resp.Next() != testutil.EncodeCursor(2) {
		t.Errorf("nextCursor = %q", resp.Next())
	}

	// Follow the cursor through the proxy.
	body := `{"limit":2,"user_id":"u1","cursor":"` + resp.Next() + `"}`
	w = doRequest(t, h, http.MethodPost, "/pairs", body)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Next() != "" {
		t.Errorf("unexpected last page: %+v", resp)
	}
}

func TestPairsEndpoint_RelaysUpstreamBody(t *testing.T) {
	mock := testutil.NewMockPairs(testutil.MockPair{
		ID:    7,
		Left:  map[string]any{"url": "a.jpg"},
		Right: "b",
	})
	defer mock.Close()
	h := newTestRouter(t, mock.URL())

	w := doRequest(t, h, http.MethodPost, "/pairs", `{"limit":5,"user_id":"u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	want := `{"items":[{"id":7,"left":{"url":"a.jpg"},"right":"b"}],"nextCursor":null,"total":1}` + "\n"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestPairsEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		failure    *testutil.MockResponse
		wantStatus int
	}{
		{
			name:       "invalid body",
			body:       `{"limit":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "upstream server error",
			body:       `{}`,
			failure:    &testutil.MockResponse{StatusCode: http.StatusInternalServerError},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "upstream client error passes through",
			body:       `{}`,
			failure:    &testutil.MockResponse{StatusCode: http.StatusNotFound},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockPairs(testutil.NumberedPairs(1)...)
			defer mock.Close()
			if tt.failure != nil {
				mock.FailNext(1, *tt.failure)
			}
			h := newTestRouter(t, mock.URL())

			w := doRequest(t, h, http.MethodPost, "/pairs", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
		})
	}
}

func TestInteractionsEndpoint(t *testing.T) {
	mock := testutil.NewMockPairs(testutil.NumberedPairs(2)...)
	defer mock.Close()
	h := newTestRouter(t, mock.URL())

	w := doRequest(t, h, http.MethodPost, "/interactions", `{"pairId":"2","starred":true,"userId":"u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := mock.GetInteractions(); len(got) != 1 || got[0]["starred"] != true {
		t.Errorf("interactions = %v", got)
	}

	w = doRequest(t, h, http.MethodPost, "/interactions", `{"pairId":"2","rating":0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid rating: status = %d, want 400", w.Code)
	}
}

// stubService returns a fixed error for every call.
type stubService struct{ err error }

func (s stubService) FetchPage(context.Context, pairs.Request) (*http.Response, error) {
	return nil, s.err
}
func (s stubService) RecordInteraction(context.Context, pairs.Interaction) error { return s.err }
func (s stubService) Ping(context.Context) error { return s.err }

func TestWriteUpstreamError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "rate limited", err: ratelimit.ErrRateLimited, wantStatus: http.StatusTooManyRequests},
		{name: "circuit open", err: gobreaker.ErrOpenState, wantStatus: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout},
		{name: "network", err: errors.New("connection refused"), wantStatus: http.StatusBadGateway},
		{name: "upstream 429", err: &client.FetchError{StatusCode: 429, Endpoint: "/pairs"}, wantStatus: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(routerDeps{Service: stubService{err: tt.err}, Logger: zerolog.Nop()})

			w := doRequest(t, h, http.MethodPost, "/pairs", `{}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
