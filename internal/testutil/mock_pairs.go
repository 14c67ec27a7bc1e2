// Package testutil provides testing utilities for the pairs client.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPair is one pair served by MockPairs. Left and Right may hold any
// JSON-encodable value.
type MockPair struct {
	ID      any      `json:"id"`
	Left    any      `json:"left,omitempty"`
	Right   any      `json:"right,omitempty"`
	Rating  *float64 `json:"rating,omitempty"`
	Seen    *bool    `json:"seen,omitempty"`
	Starred *bool    `json:"starred,omitempty"`
}

// MockPairs is an in-memory pairs service. POST /pairs pages through the
// dataset with opaque offset cursors, POST /interactions records feedback
// and GET / answers a liveness check.
type MockPairs struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	pairs     []MockPair
	hideTotal bool
	failures  []MockResponse

	// Tracking
	RequestCount      int
	PairsRequests     []PairsRequestBody
	Interactions      []map[string]any
	LastRequestHeader http.Header
}

// PairsRequestBody is the decoded body of a POST /pairs request.
type PairsRequestBody struct {
	Limit  int    `json:"limit"`
	UserID string `json:"user_id"`
	Cursor string `json:"cursor,omitempty"`
}

type mockCursor struct {
	Offset int `json:"offset"`
}

// NewMockPairs starts a server serving the given dataset.
func NewMockPairs(pairs ...MockPair) *MockPairs {
	mock := &MockPairs{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pairs:    pairs,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		var failure *MockResponse
		if len(mock.failures) > 0 {
			f := mock.failures[0]
			mock.failures = mock.failures[1:]
			failure = &f
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/pairs" && r.Method == http.MethodPost:
			mock.servePairs(w, r)
		case r.URL.Path == "/interactions" && r.Method == http.MethodPost:
			mock.serveInteraction(w, r)
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// NumberedPairs builds n pairs with numeric IDs 1..n.
func NumberedPairs(n int) []MockPair {
	out := make([]MockPair, n)
	for i := range out {
		out[i] = MockPair{
			ID:    i + 1,
			Left:  fmt.Sprintf("left-%d", i+1),
			Right: fmt.Sprintf("right-%d", i+1),
		}
	}
	return out
}

// URL returns the mock server URL.
func (m *MockPairs) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPairs) Close() {
	m.server.Close()
}

// Reset clears all tracking.
func (m *MockPairs) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PairsRequests = nil
	m.Interactions = nil
	m.LastRequestHeader = nil
}

// HideTotal makes /pairs omit the total field.
func (m *MockPairs) HideTotal(hide bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hideTotal = hide
}

// FailNext answers the next n requests with resp, whatever their path.
func (m *MockPairs) FailNext(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, resp)
	}
}

// SetHandler overrides the handler for a path.
func (m *MockPairs) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockPairs) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPairs) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPairsRequests returns the decoded /pairs request bodies in order.
func (m *MockPairs) GetPairsRequests() []PairsRequestBody {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PairsRequestBody(nil), m.PairsRequests...)
}

// GetInteractions returns the decoded /interactions bodies in order.
func (m *MockPairs) GetInteractions() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]map[string]any(nil), m.Interactions...)
}

// GetLastHeader returns the headers of the most recent request.
func (m *MockPairs) GetLastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// EncodeCursor returns the cursor the mock issues for offset.
func EncodeCursor(offset int) string {
	data, _ := json.Marshal(mockCursor{Offset: offset})
	return base64.URLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string) (int, error) {
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	var c mockCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, err
	}
	if c.Offset < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	return c.Offset, nil
}

func (m *MockPairs) servePairs(w http.ResponseWriter, r *http.Request) {
	var body PairsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"detail":"invalid body"}`, http.StatusUnprocessableEntity)
		return
	}

	m.mu.Lock()
	m.PairsRequests = append(m.PairsRequests, body)
	m.mu.Unlock()

	if body.Limit < 1 || body.Limit > 200 {
		http.Error(w, `{"detail":"limit out of range"}`, http.StatusUnprocessableEntity)
		return
	}

	offset := 0
	if body.Cursor != "" {
		var err error
		if offset, err = decodeCursor(body.Cursor); err != nil {
			http.Error(w, `{"detail":"invalid cursor"}`, http.StatusBadRequest)
			return
		}
	}

	m.mu.Lock()
	total := len(m.pairs)
	end := offset + body.Limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	page := append([]MockPair{}, m.pairs[offset:end]...)
	hideTotal := m.hideTotal
	m.mu.Unlock()

	resp := map[string]any{"items": page}
	if !hideTotal {
		resp["total"] = total
	}
	if end < total {
		resp["nextCursor"] = EncodeCursor(end)
	} else {
		resp["nextCursor"] = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	json.NewEncoder(w).Encode(resp)
}

func (m *MockPairs) serveInteraction(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"detail":"invalid body"}`, http.StatusUnprocessableEntity)
		return
	}

	m.mu.Lock()
	m.Interactions = append(m.Interactions, body)
	for i := range m.pairs {
		if fmt.Sprint(m.pairs[i].ID) != fmt.Sprint(body["pairId"]) {
			continue
		}
		if v, ok := body["rating"].(float64); ok {
			m.pairs[i].Rating = &v
		}
		if v, ok := body["seen"].(bool); ok {
			m.pairs[i].Seen = &v
		}
		if v, ok := body["starred"].(bool); ok {
			m.pairs[i].Starred = &v
		}
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  strconv.Itoa(int(retryAfter.Seconds())),
		},
	}
}

// NewBadRequestResponse creates a 400 response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"detail":"Bad request"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
