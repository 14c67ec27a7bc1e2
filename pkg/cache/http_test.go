package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func newResponse(header http.Header, body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestResponseToEntry(t *testing.T) {
	resp := newResponse(http.Header{"Content-Type": []string{"application/json"}}, `{"items":[]}`)

	entry, err := ResponseToEntry(resp, time.Minute)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}
	if string(entry.Data) != `{"items":[]}` {
		t.Errorf("Data = %s", entry.Data)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if ttl := entry.TTL(); ttl <= 50*time.Second || ttl > time.Minute {
		t.Errorf("TTL() = %v, want ~1m (default)", ttl)
	}

	// Body must still be readable by the caller.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(body) != `{"items":[]}` {
		t.Errorf("restored body = %s", body)
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil, 0); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		headers http.Header
		want    time.Duration
	}{
		{
			name:    "no headers uses default",
			headers: http.Header{},
			want:    DefaultTTL,
		},
		{
			name:    "max-age",
			headers: http.Header{"Cache-Control": []string{"public, max-age=120"}},
			want:    120 * time.Second,
		},
		{
			name:    "no-store",
			headers: http.Header{"Cache-Control": []string{"no-store"}},
			want:    0,
		},
		{
			name:    "max-age zero",
			headers: http.Header{"Cache-Control": []string{"max-age=0"}},
			want:    0,
		},
		{
			name:    "expires header",
			headers: http.Header{"Expires": []string{now.Add(time.Hour).UTC().Format(http.TimeFormat)}},
			want:    time.Hour,
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{now.Add(-time.Hour).UTC().Format(http.TimeFormat)}},
			want:    0,
		},
		{
			name:    "invalid expires uses default",
			headers: http.Header{"Expires": []string{"not a date"}},
			want:    DefaultTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExpires(tt.headers, now, DefaultTTL).Sub(now)
			// http.TimeFormat has second precision.
			if diff := got - tt.want; diff < -time.Second || diff > time.Second {
				t.Errorf("parseExpires() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	entry := &CacheEntry{
		Data:       []byte(`{"items":[]}`),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	}

	resp := EntryToResponse(entry)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Error("missing X-Cache header")
	}
	if entry.Headers.Get("X-Cache") != "" {
		t.Error("entry headers were mutated")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"items":[]}` {
		t.Errorf("body = %s", body)
	}
}
