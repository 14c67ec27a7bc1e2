//go:build integration

package client

import (
	"context"
	"io"
	"testing"

	"github.com/Sternrassler/pairs-client/internal/testutil"
	"github.com/Sternrassler/pairs-client/pkg/cache"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_PageCache(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockPairs(testutil.NumberedPairs(3)...)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Redis = redisClient
	})
	ctx := context.Background()
	req := pairs.Request{Limit: 2, UserID: "u1"}

	first, err := c.FetchPairs(ctx, req)
	if err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}
	second, err := c.FetchPairs(ctx, req)
	if err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (second page read should hit the cache)", mock.GetRequestCount())
	}
	if len(second.Items) != len(first.Items) || second.Next() != first.Next() {
		t.Errorf("cached page differs: %+v vs %+v", second, first)
	}

	entry, err := c.GetCache().Get(ctx, cache.CacheKey{
		Endpoint: pairs.PathPairs,
		UserID:   "u1",
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if entry.StatusCode != 200 {
		t.Errorf("cached status = %d, want 200", entry.StatusCode)
	}
}

func TestIntegration_FetchPageCacheHeader(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockPairs(testutil.NumberedPairs(1)...)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Redis = redisClient
	})
	ctx := context.Background()

	var bodies []string
	for _, want := range []string{"MISS", "HIT"} {
		resp, err := c.FetchPage(ctx, pairs.Request{UserID: "u1"})
		if err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if got := resp.Header.Get("X-Cache"); got != want {
			t.Errorf("X-Cache = %q, want %q", got, want)
		}
		bodies = append(bodies, string(body))
	}

	if bodies[0] != bodies[1] {
		t.Errorf("cached body %q differs from live body %q", bodies[1], bodies[0])
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestIntegration_InteractionWithGlobUserID(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockPairs(testutil.NumberedPairs(2)...)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Redis = redisClient
	})
	ctx := context.Background()

	if _, err := c.FetchPairs(ctx, pairs.Request{UserID: "alice"}); err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}

	seen := true
	if err := c.RecordInteraction(ctx, pairs.Interaction{PairID: "1", Seen: &seen, UserID: "*"}); err != nil {
		t.Fatalf("RecordInteraction() error = %v", err)
	}

	mock.Reset()
	if _, err := c.FetchPairs(ctx, pairs.Request{UserID: "alice"}); err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want alice's page still cached", mock.GetRequestCount())
	}
}

func TestIntegration_InteractionInvalidatesCache(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockPairs(testutil.NumberedPairs(2)...)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Redis = redisClient
	})
	ctx := context.Background()
	req := pairs.Request{UserID: "u1"}

	if _, err := c.FetchPairs(ctx, req); err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}
	// Another user's pages survive the invalidation.
	if _, err := c.FetchPairs(ctx, pairs.Request{UserID: "u2"}); err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}

	starred := true
	if err := c.RecordInteraction(ctx, pairs.Interaction{PairID: "2", Starred: &starred, UserID: "u1"}); err != nil {
		t.Fatalf("RecordInteraction() error = %v", err)
	}

	mock.Reset()
	resp, err := c.FetchPairs(ctx, req)
	if err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 after invalidation", mock.GetRequestCount())
	}
	if item := pairs.Normalize(resp.Items[1]); !item.Starred {
		t.Error("refetched page should carry the starred flag")
	}

	if _, err := c.FetchPairs(ctx, pairs.Request{UserID: "u2"}); err != nil {
		t.Fatalf("FetchPairs() error = %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want u2 page still cached", mock.GetRequestCount())
	}
}
