package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// KeyPrefix namespaces all cache keys in Redis.
const KeyPrefix = "pairs-cache"

// CacheKey identifies one page of one endpoint.
type CacheKey struct {
	// Endpoint is the endpoint path (e.g. "/pairs")
	Endpoint string

	// UserID whose page this is
	UserID string

	// Limit is the requested page size
	Limit int

	// Cursor is the continuation cursor, empty for the first page
	Cursor string
}

// String generates a deterministic cache key string.
// Format: pairs-cache:endpoint:user=<id>:limit=<n>[:cursor=<c>]
//
// The user ID is query-escaped, so it never carries ':' or Redis glob
// metacharacters into the key.
//
// Example:
//
//	pairs-cache:pairs:user=default:limit=50:cursor=eyJvZmZzZXQiOjUwfQ==
func (k CacheKey) String() string {
	parts := append(k.userPrefix(), fmt.Sprintf("limit=%d", k.Limit))

	if k.Cursor != "" {
		parts = append(parts, fmt.Sprintf("cursor=%s", k.Cursor))
	}

	return strings.Join(parts, ":")
}

func (k CacheKey) userPrefix() []string {
	parts := []string{KeyPrefix}
	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}
	return append(parts, "user="+url.QueryEscape(k.UserID))
}

// userPattern is a SCAN pattern matching every page of the key's endpoint
// and user, whatever the limit and cursor.
func (k CacheKey) userPattern() string {
	return strings.Join(k.userPrefix(), ":") + ":limit=*"
}
