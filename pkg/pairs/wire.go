package pairs

import (
	"errors"
	"fmt"
)

// Endpoint paths of the pairs service.
const (
	PathPairs        = "/pairs"
	PathInteractions = "/interactions"
)

// Request defaults and bounds. MaxLimit matches the server-side validator.
const (
	DefaultLimit  = 50
	DefaultUserID = "default"
	MaxLimit      = 200
)

// ErrInvalidInteraction is returned by Interaction.Validate.
var ErrInvalidInteraction = errors.New("invalid interaction")

// Request is the body of POST /pairs. Cursor is omitted when empty.
type Request struct {
	Limit  int    `json:"limit"`
	UserID string `json:"user_id"`
	Cursor string `json:"cursor,omitempty"`
}

// NormalizeLimit returns DefaultLimit for an unset (zero) limit. Any other
// value is sent as given; the endpoint rejects values outside 1..MaxLimit.
func NormalizeLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	return limit
}

// Response is the body of a successful POST /pairs.
type Response struct {
	Items      []Record `json:"items"`
	Total      *int     `json:"total,omitempty"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

// Next returns the continuation cursor, or "" when the response carries none.
func (r *Response) Next() string {
	if r == nil || r.NextCursor == nil {
		return ""
	}
	return *r.NextCursor
}

// Interaction is a user's feedback on a pair, sent to POST /interactions.
// Nil fields leave the stored value unchanged.
type Interaction struct {
	PairID  ID     `json:"pairId"`
	Rating  *int   `json:"rating,omitempty"`
	Seen    *bool  `json:"seen,omitempty"`
	Starred *bool  `json:"starred,omitempty"`
	UserID  string `json:"userId"`
}

// Validate checks the pair ID and the rating range (1..5).
func (i Interaction) Validate() error {
	if i.PairID == "" {
		return fmt.Errorf("%w: pair id is required", ErrInvalidInteraction)
	}
	if i.Rating != nil && (*i.Rating < 1 || *i.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5 (got %d)", ErrInvalidInteraction, *i.Rating)
	}
	return nil
}

// Apply merges the interaction into item and reports whether anything
// changed.
func (i Interaction) Apply(item *Item) bool {
	changed := false
	if i.Rating != nil && (item.Rating == nil || *item.Rating != float64(*i.Rating)) {
		rating := float64(*i.Rating)
		item.Rating = &rating
		changed = true
	}
	if i.Seen != nil && item.Seen != *i.Seen {
		item.Seen = *i.Seen
		changed = true
	}
	if i.Starred != nil && item.Starred != *i.Starred {
		item.Starred = *i.Starred
		changed = true
	}
	return changed
}
