// Package pairs defines the pair item model and the wire contract of the
// paged pairs endpoint.
package pairs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque pair identifier. The endpoint may send it as a JSON
// string or a JSON number; both decode to the same text.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode pair id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode pair id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Flag is a boolean that decodes any JSON value by truthiness:
// true, non-zero numbers and non-empty strings are true.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode flag: %w", err)
		}
		*f = s != ""
	case data[0] == '[' || data[0] == '{':
		*f = true
	default:
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("decode flag: %w", err)
		}
		*f = v != 0
	}
	return nil
}

// Record is a pair as the endpoint returns it. Optional fields stay nil
// when absent. Left and Right are arbitrary JSON values kept verbatim.
type Record struct {
	ID      ID              `json:"id"`
	Left    json.RawMessage `json:"left,omitempty"`
	Right   json.RawMessage `json:"right,omitempty"`
	Rating  *float64        `json:"rating,omitempty"`
	Seen    *Flag           `json:"seen,omitempty"`
	Starred *Flag           `json:"starred,omitempty"`
}

// Item is a normalized pair.
type Item struct {
	ID      ID              `json:"id"`
	Left    json.RawMessage `json:"left"`
	Right   json.RawMessage `json:"right"`
	Rating  *float64        `json:"rating"`
	Seen    bool            `json:"seen"`
	Starred bool            `json:"starred"`
}

// DecodeLeft unmarshals the left side into v.
func (it Item) DecodeLeft(v any) error {
	return decodeSide("left", it.Left, v)
}

// DecodeRight unmarshals the right side into v.
func (it Item) DecodeRight(v any) error {
	return decodeSide("right", it.Right, v)
}

func decodeSide(name string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Normalize converts a raw record into an Item. A missing rating stays nil,
// missing flags become false.
func Normalize(r Record) Item {
	item := Item{
		ID:    r.ID,
		Left:  cloneRaw(r.Left),
		Right: cloneRaw(r.Right),
	}
	if r.Rating != nil {
		rating := *r.Rating
		item.Rating = &rating
	}
	if r.Seen != nil {
		item.Seen = bool(*r.Seen)
	}
	if r.Starred != nil {
		item.Starred = bool(*r.Starred)
	}
	return item
}

// NormalizeAll normalizes records preserving their order.
func NormalizeAll(records []Record) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, Normalize(r))
	}
	return items
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
