// Package pagination holds the accumulated state of a cursor-paginated
// pairs listing.
//
// A State is owned by one consumer (a view, a CLI run). LoadFirst resets it
// and fetches the first page; LoadMore appends the next page using the
// cursor the server returned. At most one fetch is in flight per State:
// concurrent LoadMore calls while loading are no-ops.
//
// Example usage:
//
//	state := pagination.NewState(pairsClient)
//	if err := state.LoadFirst(ctx, pagination.DefaultOptions()); err != nil {
//		return err
//	}
//	for !state.ReachedEnd() && state.Cursor() != "" {
//		if err := state.LoadMore(ctx, pagination.DefaultOptions()); err != nil {
//			return err
//		}
//	}
//
// A missing cursor after a successful fetch is the authoritative signal that
// no further pages exist; ReachedEnd additionally compares the item count
// with the server-declared total and is meant as a cheap UI gate.
package pagination
