package pagination

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Sternrassler/pairs-client/pkg/logging"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page loading.
var (
	pairsPagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_pages_loaded_total",
		Help: "Total number of pages appended to paging state",
	})

	pairsItemsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_items_loaded_total",
		Help: "Total number of items appended to paging state",
	})

	pairsLoadSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_load_skipped_total",
		Help: "Load requests skipped by a guard, by reason",
	}, []string{"reason"})

	pairsLoadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_load_failures_total",
		Help: "Total number of failed page loads",
	})
)

// progressEvery controls LoadAll progress logging.
const progressEvery = 10

// Fetcher fetches a single page. *client.Client implements it.
type Fetcher interface {
	FetchPairs(ctx context.Context, req pairs.Request) (*pairs.Response, error)
}

// Options are the per-call request parameters.
type Options struct {
	// Limit is the page size hint. Zero means 50; other values are sent
	// as given.
	Limit int
	// UserID whose pairs are listed (default "default")
	UserID string
}

// DefaultOptions returns Options{Limit: 50, UserID: "default"}.
func DefaultOptions() Options {
	return Options{
		Limit:  pairs.DefaultLimit,
		UserID: pairs.DefaultUserID,
	}
}

func (o Options) withDefaults() Options {
	o.Limit = pairs.NormalizeLimit(o.Limit)
	if o.UserID == "" {
		o.UserID = pairs.DefaultUserID
	}
	return o
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	Items      []pairs.Item
	Total      *int
	Cursor     string
	Loading    bool
	ReachedEnd bool
}

type observer struct {
	id int
	fn func(Snapshot)
}

// State accumulates pages of pairs for one consumer.
type State struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu      sync.Mutex
	items   []pairs.Item
	total   *int
	cursor  string
	loading bool

	obsMu     sync.Mutex
	observers []observer
	nextObsID int
}

// NewState creates an empty state that loads pages through fetcher.
func NewState(fetcher Fetcher) *State {
	return &State{
		fetcher: fetcher,
		logger:  logging.NewLogger("pagination"),
		items:   []pairs.Item{},
	}
}

// LoadFirst clears items, total and cursor, then loads the first page.
func (s *State) LoadFirst(ctx context.Context, opts Options) error {
	_, err := s.loadFirst(ctx, opts)
	return err
}

// LoadMore loads the next page and appends it. It is a no-op while another
// load is in flight or once ReachedEnd is true. On error the accumulated
// state is left untouched and the error is returned unchanged.
func (s *State) LoadMore(ctx context.Context, opts Options) error {
	_, err := s.loadMore(ctx, opts)
	return err
}

func (s *State) loadFirst(ctx context.Context, opts Options) (bool, error) {
	s.mu.Lock()
	s.items = []pairs.Item{}
	s.total = nil
	s.cursor = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return s.loadMore(ctx, opts)
}

// loadMore reports whether a request was actually sent.
func (s *State) loadMore(ctx context.Context, opts Options) (bool, error) {
	opts = opts.withDefaults()

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		pairsLoadSkippedTotal.WithLabelValues("loading").Inc()
		s.logger.Debug().Str("user_id", opts.UserID).Msg("Load skipped: already loading")
		return false, nil
	}
	if s.reachedEndLocked() {
		s.mu.Unlock()
		pairsLoadSkippedTotal.WithLabelValues("reached_end").Inc()
		s.logger.Debug().Str("user_id", opts.UserID).Msg("Load skipped: reached end")
		return false, nil
	}
	s.loading = true
	req := pairs.Request{
		Limit:  opts.Limit,
		UserID: opts.UserID,
		Cursor: s.cursor,
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	defer s.finishLoad()

	s.logger.Debug().
		Str("user_id", req.UserID).
		Int("limit", req.Limit).
		Str("cursor", req.Cursor).
		Msg("Loading page")

	resp, err := s.fetcher.FetchPairs(ctx, req)
	if err != nil {
		pairsLoadFailuresTotal.Inc()
		s.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("Page load failed")
		return true, err
	}

	if resp == nil {
		resp = &pairs.Response{}
	}
	items := pairs.NormalizeAll(resp.Items)

	s.mu.Lock()
	s.items = append(s.items, items...)
	if resp.Total != nil {
		total := *resp.Total
		s.total = &total
	}
	s.cursor = resp.Next()
	count := len(s.items)
	s.mu.Unlock()

	pairsPagesLoadedTotal.Inc()
	pairsItemsLoadedTotal.Add(float64(len(items)))

	event := s.logger.Debug().
		Str("user_id", req.UserID).
		Int("page_items", len(items)).
		Int("items", count).
		Bool("has_next", resp.Next() != "")
	if resp.Total != nil {
		event = event.Int("total", *resp.Total)
	}
	event.Msg("Page loaded")

	return true, nil
}

// finishLoad clears the loading flag and notifies observers.
func (s *State) finishLoad() {
	s.mu.Lock()
	s.loading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// LoadAll loads the first page and then follows cursors until the server
// reports no further page, ReachedEnd is true, ctx is done or maxPages
// pages were fetched (0 means no limit). It returns the number of pages
// fetched.
func (s *State) LoadAll(ctx context.Context, opts Options, maxPages int) (int, error) {
	start := time.Now()
	opts = opts.withDefaults()

	fetched, err := s.loadFirst(ctx, opts)
	if err != nil {
		return 0, err
	}
	if !fetched {
		return 0, nil
	}
	pages := 1

	for s.Cursor() != "" && !s.ReachedEnd() && (maxPages <= 0 || pages < maxPages) {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		fetched, err := s.loadMore(ctx, opts)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int("pages", pages).
				Int("items", s.Len()).
				Msg("Load stopped - returning partial results")
			return pages, err
		}
		if !fetched {
			break
		}
		pages++

		if pages%progressEvery == 0 {
			event := s.logger.Info().Int("pages", pages).Int("items", s.Len())
			if total := s.Total(); total != nil && *total > 0 {
				event = event.Int("total", *total).
					Float64("progress_pct", float64(s.Len())/float64(*total)*100)
			}
			event.Msg("Load progress")
		}
	}

	s.logger.Info().
		Str("user_id", opts.UserID).
		Int("pages", pages).
		Int("items", s.Len()).
		Dur("duration", time.Since(start)).
		Msg("Load complete")

	return pages, nil
}

// ApplyInteraction merges a user interaction into the matching items and
// reports whether any item changed.
func (s *State) ApplyInteraction(in pairs.Interaction) bool {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ID == in.PairID && in.Apply(&s.items[i]) {
			changed = true
		}
	}
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return changed
}

// ReachedEnd is true when the total is known and positive, no cursor is
// held, and at least total items were loaded.
func (s *State) ReachedEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachedEndLocked()
}

// total == 0 never counts as the end.
func (s *State) reachedEndLocked() bool {
	if s.total == nil {
		return false
	}
	return s.cursor == "" && len(s.items) >= *s.total && *s.total > 0
}

// Items returns a copy of the accumulated items.
func (s *State) Items() []pairs.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItems(s.items)
}

// Len returns the number of accumulated items.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Total returns the server-declared total, nil until known.
func (s *State) Total() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTotal(s.total)
}

// Cursor returns the continuation cursor, "" when none.
func (s *State) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Loading reports whether a fetch is in flight.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns a consistent copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Items:      copyItems(s.items),
		Total:      copyTotal(s.total),
		Cursor:     s.cursor,
		Loading:    s.loading,
		ReachedEnd: s.reachedEndLocked(),
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// Observers run synchronously, outside the state lock, in registration
// order. The returned function removes the observer.
func (s *State) Subscribe(fn func(Snapshot)) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *State) notify(snap Snapshot) {
	s.obsMu.Lock()
	observers := make([]observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
}

func copyItems(items []pairs.Item) []pairs.Item {
	out := make([]pairs.Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Rating != nil {
			rating := *out[i].Rating
			out[i].Rating = &rating
		}
		out[i].Left = append(json.RawMessage(nil), out[i].Left...)
		out[i].Right = append(json.RawMessage(nil), out[i].Right...)
	}
	return out
}

func copyTotal(total *int) *int {
	if total == nil {
		return nil
	}
	t := *total
	return &t
}
