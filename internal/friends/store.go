// Package friends keeps the incrementally loaded, deduplicated friends list
// for one subject and filter.
package friends

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/metrics"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/notify"
)

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 12

// Phase is the coarse lifecycle position of a Store.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseLoading   Phase = "LOADING"
	PhaseLoaded    Phase = "LOADED"
	PhaseExhausted Phase = "EXHAUSTED"
)

// Client is the subset of the relationship service a Store calls.
type Client interface {
	ListFriends(ctx context.Context, subjectID *string, filter models.Filter, page, size int) (models.Page[models.FriendEntry], error)
	Unfriend(ctx context.Context, friendID string) error
}

// CountMirror receives friend count deltas.
type CountMirror interface {
	Adjust(ctx context.Context, delta int) error
}

// Options configures a Store.
type Options struct {
	// SubjectID is nil for the viewer's own list.
	SubjectID *string
	Filter    models.Filter
	PageSize  int

	Client   Client
	Enricher *Enricher
	Counts   CountMirror
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
}

// State is a point-in-time copy of a Store's pagination state.
type State struct {
	Items     []models.FriendEntry
	Page      int
	HasMore   bool
	IsLoading bool
	Filter    models.Filter
}

// Store owns the friends list for a (subject, filter) pair.
type Store struct {
	subjectID *string
	pageSize  int
	client    Client
	enricher  *Enricher
	counts    CountMirror
	notifier  notify.Notifier
	metrics   *metrics.Metrics

	mu         sync.Mutex
	items      []models.FriendEntry
	index      map[string]int
	page       int
	hasMore    bool
	isLoading  bool
	started    bool
	fetched    bool
	filter     models.Filter
	generation uint64
}

// NewStore returns an idle Store with no items.
func NewStore(opts Options) *Store {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	var subject *string
	if opts.SubjectID != nil {
		id := *opts.SubjectID
		subject = &id
	}
	return &Store{
		subjectID: subject,
		pageSize:  size,
		client:    opts.Client,
		enricher:  opts.Enricher,
		counts:    opts.Counts,
		notifier:  notifier,
		metrics:   opts.Metrics,
		index:     make(map[string]int),
		hasMore:   true,
		filter:    opts.Filter,
	}
}

// SubjectID returns the subject of the list, or nil for the viewer's own.
func (s *Store) SubjectID() *string {
	if s.subjectID == nil {
		return nil
	}
	id := *s.subjectID
	return &id
}

// Load fetches page 0 for the current filter. It does nothing once the store
// has started loading; use SetFilter to start over.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	gen, filter := s.resetLocked()
	s.mu.Unlock()

	return s.fetch(ctx, "friends.load", gen, filter, 0)
}

// SetFilter merges f into the current filter, discards every loaded item and
// fetches page 0 again. Responses to fetches started before the reset are
// dropped when they arrive.
func (s *Store) SetFilter(ctx context.Context, f models.Filter) error {
	s.mu.Lock()
	s.filter = s.filter.Merge(f)
	gen, filter := s.resetLocked()
	s.mu.Unlock()

	return s.fetch(ctx, "friends.set_filter", gen, filter, 0)
}

// LoadMore fetches the next page. It is a no-op while a fetch is in flight or
// after the list is exhausted.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		gen, filter := s.resetLocked()
		s.mu.Unlock()
		return s.fetch(ctx, "friends.load", gen, filter, 0)
	}
	if s.isLoading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.isLoading = true
	gen, filter, next := s.generation, s.filter, s.page+1
	if !s.fetched {
		next = 0
	}
	s.mu.Unlock()

	return s.fetch(ctx, "friends.load_more", gen, filter, next)
}

// resetLocked clears the list and marks a page-0 fetch as in flight.
func (s *Store) resetLocked() (uint64, models.Filter) {
	s.generation++
	s.items = nil
	s.index = make(map[string]int)
	s.page = 0
	s.hasMore = true
	s.isLoading = true
	s.started = true
	s.fetched = false
	return s.generation, s.filter
}

func (s *Store) fetch(ctx context.Context, op string, gen uint64, filter models.Filter, page int) (err error) {
	ctx, span := logging.StartSpan(ctx, op, slog.Int("page", page), slog.String("name", filter.Name))
	defer func() { span.End(err) }()

	if s.client == nil {
		err = errors.New("friends store has no client")
		s.finishFailed(gen)
		return err
	}

	result, err := s.client.ListFriends(ctx, s.subjectID, filter, page, s.pageSize)
	if err == nil && s.enricher != nil {
		result.Content = s.enricher.Apply(ctx, result.Content)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.StaleDiscarded()
		logging.FromContext(ctx).Debug("discarded stale friends page", slog.Int("page", page))
		return nil
	}
	if err != nil {
		s.isLoading = false
		s.mu.Unlock()
		s.notifier.Notify(ctx, notify.Error("Could not load friends", err))
		return err
	}

	s.page = page
	s.fetched = true
	for _, entry := range result.Content {
		s.appendLocked(entry)
	}
	exhausted := result.Received() < s.pageSize || (result.Last != nil && *result.Last)
	if exhausted {
		s.hasMore = false
	}
	s.isLoading = false
	s.mu.Unlock()
	return nil
}

func (s *Store) finishFailed(gen uint64) {
	s.mu.Lock()
	if gen == s.generation {
		s.isLoading = false
	}
	s.mu.Unlock()
}

func (s *Store) appendLocked(entry models.FriendEntry) bool {
	if entry.ID == "" {
		return false
	}
	if _, exists := s.index[entry.ID]; exists {
		return false
	}
	s.index[entry.ID] = len(s.items)
	s.items = append(s.items, entry)
	return true
}

func (s *Store) removeLocked(id string) bool {
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:pos:pos], s.items[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].ID] = i
	}
	return true
}

// Unfriend asks the service to end the friendship and, once it confirms,
// removes the entry and decrements the friend count. On failure the entry is
// kept and the error is surfaced.
func (s *Store) Unfriend(ctx context.Context, friendID string) (err error) {
	ctx, span := logging.StartSpan(ctx, "friends.unfriend", slog.String("friend_id", friendID))
	defer func() { span.End(err) }()

	if s.client == nil {
		return errors.New("friends store has no client")
	}
	if err = s.client.Unfriend(ctx, friendID); err != nil {
		s.notifier.Notify(ctx, notify.Error("Could not remove friend", err))
		return err
	}

	s.Remove(friendID)
	if s.counts != nil {
		if adjErr := s.counts.Adjust(ctx, -1); adjErr != nil {
			logging.FromContext(ctx).Warn("friend count not persisted", slog.String("error", adjErr.Error()))
		}
	}
	return nil
}

// Append adds entry at the end of the list unless its id is already present.
func (s *Store) Append(entry models.FriendEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(entry)
}

// Remove drops the entry with id, reporting whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// SetRelationship rewrites the relationship fields of the entry with id.
func (s *Store) SetRelationship(id string, status models.RelationshipStatus, receiver *bool, requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return false
	}
	entry := &s.items[pos]
	entry.RelationshipStatus = status
	entry.IsRequestReceiver = nil
	if receiver != nil {
		entry.IsRequestReceiver = models.BoolPtr(*receiver)
	}
	entry.RequestID = requestID
	return true
}

// Contains reports whether an entry with id is loaded.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Filter returns the current filter.
func (s *Store) Filter() models.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// State returns a copy of the pagination state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.FriendEntry, len(s.items))
	for i, entry := range s.items {
		if entry.IsRequestReceiver != nil {
			entry.IsRequestReceiver = models.BoolPtr(*entry.IsRequestReceiver)
		}
		items[i] = entry
	}
	return State{
		Items:     items,
		Page:      s.page,
		HasMore:   s.hasMore,
		IsLoading: s.isLoading,
		Filter:    s.filter,
	}
}

// Phase reports where the store is in its load lifecycle.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.isLoading:
		return PhaseLoading
	case !s.started:
		return PhaseIdle
	case !s.hasMore:
		return PhaseExhausted
	default:
		return PhaseLoaded
	}
}
