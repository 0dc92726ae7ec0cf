// Package requests holds the viewer's inbound friend requests and tracks which
// of them have an accept or reject call in flight.
package requests

import (
	"context"
	"log/slog"
	"sync"

	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/notify"
)

// DefaultLimit is the size of the single page fetched by Fetch. Requests past
// it stay invisible until a later refetch.
const DefaultLimit = 100

// Client is the subset of the relationship service the store calls.
type Client interface {
	ListPendingRequests(ctx context.Context, page, size int) (models.Page[models.FriendRequest], error)
	AcceptRequest(ctx context.Context, requestID string) error
	RejectRequest(ctx context.Context, requestID string) error
}

// CountMirror receives friend count deltas.
type CountMirror interface {
	Adjust(ctx context.Context, delta int) error
}

// Options configures a Store.
type Options struct {
	Client   Client
	Counts   CountMirror
	Notifier notify.Notifier
	Limit    int
}

// Store owns the pending request set and the processing map.
type Store struct {
	client   Client
	counts   CountMirror
	notifier notify.Notifier
	limit    int

	mu         sync.Mutex
	requests   []models.FriendRequest
	processing map[string]string
	fetched    bool
}

// NewStore returns an empty Store.
func NewStore(opts Options) *Store {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Store{
		client:     opts.Client,
		counts:     opts.Counts,
		notifier:   notifier,
		limit:      limit,
		processing: make(map[string]string),
	}
}

// Fetch replaces the whole set with page 0. On failure the previous set is kept.
func (s *Store) Fetch(ctx context.Context) (err error) {
	ctx, span := logging.StartSpan(ctx, "requests.fetch", slog.Int("limit", s.limit))
	defer func() { span.End(err) }()

	page, err := s.client.ListPendingRequests(ctx, 0, s.limit)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error("Could not load friend requests", err))
		return err
	}

	seen := make(map[string]struct{}, len(page.Content))
	next := make([]models.FriendRequest, 0, len(page.Content))
	for _, req := range page.Content {
		if _, dup := seen[req.RequestID]; dup {
			continue
		}
		seen[req.RequestID] = struct{}{}
		next = append(next, req)
	}

	s.mu.Lock()
	s.requests = next
	s.fetched = true
	s.mu.Unlock()
	return nil
}

// Accept accepts req. On success the request leaves the set and the friend
// count grows by one.
func (s *Store) Accept(ctx context.Context, req models.FriendRequest) error {
	return s.decide(ctx, req, models.ProcessingAccepting)
}

// Reject rejects req. The friend count is left alone.
func (s *Store) Reject(ctx context.Context, req models.FriendRequest) error {
	return s.decide(ctx, req, models.ProcessingRejecting)
}

func (s *Store) decide(ctx context.Context, req models.FriendRequest, action string) (err error) {
	ctx, span := logging.StartSpan(ctx, "requests."+action,
		slog.String("request_id", req.RequestID),
		slog.String("sender_id", req.SenderID),
	)
	defer func() { span.End(err) }()

	s.setProcessing(req.RequestID, action)
	defer s.setProcessing(req.RequestID, models.ProcessingNone)

	if action == models.ProcessingAccepting {
		err = s.client.AcceptRequest(ctx, req.RequestID)
	} else {
		err = s.client.RejectRequest(ctx, req.RequestID)
	}
	if err != nil {
		msg := "Could not accept friend request"
		if action == models.ProcessingRejecting {
			msg = "Could not reject friend request"
		}
		s.notifier.Notify(ctx, notify.Error(msg, err))
		return err
	}

	s.remove(req.RequestID)
	if action == models.ProcessingAccepting && s.counts != nil {
		if adjErr := s.counts.Adjust(ctx, 1); adjErr != nil {
			logging.FromContext(ctx).Warn("friend count not persisted", slog.String("error", adjErr.Error()))
		}
	}
	return nil
}

func (s *Store) setProcessing(requestID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == models.ProcessingNone {
		delete(s.processing, requestID)
		return
	}
	s.processing[requestID] = state
}

func (s *Store) remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, req := range s.requests {
		if req.RequestID == requestID {
			s.requests = append(s.requests[:i:i], s.requests[i+1:]...)
			return
		}
	}
}

// Processing returns the in-flight action for requestID, or ProcessingNone.
func (s *Store) Processing(requestID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing[requestID]
}

// Requests returns a copy of the current set in server order.
func (s *Store) Requests() []models.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FriendRequest(nil), s.requests...)
}

// Find returns the request with requestID if it is in the set.
func (s *Store) Find(requestID string) (models.FriendRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.RequestID == requestID {
			return req, true
		}
	}
	return models.FriendRequest{}, false
}

// Fetched reports whether Fetch has succeeded since the last Clear.
func (s *Store) Fetched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched
}

// Clear forgets every request and processing flag.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.processing = make(map[string]string)
	s.fetched = false
}
