// Package session owns the state tied to one logged-in viewer: the pending
// request set, the profile count mirror and every open friends view. It is
// built explicitly, initialised once and torn down on logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/connectcg/friendsync/internal/friends"
	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/metrics"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/notify"
	"github.com/connectcg/friendsync/internal/profile"
	"github.com/connectcg/friendsync/internal/requests"
	"github.com/connectcg/friendsync/internal/storage"
)

var (
	// ErrClosed is returned by every operation after Teardown.
	ErrClosed = errors.New("session: closed")
	// ErrRequestBusy refuses a second decision on a request still being processed.
	ErrRequestBusy = errors.New("session: friend request is already being processed")
	// ErrUnknownRequest reports a request id absent from the pending set.
	ErrUnknownRequest = errors.New("session: unknown friend request")
)

// Client is the relationship service as seen by a session.
type Client interface {
	ListFriends(ctx context.Context, subjectID *string, filter models.Filter, page, size int) (models.Page[models.FriendEntry], error)
	ListPendingRequests(ctx context.Context, page, size int) (models.Page[models.FriendRequest], error)
	Unfriend(ctx context.Context, friendID string) error
	AcceptRequest(ctx context.Context, requestID string) error
	RejectRequest(ctx context.Context, requestID string) error
	SendRequest(ctx context.Context, targetUserID string) error
	GetMyProfile(ctx context.Context) (models.ProfileSnapshot, error)
}

// Options configures a Session.
type Options struct {
	Client Client
	// Storage persists the profile snapshot under SnapshotKey.
	Storage     storage.Store
	SnapshotKey string
	// ViewerID identifies the logged-in user. When empty the id from the
	// profile snapshot is used.
	ViewerID     string
	PageSize     int
	PendingLimit int
	Notifier     notify.Notifier
	Metrics      *metrics.Metrics
}

// Session is the owned context object handed to the presentation layer.
type Session struct {
	client   Client
	viewerID string
	pageSize int
	notifier notify.Notifier
	metrics  *metrics.Metrics

	requests *requests.Store
	profile  *profile.Mirror
	enricher *friends.Enricher

	mu          sync.Mutex
	views       []*friends.Store
	claimed     map[string]struct{}
	initialized bool
	closed      bool
}

// New builds a Session. Nothing is fetched until Init.
func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session: client is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("session: storage is required")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}

	mirror := profile.NewMirror(opts.Storage, opts.SnapshotKey, profile.WithMetrics(opts.Metrics))
	return &Session{
		client:   opts.Client,
		viewerID: opts.ViewerID,
		pageSize: opts.PageSize,
		notifier: notifier,
		metrics:  opts.Metrics,
		requests: requests.NewStore(requests.Options{
			Client:   opts.Client,
			Counts:   mirror,
			Notifier: notifier,
			Limit:    opts.PendingLimit,
		}),
		profile:  mirror,
		enricher: friends.NewEnricher(opts.Client),
		claimed:  make(map[string]struct{}),
	}, nil
}

// Init loads the persisted profile snapshot, fetching the profile when none is
// stored, and fetches the pending request set. Both run concurrently. Only a
// profile failure is returned; a failed pending fetch is notified and left for
// EnsureRequests to retry. Calling Init again after a success does nothing.
func (s *Session) Init(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, span := logging.StartSpan(ctx, "session.init")
	defer func() { span.End(err) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loadProfile(gctx)
	})
	g.Go(func() error {
		if err := s.requests.Fetch(gctx); err != nil {
			logging.FromContext(gctx).Warn("pending requests unavailable", slog.String("error", err.Error()))
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// EnsureRequests fetches the pending request set unless a fetch already
// succeeded.
func (s *Session) EnsureRequests(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.requests.Fetched() {
		return nil
	}
	return s.requests.Fetch(ctx)
}

func (s *Session) loadProfile(ctx context.Context) error {
	ok, err := s.profile.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	snap, err := s.client.GetMyProfile(ctx)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error("Could not load your profile", err))
		return fmt.Errorf("fetch profile: %w", err)
	}
	return s.profile.Replace(ctx, snap)
}

// Teardown clears pending requests, closes every view and deletes the
// persisted snapshot. The session is unusable afterwards.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.views = nil
	s.claimed = make(map[string]struct{})
	s.mu.Unlock()

	s.requests.Clear()
	if err := s.profile.Clear(ctx); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("session torn down")
	return nil
}

// ViewerID returns the logged-in user's id, if known.
func (s *Session) ViewerID() string {
	if s.viewerID != "" {
		return s.viewerID
	}
	snap, _ := s.profile.Snapshot()
	return snap.UserID
}

func (s *Session) isSelf(subjectID *string) bool {
	if subjectID == nil {
		return true
	}
	viewer := s.ViewerID()
	return viewer != "" && *subjectID == viewer
}

// Requests exposes the pending request store.
func (s *Session) Requests() *requests.Store { return s.requests }

// Profile exposes the profile count mirror.
func (s *Session) Profile() *profile.Mirror { return s.profile }

// OpenFriends creates a friends view for subjectID (nil for the viewer's own
// list). Views of other users get their PENDING entries enriched.
func (s *Session) OpenFriends(subjectID *string, filter models.Filter) (*friends.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	opts := friends.Options{
		SubjectID: subjectID,
		Filter:    filter,
		PageSize:  s.pageSize,
		Client:    s.client,
		Counts:    s.profile,
		Notifier:  s.notifier,
		Metrics:   s.metrics,
	}
	if !s.isSelf(subjectID) {
		opts.Enricher = s.enricher
	}
	view := friends.NewStore(opts)
	s.views = append(s.views, view)
	return view, nil
}

// CloseFriends discards view.
func (s *Session) CloseFriends(view *friends.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.views {
		if v == view {
			s.views = append(s.views[:i:i], s.views[i+1:]...)
			return
		}
	}
}

func (s *Session) openViews() []*friends.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*friends.Store(nil), s.views...)
}

// claim marks requestID as owned by one in-flight decision.
func (s *Session) claim(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, busy := s.claimed[requestID]; busy || s.requests.Processing(requestID) != models.ProcessingNone {
		return ErrRequestBusy
	}
	s.claimed[requestID] = struct{}{}
	return nil
}

func (s *Session) release(requestID string) {
	s.mu.Lock()
	delete(s.claimed, requestID)
	s.mu.Unlock()
}

// AcceptRequest accepts the pending request requestID. Open views showing the
// sender flip it to FRIEND and the viewer's own views matching the sender gain
// the new friend.
func (s *Session) AcceptRequest(ctx context.Context, requestID string) error {
	req, err := s.begin(requestID)
	if err != nil {
		return err
	}
	defer s.release(requestID)

	if err := s.requests.Accept(ctx, req); err != nil {
		return err
	}

	friend := req.AsFriend()
	for _, view := range s.openViews() {
		if view.SetRelationship(friend.ID, models.RelationshipFriend, nil, "") {
			continue
		}
		if s.isSelf(view.SubjectID()) && view.Filter().MatchesName(friend) {
			view.Append(friend)
		}
	}
	return nil
}

// RejectRequest rejects the pending request requestID. Open views showing the
// sender reset it to NONE.
func (s *Session) RejectRequest(ctx context.Context, requestID string) error {
	req, err := s.begin(requestID)
	if err != nil {
		return err
	}
	defer s.release(requestID)

	if err := s.requests.Reject(ctx, req); err != nil {
		return err
	}
	for _, view := range s.openViews() {
		view.SetRelationship(req.SenderID, models.RelationshipNone, nil, "")
	}
	return nil
}

func (s *Session) begin(requestID string) (models.FriendRequest, error) {
	if err := s.claim(requestID); err != nil {
		return models.FriendRequest{}, err
	}
	req, ok := s.requests.Find(requestID)
	if !ok {
		s.release(requestID)
		return models.FriendRequest{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return req, nil
}

// Unfriend ends the friendship with friendID through view, which drops the
// entry once the service confirms. Other open views follow: the viewer's own
// lists drop the entry, other users' lists show it as NONE. A nil view
// unfriends without any list of its own.
func (s *Session) Unfriend(ctx context.Context, view *friends.Store, friendID string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if view == nil {
		view = friends.NewStore(friends.Options{
			Client:   s.client,
			Counts:   s.profile,
			Notifier: s.notifier,
			Metrics:  s.metrics,
		})
	}
	if err := view.Unfriend(ctx, friendID); err != nil {
		return err
	}

	for _, other := range s.openViews() {
		if other == view {
			continue
		}
		if s.isSelf(other.SubjectID()) {
			other.Remove(friendID)
		} else {
			other.SetRelationship(friendID, models.RelationshipNone, nil, "")
		}
	}
	return nil
}

// SendRequest sends a friend request to targetUserID. Open views showing the
// target flip it to PENDING with the viewer as sender.
func (s *Session) SendRequest(ctx context.Context, targetUserID string) (err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ctx, span := logging.StartSpan(ctx, "session.send_request", slog.String("target_id", targetUserID))
	defer func() { span.End(err) }()

	if err = s.client.SendRequest(ctx, targetUserID); err != nil {
		s.notifier.Notify(ctx, notify.Error("Could not send friend request", err))
		return err
	}
	for _, view := range s.openViews() {
		view.SetRelationship(targetUserID, models.RelationshipPending, models.BoolPtr(false), "")
	}
	s.notifier.Notify(ctx, notify.Info("Friend request sent"))
	return nil
}
