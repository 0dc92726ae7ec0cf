package requests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectcg/friendsync/internal/api"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/notify"
)

type fakeClient struct {
	pending   []models.FriendRequest
	listErr   error
	decideErr error
	sizes     []int
	accepted  []string
	rejected  []string

	// observe is called while the accept/reject call is in flight.
	observe func(requestID string)
}

func (f *fakeClient) ListPendingRequests(_ context.Context, _ int, size int) (models.Page[models.FriendRequest], error) {
	f.sizes = append(f.sizes, size)
	if f.listErr != nil {
		return models.Page[models.FriendRequest]{}, f.listErr
	}
	return models.Page[models.FriendRequest]{Content: append([]models.FriendRequest(nil), f.pending...)}, nil
}

func (f *fakeClient) AcceptRequest(_ context.Context, requestID string) error {
	f.accepted = append(f.accepted, requestID)
	if f.observe != nil {
		f.observe(requestID)
	}
	return f.decideErr
}

func (f *fakeClient) RejectRequest(_ context.Context, requestID string) error {
	f.rejected = append(f.rejected, requestID)
	if f.observe != nil {
		f.observe(requestID)
	}
	return f.decideErr
}

type fakeCounts struct {
	deltas []int
}

func (c *fakeCounts) Adjust(_ context.Context, delta int) error {
	c.deltas = append(c.deltas, delta)
	return nil
}

func samplePending() []models.FriendRequest {
	return []models.FriendRequest{
		{RequestID: "r1", SenderID: "42", SenderFullName: "Zed", Type: models.EntryTypeRequest},
		{RequestID: "r2", SenderID: "43", SenderFullName: "Ivy", Type: models.EntryTypeRequest},
	}
}

func newFetchedStore(t *testing.T, client *fakeClient, counts *fakeCounts, notifier notify.Notifier) *Store {
	t.Helper()
	store := NewStore(Options{Client: client, Counts: counts, Notifier: notifier})
	require.NoError(t, store.Fetch(context.Background()))
	return store
}

func TestFetchReplacesSet(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	store := newFetchedStore(t, client, &fakeCounts{}, nil)
	assert.Len(t, store.Requests(), 2)
	assert.True(t, store.Fetched())
	assert.Equal(t, []int{DefaultLimit}, client.sizes)

	client.pending = []models.FriendRequest{{RequestID: "r3", SenderID: "44"}, {RequestID: "r3", SenderID: "44"}}
	require.NoError(t, store.Fetch(context.Background()))

	got := store.Requests()
	require.Len(t, got, 1)
	assert.Equal(t, "r3", got[0].RequestID)
}

func TestFetchFailureKeepsPreviousSet(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	rec := &notify.Recorder{}
	store := newFetchedStore(t, client, &fakeCounts{}, rec)

	client.listErr = &api.NetworkError{Op: "list_pending_requests", Err: errors.New("offline")}
	require.Error(t, store.Fetch(context.Background()))
	assert.Len(t, store.Requests(), 2)
	assert.Len(t, rec.Errors(), 1)
}

func TestCustomLimit(t *testing.T) {
	client := &fakeClient{}
	store := NewStore(Options{Client: client, Limit: 25})
	require.NoError(t, store.Fetch(context.Background()))
	assert.Equal(t, []int{25}, client.sizes)
}

func TestAcceptSuccess(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	counts := &fakeCounts{}
	store := newFetchedStore(t, client, counts, nil)

	var during string
	client.observe = func(id string) { during = store.Processing(id) }

	req, ok := store.Find("r1")
	require.True(t, ok)
	require.NoError(t, store.Accept(context.Background(), req))

	assert.Equal(t, models.ProcessingAccepting, during)
	assert.Equal(t, models.ProcessingNone, store.Processing("r1"))
	_, ok = store.Find("r1")
	assert.False(t, ok)
	assert.Len(t, store.Requests(), 1)
	assert.Equal(t, []int{1}, counts.deltas)
	assert.Equal(t, []string{"r1"}, client.accepted)
}

func TestAcceptFailureKeepsRequest(t *testing.T) {
	client := &fakeClient{pending: samplePending(), decideErr: &api.ServerError{Op: "accept_request", StatusCode: 409, Message: "gone"}}
	counts := &fakeCounts{}
	rec := &notify.Recorder{}
	store := newFetchedStore(t, client, counts, rec)

	err := store.Accept(context.Background(), samplePending()[0])
	var srvErr *api.ServerError
	require.ErrorAs(t, err, &srvErr)

	assert.Len(t, store.Requests(), 2)
	assert.Equal(t, models.ProcessingNone, store.Processing("r1"))
	assert.Empty(t, counts.deltas)
	require.Len(t, rec.Errors(), 1)
	assert.Equal(t, "Could not accept friend request", rec.Errors()[0].Message)
}

func TestRejectLeavesCountAlone(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	counts := &fakeCounts{}
	store := newFetchedStore(t, client, counts, nil)

	var during string
	client.observe = func(id string) { during = store.Processing(id) }

	require.NoError(t, store.Reject(context.Background(), samplePending()[1]))
	assert.Equal(t, models.ProcessingRejecting, during)
	assert.Equal(t, models.ProcessingNone, store.Processing("r2"))
	assert.Empty(t, counts.deltas)
	assert.Equal(t, []string{"r1"}, []string{store.Requests()[0].RequestID})
}

func TestProcessingClearedWhenClientPanics(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	store := newFetchedStore(t, client, &fakeCounts{}, nil)
	client.observe = func(string) { panic("boom") }

	assert.Panics(t, func() {
		_ = store.Reject(context.Background(), samplePending()[0])
	})
	assert.Equal(t, models.ProcessingNone, store.Processing("r1"))
}

func TestClear(t *testing.T) {
	client := &fakeClient{pending: samplePending()}
	store := newFetchedStore(t, client, &fakeCounts{}, nil)

	store.Clear()
	assert.Empty(t, store.Requests())
	assert.False(t, store.Fetched())
}
