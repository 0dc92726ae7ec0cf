package friends

import (
	"context"
	"log/slog"

	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/models"
)

// PendingHorizon is how many pending requests enrichment looks at. Requests
// beyond it are never cross-referenced.
const PendingHorizon = 100

// PendingLister reads the viewer's inbound friend requests.
type PendingLister interface {
	ListPendingRequests(ctx context.Context, page, size int) (models.Page[models.FriendRequest], error)
}

// Enrich attaches receiver metadata to PENDING entries. An entry whose id is
// the sender of one of the first PendingHorizon requests becomes
// isRequestReceiver=true with that requestId; any other PENDING entry becomes
// isRequestReceiver=false without a requestId. Other entries are untouched.
// The input slice is not modified, and Enrich(Enrich(x, p), p) == Enrich(x, p).
func Enrich(entries []models.FriendEntry, pending []models.FriendRequest) []models.FriendEntry {
	if len(pending) > PendingHorizon {
		pending = pending[:PendingHorizon]
	}
	bySender := make(map[string]string, len(pending))
	for _, req := range pending {
		if _, seen := bySender[req.SenderID]; !seen {
			bySender[req.SenderID] = req.RequestID
		}
	}

	out := make([]models.FriendEntry, len(entries))
	for i, entry := range entries {
		if entry.RelationshipStatus == models.RelationshipPending {
			if requestID, ok := bySender[entry.ID]; ok {
				entry.IsRequestReceiver = models.BoolPtr(true)
				entry.RequestID = requestID
			} else {
				entry.IsRequestReceiver = models.BoolPtr(false)
				entry.RequestID = ""
			}
		}
		out[i] = entry
	}
	return out
}

// Enricher fetches the pending set and applies Enrich to a page of entries.
type Enricher struct {
	source PendingLister
}

// NewEnricher returns an Enricher reading pending requests from source.
func NewEnricher(source PendingLister) *Enricher {
	return &Enricher{source: source}
}

// Apply enriches entries. Failures are logged and the entries are returned
// unchanged so the list still renders with bare PENDING statuses.
func (e *Enricher) Apply(ctx context.Context, entries []models.FriendEntry) []models.FriendEntry {
	if e == nil || e.source == nil || !hasPending(entries) {
		return entries
	}

	page, err := e.source.ListPendingRequests(ctx, 0, PendingHorizon)
	if err != nil {
		logging.FromContext(ctx).Warn("friend enrichment skipped",
			slog.String("error", err.Error()),
			slog.Int("entries", len(entries)),
		)
		return entries
	}
	return Enrich(entries, page.Content)
}

func hasPending(entries []models.FriendEntry) bool {
	for _, entry := range entries {
		if entry.RelationshipStatus == models.RelationshipPending {
			return true
		}
	}
	return false
}
