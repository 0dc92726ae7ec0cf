package models

import (
	"strings"
	"time"
)

// RelationshipStatus describes how the viewer relates to a listed user.
type RelationshipStatus string

const (
	RelationshipNone    RelationshipStatus = "NONE"
	RelationshipPending RelationshipStatus = "PENDING"
	RelationshipFriend  RelationshipStatus = "FRIEND"
)

const (
	EntryTypeFriend  = "FRIEND"
	EntryTypeRequest = "REQUEST"
)

// FriendEntry is a single row of a friends list.
type FriendEntry struct {
	ID                 string             `json:"id"`
	FullName           string             `json:"fullName"`
	Username           string             `json:"username"`
	AvatarURL          string             `json:"avatarUrl"`
	RelationshipStatus RelationshipStatus `json:"relationshipStatus"`
	IsRequestReceiver  *bool              `json:"isRequestReceiver,omitempty"`
	RequestID          string             `json:"requestId,omitempty"`
	Type               string             `json:"type"`
}

// FriendRequest is an inbound friend request awaiting a decision.
type FriendRequest struct {
	RequestID       string `json:"requestId"`
	SenderID        string `json:"senderId"`
	SenderFullName  string `json:"senderFullName"`
	SenderUsername  string `json:"senderUsername"`
	SenderAvatarURL string `json:"senderAvatarUrl,omitempty"`
	Type            string `json:"type"`
}

// AsFriend converts an accepted request into a list entry for the sender.
func (r FriendRequest) AsFriend() FriendEntry {
	return FriendEntry{
		ID:                 r.SenderID,
		FullName:           r.SenderFullName,
		Username:           r.SenderUsername,
		AvatarURL:          r.SenderAvatarURL,
		RelationshipStatus: RelationshipFriend,
		Type:               EntryTypeFriend,
	}
}

// Page is one slice of a paginated backend collection.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Last          *bool `json:"last,omitempty"`
	TotalElements *int  `json:"totalElements,omitempty"`
	// Returned counts the rows the service sent, including any the client
	// dropped while decoding. Zero means len(Content).
	Returned int `json:"-"`
}

// Received is the number of rows the service sent for this page.
func (p Page[T]) Received() int {
	if p.Returned > len(p.Content) {
		return p.Returned
	}
	return len(p.Content)
}

// Filter narrows a friends listing.
type Filter struct {
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
	CityID string `json:"cityId,omitempty"`
}

// Merge overlays the non-empty fields of other onto f.
func (f Filter) Merge(other Filter) Filter {
	f.Name = other.Name
	if other.Gender != "" {
		f.Gender = other.Gender
	}
	if other.CityID != "" {
		f.CityID = other.CityID
	}
	return f
}

// MatchesName reports whether the entry would be returned for the name filter.
func (f Filter) MatchesName(entry FriendEntry) bool {
	needle := strings.ToLower(strings.TrimSpace(f.Name))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(entry.FullName), needle) ||
		strings.Contains(strings.ToLower(entry.Username), needle)
}

// ProfileSnapshot is the locally cached copy of the viewer's profile.
type ProfileSnapshot struct {
	UserID       string    `json:"userId"`
	FullName     string    `json:"fullName"`
	Username     string    `json:"username"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	FriendsCount int       `json:"friendsCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Processing states for a pending request.
const (
	ProcessingNone      = ""
	ProcessingAccepting = "accepting"
	ProcessingRejecting = "rejecting"
)

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}
