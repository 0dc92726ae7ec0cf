package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/connectcg/friendsync/internal/models"
)

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type wireFriend struct {
	ID                 flexID `json:"id"`
	FullName           string `json:"fullName"`
	Username           string `json:"username"`
	AvatarURL          string `json:"avatarUrl"`
	RelationshipStatus string `json:"relationshipStatus"`
	IsRequestReceiver  *bool  `json:"isRequestReceiver"`
	RequestID          flexID `json:"requestId"`
	Type               string `json:"type"`
}

func (w wireFriend) model() models.FriendEntry {
	status := models.RelationshipStatus(strings.ToUpper(strings.TrimSpace(w.RelationshipStatus)))
	switch status {
	case models.RelationshipFriend, models.RelationshipPending, models.RelationshipNone:
	default:
		status = models.RelationshipNone
	}
	return models.FriendEntry{
		ID:                 string(w.ID),
		FullName:           cleanText(w.FullName),
		Username:           cleanText(w.Username),
		AvatarURL:          cleanURL(w.AvatarURL),
		RelationshipStatus: status,
		IsRequestReceiver:  w.IsRequestReceiver,
		RequestID:          string(w.RequestID),
		Type:               models.EntryTypeFriend,
	}
}

type wireRequest struct {
	RequestID       flexID `json:"requestId"`
	ID              flexID `json:"id"`
	SenderID        flexID `json:"senderId"`
	SenderFullName  string `json:"senderFullName"`
	SenderUsername  string `json:"senderUsername"`
	SenderAvatarURL string `json:"senderAvatarUrl"`
}

func (w wireRequest) model() models.FriendRequest {
	requestID := string(w.RequestID)
	if requestID == "" {
		requestID = string(w.ID)
	}
	return models.FriendRequest{
		RequestID:       requestID,
		SenderID:        string(w.SenderID),
		SenderFullName:  cleanText(w.SenderFullName),
		SenderUsername:  cleanText(w.SenderUsername),
		SenderAvatarURL: cleanURL(w.SenderAvatarURL),
		Type:            models.EntryTypeRequest,
	}
}

type wirePage[T any] struct {
	Content       []T   `json:"content"`
	Last          *bool `json:"last"`
	TotalElements *int  `json:"totalElements"`
}

type wireProfile struct {
	ID           flexID `json:"id"`
	UserID       flexID `json:"userId"`
	FullName     string `json:"fullName"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatarUrl"`
	Bio          string `json:"bio"`
	FriendsCount int    `json:"friendsCount"`
}

func (w wireProfile) model(now time.Time) models.ProfileSnapshot {
	userID := string(w.UserID)
	if userID == "" {
		userID = string(w.ID)
	}
	count := w.FriendsCount
	if count < 0 {
		count = 0
	}
	return models.ProfileSnapshot{
		UserID:       userID,
		FullName:     cleanText(w.FullName),
		Username:     cleanText(w.Username),
		AvatarURL:    cleanURL(w.AvatarURL),
		Bio:          cleanText(w.Bio),
		FriendsCount: count,
		UpdatedAt:    now.UTC(),
	}
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type sendRequestBody struct {
	TargetUserID string `json:"targetUserId"`
}
