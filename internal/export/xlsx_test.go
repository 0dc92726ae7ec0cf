package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/connectcg/friendsync/internal/friends"
	"github.com/connectcg/friendsync/internal/models"
)

func TestWriteFriends(t *testing.T) {
	state := friends.State{Items: []models.FriendEntry{
		{ID: "7", FullName: "Ann Lee", Username: "ann", RelationshipStatus: models.RelationshipFriend},
		{ID: "9", FullName: "Bo", Username: "bo", RelationshipStatus: models.RelationshipPending, IsRequestReceiver: models.BoolPtr(true), RequestID: "r1"},
	}}
	pending := []models.FriendRequest{{RequestID: "r1", SenderID: "9", SenderFullName: "Bo", SenderUsername: "bo"}}

	var buf bytes.Buffer
	require.NoError(t, WriteFriends(&buf, state, pending))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{FriendsSheet, PendingSheet}, f.GetSheetList())

	rows, err := f.GetRows(FriendsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	require.GreaterOrEqual(t, len(rows[1]), 4)
	assert.Equal(t, []string{"7", "Ann Lee", "ann", "FRIEND"}, rows[1][:4])
	require.GreaterOrEqual(t, len(rows[2]), 6)
	assert.Equal(t, []string{"9", "Bo", "bo", "PENDING", "true", "r1"}, rows[2][:6])

	rows, err = f.GetRows(PendingSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"r1", "9", "Bo", "bo"}, rows[1])
}

func TestWriteFriendsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFriends(&buf, friends.State{}, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(PendingSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
