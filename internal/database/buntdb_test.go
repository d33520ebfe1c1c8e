package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fellowship-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BuntDB {
	t.Helper()
	db, err := NewBuntDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func storeMessage(t *testing.T, db *BuntDB, id string, scope models.ChatScope, author, recipient string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:          id,
		Scope:       scope,
		AuthorID:    author,
		AuthorName:  "User " + author,
		RecipientID: recipient,
		Content:     "content " + id,
		CreatedAt:   at,
	}
	require.NoError(t, db.SaveMessage(context.Background(), msg))
	return msg
}

func TestSaveAndGetMessage(t *testing.T) {
	db := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	storeMessage(t, db, "m1", models.ScopeCommunity, "u1", "", now)

	got, err := db.GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "content m1", got.Content)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.NotNil(t, got.Reactions, "reactions map is always materialized")

	_, err = db.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListingsAreScopedAndOrdered(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	storeMessage(t, db, "c2", models.ScopeCommunity, "u1", "", base.Add(2*time.Minute))
	storeMessage(t, db, "c1", models.ScopeCommunity, "u2", "", base.Add(1*time.Minute))
	storeMessage(t, db, "a1", models.ScopeAdmin, "u3", "", base.Add(3*time.Minute))
	storeMessage(t, db, "p1", models.ScopePrivate, "u1", "u2", base.Add(4*time.Minute))

	community, err := db.ListCommunityMessages(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, community, 2)
	assert.Equal(t, "c1", community[0].ID, "oldest first")
	assert.Equal(t, "c2", community[1].ID)

	admin, err := db.ListAdminMessages(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, "a1", admin[0].ID)
}

func TestListCommunityHonorsLimit(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		storeMessage(t, db, fmt.Sprintf("m%d", i), models.ScopeCommunity, "u1", "", base.Add(time.Duration(i)*time.Second))
	}

	messages, err := db.ListCommunityMessages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m0", messages[0].ID)
}

func TestListPrivateMessagesIsSymmetric(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	storeMessage(t, db, "p1", models.ScopePrivate, "u1", "u2", base.Add(time.Minute))
	storeMessage(t, db, "p2", models.ScopePrivate, "u2", "u1", base.Add(2*time.Minute))
	storeMessage(t, db, "p3", models.ScopePrivate, "u1", "u3", base.Add(3*time.Minute))

	forward, err := db.ListPrivateMessages(context.Background(), "u1", "u2")
	require.NoError(t, err)
	reverse, err := db.ListPrivateMessages(context.Background(), "u2", "u1")
	require.NoError(t, err)

	require.Len(t, forward, 2)
	assert.Equal(t, forward, reverse)
	assert.Equal(t, "p1", forward[0].ID)
	assert.Equal(t, "p2", forward[1].ID)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	db := newTestStore(t)
	storeMessage(t, db, "m1", models.ScopePrivate, "u1", "u2", time.Now().UTC())

	first := time.Now().UTC()
	msg, err := db.MarkDelivered(context.Background(), "m1", first)
	require.NoError(t, err)
	require.NotNil(t, msg.DeliveredAt)
	assert.True(t, msg.Delivered)

	// A second delivery keeps the original timestamp.
	later := first.Add(time.Minute)
	msg, err = db.MarkDelivered(context.Background(), "m1", later)
	require.NoError(t, err)
	assert.True(t, msg.DeliveredAt.Equal(first))

	msg, err = db.MarkRead(context.Background(), "m1", later)
	require.NoError(t, err)
	assert.True(t, msg.Read)
	require.NotNil(t, msg.ReadAt)
	assert.True(t, msg.DeliveredAt.Equal(first), "read must not rewind the delivery timestamp")

	_, err = db.MarkDelivered(context.Background(), "missing", first)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadSetsDeliveredOnUndeliveredMessage(t *testing.T) {
	db := newTestStore(t)
	storeMessage(t, db, "m1", models.ScopePrivate, "u1", "u2", time.Now().UTC())

	at := time.Now().UTC()
	msg, err := db.MarkRead(context.Background(), "m1", at)
	require.NoError(t, err)
	assert.True(t, msg.Read)
	assert.True(t, msg.Delivered)
	require.NotNil(t, msg.DeliveredAt)
	assert.True(t, msg.DeliveredAt.Equal(at))
}

func TestUpdateReactionsPersists(t *testing.T) {
	db := newTestStore(t)
	storeMessage(t, db, "m1", models.ScopeCommunity, "u1", "", time.Now().UTC())

	reactions := map[string]models.Reaction{
		"🙏": {Count: 2, Users: []string{"u1", "u2"}},
	}
	require.NoError(t, db.UpdateReactions(context.Background(), "m1", reactions))

	got, err := db.GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, reactions, got.Reactions)

	err = db.UpdateReactions(context.Background(), "missing", reactions)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountUnreadPrivateGroupsBySender(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	storeMessage(t, db, "p1", models.ScopePrivate, "u1", "u3", base.Add(time.Minute))
	storeMessage(t, db, "p2", models.ScopePrivate, "u1", "u3", base.Add(2*time.Minute))
	storeMessage(t, db, "p3", models.ScopePrivate, "u2", "u3", base.Add(3*time.Minute))
	storeMessage(t, db, "p4", models.ScopePrivate, "u3", "u1", base.Add(4*time.Minute))

	_, err := db.MarkRead(context.Background(), "p2", time.Now().UTC())
	require.NoError(t, err)

	counts, err := db.CountUnreadPrivate(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 1, "u2": 1}, counts)
}

func TestCountUnreadSinceExcludesOwnAndOld(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	storeMessage(t, db, "old", models.ScopeCommunity, "u1", "", base)
	storeMessage(t, db, "new", models.ScopeCommunity, "u1", "", base.Add(30*time.Minute))
	storeMessage(t, db, "mine", models.ScopeCommunity, "u2", "", base.Add(40*time.Minute))

	count, err := db.CountUnreadSince(context.Background(), models.ScopeCommunity, "u2", base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only u1's message after the watermark counts")

	// Zero watermark counts everything not authored by the caller.
	count, err = db.CountUnreadSince(context.Background(), models.ScopeCommunity, "u2", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWatermarkRoundTrip(t *testing.T) {
	db := newTestStore(t)

	mark, err := db.GetWatermark(context.Background(), "u1", models.ScopeCommunity)
	require.NoError(t, err)
	assert.True(t, mark.IsZero(), "missing watermark reads as zero time")

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, db.SetWatermark(context.Background(), "u1", models.ScopeCommunity, at))

	mark, err = db.GetWatermark(context.Background(), "u1", models.ScopeCommunity)
	require.NoError(t, err)
	assert.True(t, mark.Equal(at))

	// Scopes are independent.
	mark, err = db.GetWatermark(context.Background(), "u1", models.ScopeAdmin)
	require.NoError(t, err)
	assert.True(t, mark.IsZero())
}
