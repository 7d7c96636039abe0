package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func at(seconds int) time.Time { return t0.Add(time.Duration(seconds) * time.Second) }

func TestDeriveConversationID_OrderIndependent(t *testing.T) {
	svc := newFixture(t).conversations
	pairs := [][2]uint{{1, 2}, {2, 1}, {7, 300}, {300, 7}, {5, 5}}
	for _, p := range pairs {
		assert.Equal(t, svc.DeriveConversationID(p[0], p[1]), svc.DeriveConversationID(p[1], p[0]))
	}
	assert.Equal(t, "7-300", svc.DeriveConversationID(300, 7))
}

func TestListConversations_LastMessageIsMaxTimestamp(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "ada"), f.user(t, "bob")
	conv := models.DeriveConversationID(a.ID, b.ID)

	f.message(t, conv, a.ID, at(1), false)
	latest := f.message(t, conv, b.ID, at(5), false)
	f.message(t, conv, a.ID, at(3), false) // appended last, older timestamp

	convs, err := f.conversations.ListConversations(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, latest.ID, convs[0].LastMessage.ID)
	assert.Equal(t, b.ID, convs[0].OtherUser.ID)
	assert.Equal(t, 1, convs[0].UnreadCount)
}

func TestListConversations_OrderAndTieBreak(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.user(t, "ada"), f.user(t, "bob"), f.user(t, "cyd"), f.user(t, "dee")
	ab := models.DeriveConversationID(a.ID, b.ID)
	ac := models.DeriveConversationID(a.ID, c.ID)
	ad := models.DeriveConversationID(a.ID, d.ID)

	f.message(t, ad, d.ID, at(10), false)
	f.message(t, ac, c.ID, at(20), true)
	f.message(t, ab, b.ID, at(20), true)
	f.message(t, models.DeriveConversationID(b.ID, c.ID), b.ID, at(30), false)

	convs, err := f.conversations.ListConversations(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, []string{ab, ac, ad}, []string{convs[0].ConversationID, convs[1].ConversationID, convs[2].ConversationID})
}

func TestListConversations_SkipsUnresolvedPeers(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "ada")
	f.message(t, models.DeriveConversationID(a.ID, 404), 404, at(1), false)

	convs, err := f.conversations.ListConversations(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMarkConversationRead_SecondCallIsZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "ada"), f.user(t, "bob")
	conv := models.DeriveConversationID(a.ID, b.ID)
	f.message(t, conv, b.ID, at(1), false)
	f.message(t, conv, b.ID, at(2), false)
	f.message(t, conv, b.ID, at(3), true)
	f.message(t, conv, a.ID, at(4), false)

	n, err := f.conversations.MarkConversationRead(ctx, conv, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.conversations.MarkConversationRead(ctx, conv, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The viewer's own message stays unread for the peer.
	total, err := f.conversations.UnreadTotal(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestConversationScenario_UnreadThenMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2 := f.user(t, "one"), f.user(t, "two")
	conv := models.DeriveConversationID(u1.ID, u2.ID)

	f.message(t, conv, u2.ID, at(1), false)
	f.message(t, conv, u1.ID, at(2), false)
	f.message(t, conv, u2.ID, at(3), false)

	convs, err := f.conversations.ListConversations(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.True(t, convs[0].LastMessage.CreatedAt.Equal(at(3)))

	_, err = f.conversations.MarkConversationRead(ctx, conv, u1.ID)
	require.NoError(t, err)

	convs, err = f.conversations.ListConversations(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "ada"), f.user(t, "bob"), f.user(t, "cyd")
	conv := models.DeriveConversationID(a.ID, b.ID)

	first, err := f.conversations.SendMessage(ctx, conv, a.ID, "  hello  ")
	require.NoError(t, err)
	second, err := f.conversations.SendMessage(ctx, conv, b.ID, "hi")
	require.NoError(t, err)

	assert.Equal(t, "hello", first.Content)
	assert.False(t, first.Read)
	assert.Equal(t, conv, first.ConversationID)
	assert.Greater(t, second.ID, first.ID)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, a.ID, first.Sender.ID)

	tests := []struct {
		name    string
		conv    string
		sender  uint
		content string
		code    string
	}{
		{"empty", conv, a.ID, "", models.CodeValidation},
		{"whitespace", conv, a.ID, " \n\t ", models.CodeValidation},
		{"too long", conv, a.ID, strings.Repeat("x", DefaultMaxMessageLength+1), models.CodeValidation},
		{"not a participant", conv, c.ID, "hey", models.CodeValidation},
		{"malformed id", "abc", a.ID, "hey", models.CodeValidation},
		{"reversed id", "2-1", b.ID, "hey", models.CodeValidation},
		{"leading zero", "0" + conv, b.ID, "hey", models.CodeValidation},
		{"self conversation", "1-1", a.ID, "hey", models.CodeValidation},
		{"unknown peer", models.DeriveConversationID(a.ID, 999), a.ID, "hey", models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.conversations.SendMessage(ctx, tt.conv, tt.sender, tt.content)
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}

	msgs, err := f.conversations.Messages(ctx, conv, a.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMessages_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "ada"), f.user(t, "bob"), f.user(t, "cyd")
	conv := models.DeriveConversationID(a.ID, b.ID)
	f.message(t, conv, b.ID, at(2), false)
	f.message(t, conv, a.ID, at(1), false)

	msgs, err := f.conversations.Messages(ctx, conv, b.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	assert.Equal(t, "ada", msgs[0].Sender.Username)

	_, err = f.conversations.Messages(ctx, conv, c.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
}

func TestMarkMessageRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "ada"), f.user(t, "bob"), f.user(t, "cyd")
	conv := models.DeriveConversationID(a.ID, b.ID)
	m := f.message(t, conv, b.ID, at(1), false)

	changed, err := f.conversations.MarkMessageRead(ctx, m.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, changed, "sender cannot mark own message")

	_, err = f.conversations.MarkMessageRead(ctx, m.ID, c.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	changed, err = f.conversations.MarkMessageRead(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.conversations.MarkMessageRead(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.conversations.MarkMessageRead(ctx, 999, a.ID)
	assert.True(t, models.IsNotFound(err))

	require.NoError(t, f.conversations.DeleteMessage(ctx, m.ID))
	assert.True(t, models.IsNotFound(f.conversations.DeleteMessage(ctx, m.ID)))
}

func TestConversationService_PropagatesStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "ada"), f.user(t, "bob")
	conv := models.DeriveConversationID(a.ID, b.ID)

	fail := func() error { return models.NewStoreError(errStoreDown) }
	stub := &messageRepoStub{
		MessageRepository:    f.store.Messages,
		createFn:             func(context.Context, *models.Message) error { return fail() },
		listForParticipantFn: func(context.Context, uint) ([]*models.Message, error) { return nil, fail() },
		markConversationFn:   func(context.Context, string, uint) (int, error) { return 0, fail() },
	}
	svc := NewConversationService(stub, f.store.Users, f.locker, 0)

	_, err := svc.SendMessage(ctx, conv, a.ID, "hi")
	assert.True(t, models.IsStoreFailure(err))
	_, err = svc.ListConversations(ctx, a.ID)
	assert.True(t, models.IsStoreFailure(err))
	_, err = svc.MarkConversationRead(ctx, conv, a.ID)
	assert.True(t, models.IsStoreFailure(err))
	_, err = svc.UnreadTotal(ctx, a.ID)
	assert.True(t, models.IsStoreFailure(err))
}

func TestSendMessage_OnePairOneConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "ada"), f.user(t, "bob")
	require.Equal(t, "1-2", models.DeriveConversationID(a.ID, b.ID))

	_, err := f.conversations.SendMessage(ctx, "1-2", b.ID, "first")
	require.NoError(t, err)
	for _, alias := range []string{"2-1", "01-2", "1-02"} {
		_, err := f.conversations.SendMessage(ctx, alias, b.ID, "again")
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err), alias)
	}

	convs, err := f.conversations.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "1-2", convs[0].ConversationID)
	assert.Equal(t, 1, convs[0].UnreadCount)

	n, err := f.conversations.MarkConversationRead(ctx, "1-2", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	total, err := f.conversations.UnreadTotal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestMarkConversationRead_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "ada"), f.user(t, "bob"), f.user(t, "cyd")
	conv := models.DeriveConversationID(a.ID, b.ID)
	f.message(t, conv, b.ID, at(1), false)
	f.message(t, conv, a.ID, at(2), false)

	n, err := f.conversations.MarkConversationRead(ctx, conv, c.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	assert.Zero(t, n)
	_, err = f.conversations.MarkConversationRead(ctx, "2-1", a.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	unreadA, err := f.conversations.UnreadTotal(ctx, a.ID)
	require.NoError(t, err)
	unreadB, err := f.conversations.UnreadTotal(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unreadA)
	assert.Equal(t, 1, unreadB)
}

func TestDeleteMessage_WaitsForConversationLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "ada"), f.user(t, "bob")
	conv := models.DeriveConversationID(a.ID, b.ID)
	m := f.message(t, conv, b.ID, at(1), false)

	locker := lock.NewLocalLocker(20 * time.Millisecond)
	svc := NewConversationService(f.store.Messages, f.store.Users, locker, 0)

	release, err := locker.Acquire(ctx, lock.ConversationKey(conv))
	require.NoError(t, err)
	err = svc.DeleteMessage(ctx, m.ID)
	assert.True(t, models.IsStoreFailure(err))
	_, err = f.store.Messages.GetByID(ctx, m.ID)
	require.NoError(t, err, "message survives while the conversation is locked")

	release()
	require.NoError(t, svc.DeleteMessage(ctx, m.ID))
	_, err = f.store.Messages.GetByID(ctx, m.ID)
	assert.True(t, models.IsNotFound(err))
}
