package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newSeeder(store *repository.Store, users, posts int) *Seeder {
	return NewSeeder(store, Options{
		Users:    users,
		Posts:    posts,
		Seed:     42,
		HashCost: bcrypt.MinCost,
		Now:      func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func TestRun_RespectsFriendGraphInvariants(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	sum, err := newSeeder(store, 12, 20).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Users)
	assert.Equal(t, 20, sum.Posts)

	users, err := store.Users.List(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, users, 12)

	byID := make(map[uint]*models.User)
	for _, u := range users {
		byID[u.ID] = u
	}
	friendships := 0
	for _, u := range users {
		assert.Equal(t, u.Friends.Len(), u.FriendsCount)
		assert.False(t, u.Friends.Contains(u.ID))
		for _, id := range u.Friends {
			assert.True(t, byID[id].Friends.Contains(u.ID), "friendship %d-%d must be mutual", u.ID, id)
			assert.False(t, u.PendingRequests.Contains(id))
			friendships++
		}
	}
	assert.Equal(t, sum.Friendships, friendships/2)
}

func TestRun_EngagementInvariants(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	sum, err := newSeeder(store, 8, 15).Run(ctx)
	require.NoError(t, err)

	posts, err := store.Posts.List(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, posts, 15)

	comments := 0
	for _, p := range posts {
		seen := make(map[uint]bool)
		for _, emoji := range p.Reactions.Emojis() {
			bucket := p.Reactions[emoji]
			assert.NotZero(t, bucket.Len(), "empty buckets are never stored")
			for _, id := range bucket {
				assert.False(t, seen[id], "user %d reacted twice on post %d", id, p.ID)
				seen[id] = true
			}
		}
		list, err := store.Comments.ListByPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, len(list), p.CommentCount)
		comments += len(list)
	}
	assert.Equal(t, sum.Comments, comments)
}

func TestRun_IsReproducible(t *testing.T) {
	ctx := context.Background()
	a, b := repository.NewMemoryStore(), repository.NewMemoryStore()

	_, err := newSeeder(a, 5, 5).Run(ctx)
	require.NoError(t, err)
	_, err = newSeeder(b, 5, 5).Run(ctx)
	require.NoError(t, err)

	ua, err := a.Users.List(ctx, 10, 0)
	require.NoError(t, err)
	ub, err := b.Users.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, ub, len(ua))
	for i := range ua {
		assert.Equal(t, ua[i].Username, ub[i].Username)
		assert.Equal(t, ua[i].Friends, ub[i].Friends)
	}
}

func TestSeededAccountsCanLogIn(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := newSeeder(store, 2, 0).Run(ctx)
	require.NoError(t, err)

	users, err := store.Users.List(ctx, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, users)

	svc := service.NewUserService(store.Users, lock.NewLocalLocker(time.Second))
	got, err := svc.Authenticate(ctx, users[0].Username, DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, got.ID)
}

func TestReadFixtureFile_Loads(t *testing.T) {
	ctx := context.Background()
	f, err := ReadFixtureFile("testdata/small.yml")
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	sum, err := f.Load(ctx, store, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Users: 3, Friendships: 1, Requests: 1, Posts: 1, Comments: 2, Messages: 2, Notifications: 1}, sum)

	ada, err := store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", ada.DisplayName)
	assert.Equal(t, 1, ada.FriendsCount)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(ada.PasswordHash), []byte("Analytical-Engine-1")))

	bob, err := store.Users.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.DisplayName)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(bob.PasswordHash), []byte(DefaultPassword)))
	assert.Equal(t, models.RelationshipPendingIncoming, models.DeriveRelationship(bob, mustUser(t, store, 3)))

	post, err := store.Posts.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, post.CommentCount)
	assert.Equal(t, "🎉", post.Reactions.EmojiOf(3))
	assert.True(t, post.Likes.Contains(2))

	conv := service.NewConversationService(store.Messages, store.Users, lock.NewLocalLocker(time.Second), 0)
	convs, err := conv.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "hey ada", convs[0].LastMessage.Content)
}

func mustUser(t *testing.T, store *repository.Store, id uint) *models.User {
	t.Helper()
	u, err := store.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestReadFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "one-sided friendship",
			yaml: "users:\n  - {id: 1, username: a, friends: [2]}\n  - {id: 2, username: b}\n",
			want: "one-sided",
		},
		{
			name: "friend with pending request",
			yaml: "users:\n  - {id: 1, username: a, friends: [2], pending_requests: [2]}\n  - {id: 2, username: b, friends: [1]}\n",
			want: "pending request",
		},
		{
			name: "unknown post author",
			yaml: "users:\n  - {id: 1, username: a}\nposts:\n  - {id: 5, author_id: 9, content: x}\n",
			want: "unknown author",
		},
		{
			name: "sender outside conversation",
			yaml: "users:\n  - {id: 1, username: a}\n  - {id: 2, username: b}\n  - {id: 3, username: c}\nmessages:\n  - {id: 1, conversation_id: \"1-2\", sender_id: 3, content: x}\n",
			want: "not a participant",
		},
		{
			name: "reversed conversation id",
			yaml: "users:\n  - {id: 1, username: a}\n  - {id: 2, username: b}\nmessages:\n  - {id: 1, conversation_id: \"2-1\", sender_id: 2, content: x}\n",
			want: "non-canonical",
		},
		{
			name: "duplicate username",
			yaml: "users:\n  - {id: 1, username: a}\n  - {id: 2, username: a}\n",
			want: "duplicated",
		},
		{
			name: "unknown key",
			yaml: "users:\n  - {id: 1, username: a, email: a@example.com}\n",
			want: "decode fixture",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFixture(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadFixture_Empty(t *testing.T) {
	f, err := ReadFixture(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Users)
}
