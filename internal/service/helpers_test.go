package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/repository"

	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

type fixture struct {
	store         *repository.Store
	locker        lock.Locker
	relationships *RelationshipService
	conversations *ConversationService
	posts         *PostService
	comments      *CommentService
	notifications *NotificationService
	users         *UserService
	clock         *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	locker := lock.NewLocalLocker(time.Second)
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &fixture{
		store:         store,
		locker:        locker,
		relationships: NewRelationshipService(store.Users, locker),
		conversations: NewConversationService(store.Messages, store.Users, locker, 0).WithClock(clock.Now),
		posts:         NewPostService(store.Posts, store.Users, locker).WithClock(clock.Now),
		comments:      NewCommentService(store.Comments, store.Posts, store.Users, locker).WithClock(clock.Now),
		notifications: NewNotificationService(store.Notifications, store.Users),
		users:         NewUserService(store.Users, locker).WithHashCost(4),
		clock:         clock,
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, DisplayName: name}
	require.NoError(t, f.store.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) reload(t *testing.T, id uint) *models.User {
	t.Helper()
	u, err := f.store.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) status(t *testing.T, viewer, subject uint) models.RelationshipStatus {
	t.Helper()
	st, err := f.relationships.RelationshipOf(context.Background(), viewer, subject)
	require.NoError(t, err)
	return st
}

// message appends directly to the log with an explicit timestamp.
func (f *fixture) message(t *testing.T, conv string, sender uint, at time.Time, read bool) *models.Message {
	t.Helper()
	m := &models.Message{ConversationID: conv, SenderID: sender, Content: fmt.Sprintf("at %s", at), CreatedAt: at, Read: read}
	require.NoError(t, f.store.Messages.Create(context.Background(), m))
	return m
}

// userRepoStub wraps a real repository and lets a test override single calls.
type userRepoStub struct {
	repository.UserRepository
	getByIDFn    func(context.Context, uint) (*models.User, error)
	updatePairFn func(context.Context, *models.User, *models.User) error
	getByIDsFn   func(context.Context, []uint) ([]*models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return s.UserRepository.GetByID(ctx, id)
}

func (s *userRepoStub) UpdatePair(ctx context.Context, a, b *models.User) error {
	if s.updatePairFn != nil {
		return s.updatePairFn(ctx, a, b)
	}
	return s.UserRepository.UpdatePair(ctx, a, b)
}

func (s *userRepoStub) GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error) {
	if s.getByIDsFn != nil {
		return s.getByIDsFn(ctx, ids)
	}
	return s.UserRepository.GetByIDs(ctx, ids)
}

type messageRepoStub struct {
	repository.MessageRepository
	createFn             func(context.Context, *models.Message) error
	listForParticipantFn func(context.Context, uint) ([]*models.Message, error)
	markConversationFn   func(context.Context, string, uint) (int, error)
}

func (s *messageRepoStub) Create(ctx context.Context, m *models.Message) error {
	if s.createFn != nil {
		return s.createFn(ctx, m)
	}
	return s.MessageRepository.Create(ctx, m)
}

func (s *messageRepoStub) ListForParticipant(ctx context.Context, userID uint) ([]*models.Message, error) {
	if s.listForParticipantFn != nil {
		return s.listForParticipantFn(ctx, userID)
	}
	return s.MessageRepository.ListForParticipant(ctx, userID)
}

func (s *messageRepoStub) MarkConversationRead(ctx context.Context, conv string, viewer uint) (int, error) {
	if s.markConversationFn != nil {
		return s.markConversationFn(ctx, conv, viewer)
	}
	return s.MessageRepository.MarkConversationRead(ctx, conv, viewer)
}

type postRepoStub struct {
	repository.PostRepository
	updateFn func(context.Context, *models.Post) error
}

func (s *postRepoStub) Update(ctx context.Context, p *models.Post) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, p)
	}
	return s.PostRepository.Update(ctx, p)
}
