package service

import (
	"context"
	"testing"

	"kinship/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotificationRepository is a mock of the NotificationRepository interface
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID uint) ([]*models.Notification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID uint) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID uint) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestNotificationService_StoreFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "ada"), f.user(t, "bob")
	down := models.NewStoreError(errStoreDown)

	tests := []struct {
		name      string
		mockSetup func(m *MockNotificationRepository)
		run       func(s *NotificationService) error
	}{
		{
			name: "create",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("Create", mock.Anything, mock.Anything).Return(down)
			},
			run: func(s *NotificationService) error {
				_, err := s.Create(ctx, CreateNotificationInput{UserID: a.ID, ActorID: b.ID, Type: models.NotificationLike})
				return err
			},
		},
		{
			name: "list",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("ListByUser", mock.Anything, a.ID).Return(nil, down)
			},
			run: func(s *NotificationService) error {
				_, err := s.ListForUser(ctx, a.ID)
				return err
			},
		},
		{
			name: "unread count",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("CountUnread", mock.Anything, a.ID).Return(0, down)
			},
			run: func(s *NotificationService) error {
				_, err := s.UnreadCount(ctx, a.ID)
				return err
			},
		},
		{
			name: "mark read",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("GetByID", mock.Anything, uint(7)).Return(&models.Notification{ID: 7, UserID: a.ID}, nil)
				m.On("MarkRead", mock.Anything, uint(7)).Return(false, down)
			},
			run: func(s *NotificationService) error {
				_, err := s.MarkRead(ctx, a.ID, 7)
				return err
			},
		},
		{
			name: "mark all read",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("MarkAllRead", mock.Anything, a.ID).Return(0, down)
			},
			run: func(s *NotificationService) error {
				_, err := s.MarkAllRead(ctx, a.ID)
				return err
			},
		},
		{
			name: "delete",
			mockSetup: func(m *MockNotificationRepository) {
				m.On("GetByID", mock.Anything, uint(7)).Return(nil, down)
			},
			run: func(s *NotificationService) error {
				return s.Delete(ctx, a.ID, 7)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockNotificationRepository)
			tt.mockSetup(repo)
			err := tt.run(NewNotificationService(repo, f.store.Users))
			require.Error(t, err)
			assert.True(t, models.IsStoreFailure(err))
			repo.AssertExpectations(t)
		})
	}
}

func TestNotificationService_ForeignNotificationNeverMutated(t *testing.T) {
	repo := new(MockNotificationRepository)
	repo.On("GetByID", mock.Anything, uint(3)).Return(&models.Notification{ID: 3, UserID: 1}, nil)
	s := NewNotificationService(repo, nil)

	_, err := s.MarkRead(context.Background(), 2, 3)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(s.Delete(context.Background(), 2, 3)))

	repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
