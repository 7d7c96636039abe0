package repository

import (
	"context"

	"kinship/internal/models"

	"gorm.io/gorm"
)

type notificationRepository struct {
	gormBase
}

// NewNotificationRepository returns a new NotificationRepository implementation.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{gormBase: newGormBase(db, models.CollectionNotification, "Notification")}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return gormCreate(ctx, r.gormBase, n, n.RecordID)
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	return gormFirst[models.Notification](ctx, r.gormBase, id)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint) ([]*models.Notification, error) {
	defer r.track("list")()
	var items []*models.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return items, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int, error) {
	defer r.track("count")()
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Count(&n).Error; err != nil {
		return 0, r.fail(ctx, "count", nil, err)
	}
	return int(n), nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	defer r.track("mark_read")()
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where(map[string]interface{}{"id": id, "read": false}).
		Update("read", true)
	if res.Error != nil {
		return false, r.fail(ctx, "mark_read", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int, error) {
	defer r.track("mark_read")()
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Update("read", true)
	if res.Error != nil {
		return 0, r.fail(ctx, "mark_read", userID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *notificationRepository) Delete(ctx context.Context, id uint) error {
	return gormDelete[models.Notification](ctx, r.gormBase, id)
}
