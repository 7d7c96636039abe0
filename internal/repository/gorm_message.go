package repository

import (
	"context"
	"fmt"

	"kinship/internal/models"

	"gorm.io/gorm"
)

type messageRepository struct {
	gormBase
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{gormBase: newGormBase(db, models.CollectionMessage, "Message")}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return gormCreate(ctx, r.gormBase, msg, msg.RecordID)
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	return gormFirst[models.Message](ctx, r.gormBase, id)
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	defer r.track("list")()
	var msgs []*models.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return msgs, nil
}

func (r *messageRepository) ListForParticipant(ctx context.Context, userID uint) ([]*models.Message, error) {
	defer r.track("list")()
	var candidates []*models.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id LIKE ? OR conversation_id LIKE ?", fmt.Sprintf("%d-%%", userID), fmt.Sprintf("%%-%d", userID)).
		Order("created_at ASC, id ASC").
		Find(&candidates).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	msgs := make([]*models.Message, 0, len(candidates))
	for _, m := range candidates {
		if _, ok := models.ConversationPeer(m.ConversationID, userID); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, conversationID string, viewerID uint) (int, error) {
	defer r.track("mark_read")()
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where(map[string]interface{}{"conversation_id": conversationID, "read": false}).
		Where("sender_id <> ?", viewerID).
		Update("read", true)
	if res.Error != nil {
		return 0, r.fail(ctx, "mark_read", conversationID, res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{"conversation_id": conversationID, "read": res.RowsAffected})
	}
	return int(res.RowsAffected), nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	defer r.track("mark_read")()
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where(map[string]interface{}{"id": id, "read": false}).
		Update("read", true)
	if res.Error != nil {
		return false, r.fail(ctx, "mark_read", id, res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{"id": id})
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	return gormDelete[models.Message](ctx, r.gormBase, id)
}
