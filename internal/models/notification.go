package models

import (
	"time"
)

// NotificationType identifies what a notification is about.
type NotificationType string

const (
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
	NotificationComment       NotificationType = "comment"
	NotificationReaction      NotificationType = "reaction"
	NotificationLike          NotificationType = "like"
	NotificationMessage       NotificationType = "message"
)

// Notification is addressed to UserID and caused by ActorID.
type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id" yaml:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id" yaml:"user_id"`
	ActorID   uint             `gorm:"not null" json:"actor_id" yaml:"actor_id"`
	Type      NotificationType `gorm:"size:32" json:"type" yaml:"type"`
	Content   string           `json:"content" yaml:"content"`
	PostID    *uint            `json:"post_id,omitempty" yaml:"post_id"`
	Read      bool             `gorm:"default:false;index" json:"read" yaml:"read"`
	CreatedAt time.Time        `gorm:"index" json:"created_at" yaml:"created_at"`
	Actor     *UserSummary     `gorm:"-" json:"actor,omitempty" yaml:"-"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) RecordID() uint      { return n.ID }
func (n *Notification) SetRecordID(id uint) { n.ID = id }

// Clone returns a copy of the notification.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.PostID != nil {
		id := *n.PostID
		c.PostID = &id
	}
	if n.Actor != nil {
		a := *n.Actor
		c.Actor = &a
	}
	return &c
}
