package models

import (
	"time"
)

// Comment belongs to a post.
type Comment struct {
	ID        uint         `gorm:"primaryKey" json:"id" yaml:"id"`
	PostID    uint         `gorm:"not null;index" json:"post_id" yaml:"post_id"`
	AuthorID  uint         `gorm:"not null;index" json:"author_id" yaml:"author_id"`
	Content   string       `gorm:"type:text;not null" json:"content" yaml:"content"`
	Likes     IDSet        `gorm:"type:text;serializer:json" json:"likes" yaml:"likes"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	EditedAt  *time.Time   `json:"edited_at,omitempty" yaml:"edited_at,omitempty"`
	Author    *UserSummary `gorm:"-" json:"author,omitempty" yaml:"-"`
}

// TableName specifies the table name for GORM
func (Comment) TableName() string {
	return "comments"
}

func (c *Comment) RecordID() uint      { return c.ID }
func (c *Comment) SetRecordID(id uint) { c.ID = id }

// Clone returns a deep copy.
func (c *Comment) Clone() *Comment {
	out := *c
	out.Likes = c.Likes.Clone()
	if c.EditedAt != nil {
		t := *c.EditedAt
		out.EditedAt = &t
	}
	if c.Author != nil {
		a := *c.Author
		out.Author = &a
	}
	return &out
}
