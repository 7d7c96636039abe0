package models

import (
	"time"
)

// Post is a feed entry authored by a user.
type Post struct {
	ID           uint         `gorm:"primaryKey" json:"id" yaml:"id"`
	AuthorID     uint         `gorm:"not null;index" json:"author_id" yaml:"author_id"`
	Content      string       `gorm:"type:text;not null" json:"content" yaml:"content"`
	ImageURL     string       `json:"image_url" yaml:"image_url"`
	Likes        IDSet        `gorm:"type:text;serializer:json" json:"likes" yaml:"likes"`
	Reactions    Reactions    `gorm:"type:text;serializer:json" json:"reactions" yaml:"reactions"`
	CommentCount int          `gorm:"default:0" json:"comment_count" yaml:"comment_count"`
	CreatedAt    time.Time    `gorm:"index" json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"-"`
	Author       *UserSummary `gorm:"-" json:"author,omitempty" yaml:"-"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

func (p *Post) RecordID() uint      { return p.ID }
func (p *Post) SetRecordID(id uint) { p.ID = id }

// Clone returns a deep copy.
func (p *Post) Clone() *Post {
	c := *p
	c.Likes = p.Likes.Clone()
	if p.Reactions != nil {
		c.Reactions = p.Reactions.Clone()
	} else {
		c.Reactions = Reactions{}
	}
	if p.Author != nil {
		a := *p.Author
		c.Author = &a
	}
	return &c
}
