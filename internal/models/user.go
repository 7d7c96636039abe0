package models

import (
	"time"
)

// Collection names of the record store.
const (
	CollectionUser         = "user"
	CollectionMessage      = "message"
	CollectionPost         = "post"
	CollectionNotification = "notification"
	CollectionComment      = "comment"
)

// User represents a registered account and its side of the friend graph.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	Username        string    `gorm:"uniqueIndex;not null" json:"username" yaml:"username"`
	DisplayName     string    `json:"display_name" yaml:"display_name"`
	PasswordHash    string    `json:"-" yaml:"-"`
	Bio             string    `gorm:"type:text" json:"bio" yaml:"bio"`
	ProfilePicture  string    `json:"profile_picture" yaml:"profile_picture"`
	Online          bool      `json:"online" yaml:"online"`
	IsAdmin         bool      `gorm:"default:false" json:"is_admin" yaml:"is_admin"`
	Friends         IDSet     `gorm:"type:text;serializer:json" json:"friends" yaml:"friends"`
	PendingRequests IDSet     `gorm:"type:text;serializer:json" json:"pending_requests" yaml:"pending_requests"`
	FriendsCount    int       `json:"friends_count" yaml:"friends_count"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

func (u *User) RecordID() uint      { return u.ID }
func (u *User) SetRecordID(id uint) { u.ID = id }

// Clone returns a deep copy so callers never share set storage with the store.
func (u *User) Clone() *User {
	c := *u
	c.Friends = u.Friends.Clone()
	c.PendingRequests = u.PendingRequests.Clone()
	return &c
}

// SyncCounts recomputes derived counters from the sets.
func (u *User) SyncCounts() {
	u.FriendsCount = u.Friends.Len()
}

// UserSummary is the public projection embedded in messages, posts and
// notifications.
type UserSummary struct {
	ID             uint   `json:"id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	ProfilePicture string `json:"profile_picture"`
	Online         bool   `json:"online"`
}

// Summary projects the user to its public fields.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		ProfilePicture: u.ProfilePicture,
		Online:         u.Online,
	}
}
