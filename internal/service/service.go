// Package service holds the business logic over the record store.
package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"kinship/internal/lock"
	"kinship/internal/models"
)

const (
	// DefaultMaxMessageLength bounds message content when no limit is configured.
	DefaultMaxMessageLength = 4000
	// MaxPostLength bounds post and comment content.
	MaxPostLength = 5000
)

// withLock runs fn while holding keys. Failing to acquire is a store failure.
func withLock(ctx context.Context, locker lock.Locker, keys []string, fn func() error) error {
	release, err := locker.Acquire(ctx, keys...)
	if err != nil {
		return models.NewStoreError(err)
	}
	defer release()
	return fn()
}

// cleanContent trims content and checks it is non-empty and within max runes.
func cleanContent(content string, max int, what string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewValidationError(what + " content cannot be empty")
	}
	if max > 0 && utf8.RuneCountInString(content) > max {
		return "", models.NewValidationError(what + " content is too long")
	}
	return content, nil
}

// attachSummaries resolves ids to user summaries in one store call.
func attachSummaries(ctx context.Context, users interface {
	GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error)
}, ids []uint) (map[uint]*models.UserSummary, error) {
	found, err := users.GetByIDs(ctx, models.NewIDSet(ids...))
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*models.UserSummary, len(found))
	for _, u := range found {
		out[u.ID] = u.Summary()
	}
	return out, nil
}
