package repository

import (
	"context"
	"sync"
	"testing"

	"kinship/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCollection_PresetIDsAdvanceCounter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Posts.Create(ctx, &models.Post{ID: 10, AuthorID: 1, Content: "fixture"}))
	next := &models.Post{AuthorID: 1, Content: "fresh"}
	require.NoError(t, s.Posts.Create(ctx, next))
	assert.Equal(t, uint(11), next.ID)

	err := s.Posts.Create(ctx, &models.Post{ID: 10, AuthorID: 1})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestMemCollection_IDsNeverReused(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &models.Message{ConversationID: "1-2", SenderID: 1, Content: "a"}
	require.NoError(t, s.Messages.Create(ctx, first))
	require.NoError(t, s.Messages.Delete(ctx, first.ID))

	second := &models.Message{ConversationID: "1-2", SenderID: 1, Content: "b"}
	require.NoError(t, s.Messages.Create(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}

func TestMemCollection_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	ids := make(chan uint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := &models.Message{ConversationID: "1-2", SenderID: 1, Content: "x"}
			if err := s.Messages.Create(ctx, m); err == nil {
				ids <- m.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name               string
		n, limit, offset   int
		wantStart, wantEnd int
	}{
		{"no limit", 5, 0, 0, 0, 5},
		{"limit", 5, 2, 0, 0, 2},
		{"offset", 5, 2, 4, 4, 5},
		{"offset past end", 5, 2, 9, 5, 5},
		{"negative offset", 5, 0, -1, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := pageBounds(tt.n, tt.limit, tt.offset)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}
