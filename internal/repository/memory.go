package repository

import (
	"context"
	"sort"
	"sync"

	"kinship/internal/models"
	"kinship/internal/observability"
)

type record[T any] interface {
	*T
	RecordID() uint
	SetRecordID(uint)
	Clone() *T
}

// memCollection is an arena of records keyed by a monotonically increasing
// id. Values go in and come out as deep copies so no caller can mutate
// stored state except through the collection.
type memCollection[T any, PT record[T]] struct {
	mu       sync.RWMutex
	name     string
	resource string
	nextID   uint
	rows     map[uint]PT
	log      *observability.RepoLogger
}

func newMemCollection[T any, PT record[T]](name, resource string) *memCollection[T, PT] {
	return &memCollection[T, PT]{
		name:     name,
		resource: resource,
		rows:     make(map[uint]PT),
		log:      observability.NewRepoLogger(name),
	}
}

// insert stores rec. A preset id is kept when free (fixtures); otherwise the
// next arena id is assigned.
func (c *memCollection[T, PT]) insert(ctx context.Context, rec PT) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := rec.RecordID()
	if id == 0 {
		c.nextID++
		id = c.nextID
	} else if _, taken := c.rows[id]; taken {
		return models.NewConflictError(c.resource + " ID already in use")
	} else if id > c.nextID {
		c.nextID = id
	}
	rec.SetRecordID(id)
	c.rows[id] = PT(rec.Clone())
	c.log.LogCreate(ctx, map[string]interface{}{"id": id})
	return nil
}

func (c *memCollection[T, PT]) get(id uint) (PT, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.rows[id]
	if !ok {
		return nil, models.NewNotFoundError(c.resource, id)
	}
	return PT(rec.Clone()), nil
}

func (c *memCollection[T, PT]) put(ctx context.Context, recs ...PT) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range recs {
		if _, ok := c.rows[rec.RecordID()]; !ok {
			return models.NewNotFoundError(c.resource, rec.RecordID())
		}
	}
	for _, rec := range recs {
		c.rows[rec.RecordID()] = PT(rec.Clone())
		c.log.LogUpdate(ctx, map[string]interface{}{"id": rec.RecordID()})
	}
	return nil
}

func (c *memCollection[T, PT]) remove(ctx context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[id]; !ok {
		return models.NewNotFoundError(c.resource, id)
	}
	delete(c.rows, id)
	c.log.LogDelete(ctx, map[string]interface{}{"id": id})
	return nil
}

// filter returns copies of matching records ordered by id.
func (c *memCollection[T, PT]) filter(keep func(PT) bool) []PT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PT, 0)
	for _, rec := range c.rows {
		if keep == nil || keep(rec) {
			out = append(out, PT(rec.Clone()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

// mutate applies fn to every matching stored record in place and returns
// how many records fn reported as changed.
func (c *memCollection[T, PT]) mutate(ctx context.Context, match func(PT) bool, fn func(PT) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := 0
	for id, rec := range c.rows {
		if match(rec) && fn(rec) {
			changed++
			c.log.LogUpdate(ctx, map[string]interface{}{"id": id})
		}
	}
	return changed
}

// NewMemoryStore returns a Store whose collections live in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Users:         &memUserRepository{c: newMemCollection[models.User](models.CollectionUser, "User")},
		Messages:      &memMessageRepository{c: newMemCollection[models.Message](models.CollectionMessage, "Message")},
		Posts:         &memPostRepository{c: newMemCollection[models.Post](models.CollectionPost, "Post")},
		Comments:      &memCommentRepository{c: newMemCollection[models.Comment](models.CollectionComment, "Comment")},
		Notifications: &memNotificationRepository{c: newMemCollection[models.Notification](models.CollectionNotification, "Notification")},
	}
}

type memUserRepository struct {
	c *memCollection[models.User, *models.User]
}

func (r *memUserRepository) Create(ctx context.Context, user *models.User) error {
	if existing := r.c.filter(func(u *models.User) bool { return u.Username == user.Username }); len(existing) > 0 {
		return models.NewConflictError("Username already taken")
	}
	user.SyncCounts()
	return r.c.insert(ctx, user)
}

func (r *memUserRepository) GetByID(_ context.Context, id uint) (*models.User, error) {
	return r.c.get(id)
}

func (r *memUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	users := r.c.filter(func(u *models.User) bool { return u.Username == username })
	if len(users) == 0 {
		return nil, models.NewNotFoundError("User", username)
	}
	return users[0], nil
}

func (r *memUserRepository) GetByIDs(_ context.Context, ids []uint) ([]*models.User, error) {
	want := models.NewIDSet(ids...)
	return r.c.filter(func(u *models.User) bool { return want.Contains(u.ID) }), nil
}

func (r *memUserRepository) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	users := r.c.filter(nil)
	start, end := pageBounds(len(users), limit, offset)
	return users[start:end], nil
}

func (r *memUserRepository) ListRequestedBy(_ context.Context, requesterID uint) ([]*models.User, error) {
	return r.c.filter(func(u *models.User) bool { return u.PendingRequests.Contains(requesterID) }), nil
}

func (r *memUserRepository) Update(ctx context.Context, user *models.User) error {
	user.SyncCounts()
	return r.c.put(ctx, user)
}

func (r *memUserRepository) UpdatePair(ctx context.Context, a, b *models.User) error {
	a.SyncCounts()
	b.SyncCounts()
	return r.c.put(ctx, a, b)
}

func (r *memUserRepository) Delete(ctx context.Context, id uint) error {
	return r.c.remove(ctx, id)
}

type memMessageRepository struct {
	c *memCollection[models.Message, *models.Message]
}

func sortMessagesChronological(msgs []*models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func (r *memMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.c.insert(ctx, msg)
}

func (r *memMessageRepository) GetByID(_ context.Context, id uint) (*models.Message, error) {
	return r.c.get(id)
}

func (r *memMessageRepository) ListByConversation(_ context.Context, conversationID string) ([]*models.Message, error) {
	msgs := r.c.filter(func(m *models.Message) bool { return m.ConversationID == conversationID })
	sortMessagesChronological(msgs)
	return msgs, nil
}

func (r *memMessageRepository) ListForParticipant(_ context.Context, userID uint) ([]*models.Message, error) {
	msgs := r.c.filter(func(m *models.Message) bool {
		_, ok := models.ConversationPeer(m.ConversationID, userID)
		return ok
	})
	sortMessagesChronological(msgs)
	return msgs, nil
}

func (r *memMessageRepository) MarkConversationRead(ctx context.Context, conversationID string, viewerID uint) (int, error) {
	return r.c.mutate(ctx,
		func(m *models.Message) bool {
			return m.ConversationID == conversationID && m.SenderID != viewerID && !m.Read
		},
		func(m *models.Message) bool {
			m.Read = true
			return true
		},
	), nil
}

func (r *memMessageRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	if _, err := r.c.get(id); err != nil {
		return false, err
	}
	n := r.c.mutate(ctx,
		func(m *models.Message) bool { return m.ID == id && !m.Read },
		func(m *models.Message) bool {
			m.Read = true
			return true
		},
	)
	return n > 0, nil
}

func (r *memMessageRepository) Delete(ctx context.Context, id uint) error {
	return r.c.remove(ctx, id)
}

type memPostRepository struct {
	c *memCollection[models.Post, *models.Post]
}

func sortNewestFirst[PT interface{ RecordID() uint }](items []PT, created func(PT) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			return ci > cj
		}
		return items[i].RecordID() > items[j].RecordID()
	})
}

func (r *memPostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.Reactions == nil {
		post.Reactions = models.Reactions{}
	}
	return r.c.insert(ctx, post)
}

func (r *memPostRepository) GetByID(_ context.Context, id uint) (*models.Post, error) {
	return r.c.get(id)
}

func (r *memPostRepository) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	posts := r.c.filter(nil)
	sortNewestFirst(posts, func(p *models.Post) int64 { return p.CreatedAt.UnixNano() })
	start, end := pageBounds(len(posts), limit, offset)
	return posts[start:end], nil
}

func (r *memPostRepository) ListByAuthors(_ context.Context, authorIDs []uint, limit, offset int) ([]*models.Post, error) {
	authors := models.NewIDSet(authorIDs...)
	posts := r.c.filter(func(p *models.Post) bool { return authors.Contains(p.AuthorID) })
	sortNewestFirst(posts, func(p *models.Post) int64 { return p.CreatedAt.UnixNano() })
	start, end := pageBounds(len(posts), limit, offset)
	return posts[start:end], nil
}

func (r *memPostRepository) Update(ctx context.Context, post *models.Post) error {
	return r.c.put(ctx, post)
}

func (r *memPostRepository) Delete(ctx context.Context, id uint) error {
	return r.c.remove(ctx, id)
}

type memCommentRepository struct {
	c *memCollection[models.Comment, *models.Comment]
}

func (r *memCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.c.insert(ctx, comment)
}

func (r *memCommentRepository) GetByID(_ context.Context, id uint) (*models.Comment, error) {
	return r.c.get(id)
}

func (r *memCommentRepository) ListByPost(_ context.Context, postID uint) ([]*models.Comment, error) {
	comments := r.c.filter(func(c *models.Comment) bool { return c.PostID == postID })
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return comments, nil
}

func (r *memCommentRepository) Update(ctx context.Context, comment *models.Comment) error {
	return r.c.put(ctx, comment)
}

func (r *memCommentRepository) Delete(ctx context.Context, id uint) error {
	return r.c.remove(ctx, id)
}

type memNotificationRepository struct {
	c *memCollection[models.Notification, *models.Notification]
}

func (r *memNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.c.insert(ctx, n)
}

func (r *memNotificationRepository) GetByID(_ context.Context, id uint) (*models.Notification, error) {
	return r.c.get(id)
}

func (r *memNotificationRepository) ListByUser(_ context.Context, userID uint) ([]*models.Notification, error) {
	items := r.c.filter(func(n *models.Notification) bool { return n.UserID == userID })
	sortNewestFirst(items, func(n *models.Notification) int64 { return n.CreatedAt.UnixNano() })
	return items, nil
}

func (r *memNotificationRepository) CountUnread(_ context.Context, userID uint) (int, error) {
	return len(r.c.filter(func(n *models.Notification) bool { return n.UserID == userID && !n.Read })), nil
}

func (r *memNotificationRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	if _, err := r.c.get(id); err != nil {
		return false, err
	}
	n := r.c.mutate(ctx,
		func(n *models.Notification) bool { return n.ID == id && !n.Read },
		func(n *models.Notification) bool {
			n.Read = true
			return true
		},
	)
	return n > 0, nil
}

func (r *memNotificationRepository) MarkAllRead(ctx context.Context, userID uint) (int, error) {
	return r.c.mutate(ctx,
		func(n *models.Notification) bool { return n.UserID == userID && !n.Read },
		func(n *models.Notification) bool {
			n.Read = true
			return true
		},
	), nil
}

func (r *memNotificationRepository) Delete(ctx context.Context, id uint) error {
	return r.c.remove(ctx, id)
}
